package repository

import (
	"context"
	"database/sql"
)

// APIClientRecord represents the persistence model for an API client, a
// caller (scheduling engine, mobile app backend, digest worker) that
// exchanges its client id and secret for a bearer token.  Only a bcrypt
// hash of the secret is stored.
type APIClientRecord struct {
	ID         uint64
	ClientID   string
	SecretHash string
	Name       string
	Role       string
}

// APIClientRepo provides data access to the api_clients table.
type APIClientRepo struct {
	db *sql.DB
}

// NewAPIClientRepo returns a new APIClientRepo bound to the database.
func NewAPIClientRepo(db *sql.DB) *APIClientRepo { return &APIClientRepo{db: db} }

// GetByClientID retrieves an API client by its public client id.
// Returns ErrClientNotFound when the id is unknown.
func (r *APIClientRepo) GetByClientID(ctx context.Context, clientID string) (APIClientRecord, error) {
	var rec APIClientRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, secret_hash, name, role FROM api_clients WHERE client_id = ?`,
		clientID).Scan(&rec.ID, &rec.ClientID, &rec.SecretHash, &rec.Name, &rec.Role)
	if err == sql.ErrNoRows {
		return APIClientRecord{}, ErrClientNotFound
	}
	return rec, err
}

// Create inserts a new API client with an already-hashed secret and
// fills in the generated ID.
func (r *APIClientRepo) Create(ctx context.Context, rec *APIClientRecord) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO api_clients (client_id, secret_hash, name, role) VALUES (?, ?, ?, ?)`,
		rec.ClientID, rec.SecretHash, rec.Name, rec.Role)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	return nil
}
