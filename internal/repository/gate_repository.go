package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/tempora/schedgate/internal/model"
)

// GateRepo provides data access to the gates and gate_modifications
// tables.  All timestamp comparisons happen in UTC; callers must store
// expires_at in UTC.  Terminal transitions are performed inside a
// caller-supplied transaction so expiry sweeps and status checks see a
// consistent snapshot.
//
// Expected schema:
//
//	gates(id PK, gate_token UNIQUE, action_id, display_mode,
//	      preview_data JSON, status ENUM('PENDING','CONFIRMED',
//	      'CANCELLED','EXPIRED'), expires_at, created_at, resolved_at,
//	      cancel_reason)
//	gate_modifications(id PK, gate_id FK, timeblock_id,
//	      new_start_time NULL, new_duration_minutes NULL, created_at)
type GateRepo struct {
	db *sql.DB
}

// NewGateRepo returns a new GateRepo bound to the provided database.
func NewGateRepo(db *sql.DB) *GateRepo { return &GateRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *GateRepo) DB() *sql.DB { return r.db }

const gateColumns = `id, gate_token, action_id, display_mode, preview_data, status, expires_at, created_at, resolved_at, cancel_reason`

func scanGate(row interface{ Scan(...any) error }) (model.Gate, error) {
	var (
		g          model.Gate
		preview    sql.NullString
		resolvedAt sql.NullTime
		reason     sql.NullString
	)
	err := row.Scan(&g.ID, &g.GateToken, &g.ActionID, &g.DisplayMode, &preview, &g.Status, &g.ExpiresAt, &g.CreatedAt, &resolvedAt, &reason)
	if err != nil {
		return model.Gate{}, err
	}
	if preview.Valid {
		g.PreviewData = []byte(preview.String)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		g.ResolvedAt = &t
	}
	if reason.Valid {
		g.CancelReason = reason.String
	}
	return g, nil
}

// GetByToken retrieves a gate by its token.  Returns ErrGateNotFound
// when the token does not resolve.
func (r *GateRepo) GetByToken(ctx context.Context, gateToken string) (model.Gate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+gateColumns+` FROM gates WHERE gate_token = ?`, gateToken)
	g, err := scanGate(row)
	if err == sql.ErrNoRows {
		return model.Gate{}, ErrGateNotFound
	}
	return g, err
}

// GetByTokenForUpdateTx loads a gate inside a transaction with a row
// lock, so concurrent confirm/cancel attempts for the same token
// serialize at the database.
func (r *GateRepo) GetByTokenForUpdateTx(ctx context.Context, tx *sql.Tx, gateToken string) (model.Gate, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+gateColumns+` FROM gates WHERE gate_token = ? FOR UPDATE`, gateToken)
	g, err := scanGate(row)
	if err == sql.ErrNoRows {
		return model.Gate{}, ErrGateNotFound
	}
	return g, err
}

// ResolvableTx loads a gate with a row lock and verifies it can still
// accept a terminal transition.  A non-PENDING gate is returned
// alongside ErrGateExpired or ErrGateResolved so handlers can build the
// 409 detail from its status.
func (r *GateRepo) ResolvableTx(ctx context.Context, tx *sql.Tx, gateToken string) (model.Gate, error) {
	g, err := r.GetByTokenForUpdateTx(ctx, tx, gateToken)
	if err != nil {
		return model.Gate{}, err
	}
	switch g.Status {
	case model.GateStatusPending:
		return g, nil
	case model.GateStatusExpired:
		return g, ErrGateExpired
	default:
		return g, ErrGateResolved
	}
}

// Create inserts a new PENDING gate and fills in its generated ID.  The
// token must be unique; use GenerateGateToken.
func (r *GateRepo) Create(ctx context.Context, g *model.Gate) error {
	var preview any
	if len(g.PreviewData) > 0 {
		preview = string(g.PreviewData)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO gates (gate_token, action_id, display_mode, preview_data, status, expires_at)
		 VALUES (?, ?, ?, ?, 'PENDING', ?)`,
		g.GateToken, g.ActionID, g.DisplayMode, preview, g.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = uint64(id)
	g.Status = model.GateStatusPending
	return nil
}

// ExpireDueTx flips every PENDING gate whose expires_at has passed to
// EXPIRED and returns the affected gates (token and action id only).
// Callers run this at the start of confirm/cancel transactions and from
// the periodic sweep, then publish expiry events for the returned rows.
func (r *GateRepo) ExpireDueTx(ctx context.Context, tx *sql.Tx) ([]model.Gate, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT gate_token, action_id FROM gates WHERE status = 'PENDING' AND expires_at <= UTC_TIMESTAMP() FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	var due []model.Gate
	for rows.Next() {
		var g model.Gate
		if scanErr := rows.Scan(&g.GateToken, &g.ActionID); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		g.Status = model.GateStatusExpired
		due = append(due, g)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return []model.Gate{}, nil
	}
	// Update the locked tokens rather than re-evaluating the time
	// predicate: a gate crossing expiry between the two statements would
	// otherwise flip without its event appearing in the returned slice.
	query := `UPDATE gates SET status = 'EXPIRED', resolved_at = UTC_TIMESTAMP()
		 WHERE gate_token IN (?` + strings.Repeat(", ?", len(due)-1) + `)`
	args := make([]any, len(due))
	for i, g := range due {
		args[i] = g.GateToken
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	return due, nil
}

// ConfirmTx marks a gate CONFIRMED and records the applied
// modifications.  The caller must have loaded the gate with
// GetByTokenForUpdateTx and verified it is still PENDING and not past
// expiry; this method only performs the writes.
func (r *GateRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, gateID uint64, mods []model.Modification) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE gates SET status = 'CONFIRMED', resolved_at = UTC_TIMESTAMP() WHERE id = ?`, gateID); err != nil {
		return err
	}
	if len(mods) == 0 {
		return nil
	}
	query := `INSERT INTO gate_modifications (gate_id, timeblock_id, new_start_time, new_duration_minutes) VALUES `
	args := make([]any, 0, len(mods)*4)
	for i, m := range mods {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		var start, dur any
		if m.NewStartTime != "" {
			t, err := time.Parse(time.RFC3339, m.NewStartTime)
			if err != nil {
				return err
			}
			start = t.UTC().Format("2006-01-02 15:04:05")
		}
		if m.NewDurationMinutes > 0 {
			dur = m.NewDurationMinutes
		}
		args = append(args, gateID, m.TimeblockID, start, dur)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// CancelTx marks a gate CANCELLED, recording the optional free-text
// reason.  Same precondition as ConfirmTx.
func (r *GateRepo) CancelTx(ctx context.Context, tx *sql.Tx, gateID uint64, reason string) error {
	var res any
	if reason != "" {
		res = reason
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE gates SET status = 'CANCELLED', resolved_at = UTC_TIMESTAMP(), cancel_reason = ? WHERE id = ?`,
		res, gateID)
	return err
}

// ModificationsByGate returns the modifications recorded when a gate
// was confirmed, in insertion order.
func (r *GateRepo) ModificationsByGate(ctx context.Context, gateID uint64) ([]model.Modification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT timeblock_id, new_start_time, new_duration_minutes
		 FROM gate_modifications WHERE gate_id = ? ORDER BY id`, gateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mods []model.Modification
	for rows.Next() {
		var (
			m     model.Modification
			start sql.NullTime
			dur   sql.NullInt64
		)
		if err := rows.Scan(&m.TimeblockID, &start, &dur); err != nil {
			return nil, err
		}
		if start.Valid {
			m.NewStartTime = start.Time.UTC().Format(time.RFC3339)
		}
		if dur.Valid {
			m.NewDurationMinutes = int(dur.Int64)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

// GenerateGateToken returns a new opaque gate token: "gt_" followed by
// 32 bytes of cryptographically secure randomness in hex.
func GenerateGateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "gt_" + hex.EncodeToString(b), nil
}
