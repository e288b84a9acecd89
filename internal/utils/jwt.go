package utils // helper functions for token issuance and secret hashing

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerToken represents a signed JWT issued to an API client along
// with its expiry.  Clients attach it to the Authorization header of
// every gate call and exchange credentials again when it lapses.
type BearerToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewBearerToken builds and signs an HS256 JWT for an API client.  The
// claims are standard: subject (sub) carries the client id, role the
// client's role, plus exp and iat.
func NewBearerToken(secret, clientID, role string, ttlMin int) (BearerToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  clientID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return BearerToken{}, err
	}
	return BearerToken{Token: signed, Exp: exp}, nil
}
