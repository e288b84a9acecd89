package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tempora/schedgate/internal/repository"
	"github.com/tempora/schedgate/internal/utils"
)

// AuthHandler exchanges API client credentials for bearer tokens and
// provisions new clients.  Gate callers (the scheduling engine, app
// backends, digest workers) hold a client id and secret; everything
// after the exchange uses the JWT.
type AuthHandler struct {
	ClientRepo  *repository.APIClientRepo
	JWTSecret   string
	TokenTTLMin int
	BcryptCost  int
}

// NewAuthHandler constructs an AuthHandler.  The repository must be
// non-nil and the secret non-empty.
func NewAuthHandler(clientRepo *repository.APIClientRepo, jwtSecret string, tokenTTLMin, bcryptCost int) *AuthHandler {
	if clientRepo == nil || jwtSecret == "" {
		panic("invalid dependencies passed to NewAuthHandler")
	}
	if tokenTTLMin <= 0 {
		tokenTTLMin = 15
	}
	if bcryptCost <= 0 {
		bcryptCost = 10
	}
	return &AuthHandler{ClientRepo: clientRepo, JWTSecret: jwtSecret, TokenTTLMin: tokenTTLMin, BcryptCost: bcryptCost}
}

// Token handles POST /v1/auth/token.  The body must carry client_id and
// client_secret.  Unknown ids and wrong secrets both answer 401 with
// the same detail text so the endpoint does not leak which client ids
// exist.
func (h *AuthHandler) Token(c echo.Context) error {
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}
	if body.ClientID == "" || body.ClientSecret == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "client_id and client_secret are required"})
	}

	rec, err := h.ClientRepo.GetByClientID(c.Request().Context(), body.ClientID)
	if err != nil {
		if err == repository.ErrClientNotFound {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid client credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "database error"})
	}
	if !utils.VerifySecret(rec.SecretHash, body.ClientSecret) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid client credentials"})
	}

	tok, err := utils.NewBearerToken(h.JWTSecret, rec.ClientID, rec.Role, h.TokenTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "failed to sign token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": tok.Token,
		"token_type":   "bearer",
		"expires_at":   tok.Exp.Format(time.RFC3339),
	})
}

// RegisterClient handles POST /v1/ops/clients.  Operators provision the
// API clients that later exchange credentials at /v1/auth/token; only
// the bcrypt hash of the secret is stored, and the secret is never
// echoed back.
func (h *AuthHandler) RegisterClient(c echo.Context) error {
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		Name         string `json:"name"`
		Role         string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}
	if body.ClientID == "" || body.ClientSecret == "" || body.Role == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "client_id, client_secret and role are required"})
	}

	ctx := c.Request().Context()
	if _, err := h.ClientRepo.GetByClientID(ctx, body.ClientID); err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"detail": "client_id already registered"})
	} else if err != repository.ErrClientNotFound {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "database error"})
	}

	hash, err := utils.HashSecret(body.ClientSecret, h.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "failed to hash client secret"})
	}
	rec := repository.APIClientRecord{
		ClientID:   body.ClientID,
		SecretHash: hash,
		Name:       body.Name,
		Role:       body.Role,
	}
	if err := h.ClientRepo.Create(ctx, &rec); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "failed to create api client"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"client_id": rec.ClientID,
		"name":      rec.Name,
		"role":      rec.Role,
	})
}
