package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tempora/schedgate/internal/model"
	"github.com/tempora/schedgate/internal/queue"
	"github.com/tempora/schedgate/internal/repository"
	queue_publisher "github.com/tempora/schedgate/internal/service"
)

// GateHandler implements the gate store HTTP contract: status fetch,
// confirm, cancel and issuance.  Terminal transitions run inside a
// transaction that first sweeps overdue gates, then locks the target
// row, so two concurrent confirm calls for one token serialize at the
// database and the loser sees the already-resolved state.
//
// All error responses are a JSON object with a single `detail` field;
// clients surface the text verbatim.
type GateHandler struct {
	GateRepo *repository.GateRepo
	GateTTL  time.Duration // default validity for issued gates
}

// NewGateHandler constructs a GateHandler.  The repository must be
// non-nil.
func NewGateHandler(gateRepo *repository.GateRepo, gateTTL time.Duration) *GateHandler {
	if gateRepo == nil {
		panic("nil repository passed to NewGateHandler")
	}
	if gateTTL <= 0 {
		gateTTL = 30 * time.Minute
	}
	return &GateHandler{GateRepo: gateRepo, GateTTL: gateTTL}
}

// GetStatus handles GET /v1/gates/:token/status.  It returns the stored
// gate representation; for a CONFIRMED gate the applied modifications
// are included.  A PENDING gate past its expiry is returned as-is: the
// read path never writes, and clients render the display-only expired
// state themselves.
func (h *GateHandler) GetStatus(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "gate token is required"})
	}
	ctx := c.Request().Context()
	gate, err := h.GateRepo.GetByToken(ctx, token)
	if err != nil {
		if err == repository.ErrGateNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "gate not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "database error"})
	}
	if gate.Status == model.GateStatusConfirmed {
		mods, err := h.GateRepo.ModificationsByGate(ctx, gate.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "database error"})
		}
		gate.Modifications = mods
	}
	return c.JSON(http.StatusOK, gate)
}

// Confirm handles POST /v1/gates/:token/confirm.  The body carries an
// optional list of per-block modifications; an empty or absent list
// accepts the proposal verbatim.  On success the gate is CONFIRMED and
// a gate.resolved event is published.
func (h *GateHandler) Confirm(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "gate token is required"})
	}
	var body struct {
		Modifications []model.Modification `json:"modifications"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}
	if detail := validateModifications(body.Modifications); detail != "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": detail})
	}

	gate, expired, status, detail := h.resolve(c, func(ctx context.Context, tx *sql.Tx, g model.Gate) error {
		return h.GateRepo.ConfirmTx(ctx, tx, g.ID, body.Modifications)
	})
	if detail != "" {
		return c.JSON(status, echo.Map{"detail": detail})
	}
	publishExpiries(expired)
	publishResolved(queue.GateResolvedEvent{
		GateToken:     gate.GateToken,
		ActionID:      gate.ActionID,
		Status:        string(model.GateStatusConfirmed),
		Modifications: len(body.Modifications),
		ResolvedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	return c.JSON(http.StatusOK, echo.Map{
		"gate_token":            gate.GateToken,
		"action_id":             gate.ActionID,
		"status":                model.GateStatusConfirmed,
		"applied_modifications": len(body.Modifications),
	})
}

// Cancel handles POST /v1/gates/:token/cancel.  The optional free-text
// reason is recorded on the gate.  Cancelling an already-confirmed gate
// fails with 409; it is never silently accepted.
func (h *GateHandler) Cancel(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "gate token is required"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}

	gate, expired, status, detail := h.resolve(c, func(ctx context.Context, tx *sql.Tx, g model.Gate) error {
		return h.GateRepo.CancelTx(ctx, tx, g.ID, body.Reason)
	})
	if detail != "" {
		return c.JSON(status, echo.Map{"detail": detail})
	}
	publishExpiries(expired)
	publishResolved(queue.GateResolvedEvent{
		GateToken:    gate.GateToken,
		ActionID:     gate.ActionID,
		Status:       string(model.GateStatusCancelled),
		CancelReason: body.Reason,
		ResolvedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	return c.JSON(http.StatusOK, echo.Map{
		"gate_token": gate.GateToken,
		"action_id":  gate.ActionID,
		"status":     model.GateStatusCancelled,
	})
}

// Create handles POST /v1/gates.  The scheduling engine issues a gate
// for a proposed change set; expires_in_minutes overrides the default
// validity.  Returns 201 with the stored gate, including its token.
func (h *GateHandler) Create(c echo.Context) error {
	var body struct {
		ActionID         string          `json:"action_id"`
		DisplayMode      string          `json:"display_mode"`
		PreviewData      json.RawMessage `json:"preview_data"`
		ExpiresInMinutes int             `json:"expires_in_minutes"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}
	if body.ActionID == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "action_id is required"})
	}
	if body.ExpiresInMinutes < 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "expires_in_minutes must be positive"})
	}
	ttl := h.GateTTL
	if body.ExpiresInMinutes > 0 {
		ttl = time.Duration(body.ExpiresInMinutes) * time.Minute
	}
	token, err := repository.GenerateGateToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "failed to generate gate token"})
	}
	gate := model.Gate{
		GateToken:   token,
		ActionID:    body.ActionID,
		DisplayMode: body.DisplayMode,
		PreviewData: body.PreviewData,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}
	if err := h.GateRepo.Create(c.Request().Context(), &gate); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "failed to create gate"})
	}
	return c.JSON(http.StatusCreated, gate)
}

// resolve runs the shared terminal-transition flow: open a transaction,
// sweep overdue gates, lock the target row, verify it is still PENDING,
// apply the transition, commit.  It returns the pre-transition gate,
// the gates flipped by the sweep, and on failure the HTTP status plus
// detail text for the error response.
func (h *GateHandler) resolve(c echo.Context, apply func(context.Context, *sql.Tx, model.Gate) error) (model.Gate, []model.Gate, int, string) {
	ctx := c.Request().Context()
	token := c.Param("token")

	tx, err := h.GateRepo.DB().BeginTx(ctx, nil)
	if err != nil {
		return model.Gate{}, nil, http.StatusInternalServerError, "failed to start transaction"
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Sweep overdue gates first so the status check below sees EXPIRED
	// rather than a stale PENDING.
	expired, err := h.GateRepo.ExpireDueTx(ctx, tx)
	if err != nil {
		return model.Gate{}, nil, http.StatusInternalServerError, "failed to expire overdue gates"
	}

	gate, err := h.GateRepo.ResolvableTx(ctx, tx, token)
	switch {
	case err == nil:
		// still PENDING, apply below
	case errors.Is(err, repository.ErrGateNotFound):
		return model.Gate{}, nil, http.StatusNotFound, "gate not found"
	case errors.Is(err, repository.ErrGateExpired):
		return model.Gate{}, nil, http.StatusConflict, "Gate has expired"
	case errors.Is(err, repository.ErrGateResolved):
		return model.Gate{}, nil, http.StatusConflict, "Gate already " + strings.ToLower(string(gate.Status))
	default:
		return model.Gate{}, nil, http.StatusInternalServerError, "database error"
	}

	if err := apply(ctx, tx, gate); err != nil {
		return model.Gate{}, nil, http.StatusInternalServerError, "failed to update gate"
	}
	if err := tx.Commit(); err != nil {
		return model.Gate{}, nil, http.StatusInternalServerError, "failed to commit transaction"
	}
	committed = true
	return gate, expired, 0, ""
}

// validateModifications checks request shape.  Whether a timeblock id
// belongs to the gate's preview is intentionally not checked here; the
// preview payload is opaque to this service.
func validateModifications(mods []model.Modification) string {
	for _, m := range mods {
		if m.TimeblockID == "" {
			return "modification timeblock_id is required"
		}
		if m.NewStartTime != "" {
			if _, err := time.Parse(time.RFC3339, m.NewStartTime); err != nil {
				return "modification new_start_time must be an RFC 3339 timestamp"
			}
		}
		if m.NewDurationMinutes < 0 {
			return "modification new_duration_minutes must be positive"
		}
	}
	return ""
}

// publishResolved sends a terminal-transition event without blocking
// the response; broker failures are logged inside the publisher.
func publishResolved(ev queue.GateResolvedEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue_publisher.PublishGateResolved(ctx, ev); err != nil {
			log.Printf("gate-handler: publish resolved event failed: %v", err)
		}
	}()
}

// publishExpiries emits events for gates the sweep flipped to EXPIRED
// as a side effect of a confirm/cancel transaction.
func publishExpiries(expired []model.Gate) {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, g := range expired {
		publishResolved(queue.GateResolvedEvent{
			GateToken:  g.GateToken,
			ActionID:   g.ActionID,
			Status:     string(model.GateStatusExpired),
			ResolvedAt: now,
		})
	}
}
