package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/tempora/schedgate/internal/model"
	"github.com/tempora/schedgate/internal/queue"
	"github.com/tempora/schedgate/internal/repository"
	queue_publisher "github.com/tempora/schedgate/internal/service"
)

// NewExpirySweep returns the job function that flips overdue PENDING
// gates to EXPIRED and publishes a gate.resolved event for each.  The
// confirm/cancel transactions run the same sweep inline, so this job
// only matters for gates nobody touches again; it keeps the status
// endpoint and downstream consumers from seeing stale PENDING rows
// forever.
func NewExpirySweep(repo *repository.GateRepo) func(context.Context) error {
	return func(ctx context.Context) error {
		tx, err := repo.DB().BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		expired, err := repo.ExpireDueTx(ctx, tx)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true

		now := time.Now().UTC().Format(time.RFC3339)
		for _, g := range expired {
			ev := queue.GateResolvedEvent{
				GateToken:  g.GateToken,
				ActionID:   g.ActionID,
				Status:     string(model.GateStatusExpired),
				ResolvedAt: now,
			}
			if err := queue_publisher.PublishGateResolved(ctx, ev); err != nil {
				// Logged inside the publisher; the sweep itself succeeded.
				log.Printf("expiry-sweep: event for %s not published", g.GateToken)
			}
		}
		if len(expired) > 0 {
			log.Printf("expiry-sweep: expired %d gate(s)", len(expired))
		}
		return nil
	}
}
