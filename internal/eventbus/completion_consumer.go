package eventbus

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/event"
	"github.com/matthewbaird/compliance/internal/types"
)

// WorkCompleter advances the corrective issue linked to a work order.
// *corrective.Machine satisfies it.
type WorkCompleter interface {
	MarkWorkCompleted(ctx context.Context, workOrderID string) (types.CorrectiveIssue, error)
}

// CompletionConsumer turns work_order_completed signals into
// mark_work_completed transitions. Other event types are ignored.
type CompletionConsumer struct {
	completer WorkCompleter
	log       *zap.Logger
}

func NewCompletionConsumer(c WorkCompleter, log *zap.Logger) *CompletionConsumer {
	return &CompletionConsumer{completer: c, log: log}
}

func (c *CompletionConsumer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	if evt.EventType != event.TypeWorkOrderCompleted {
		return nil
	}
	p, err := event.DecodeWorkOrderCompleted(evt)
	if err != nil {
		return err
	}

	ctx = corrective.WithAudit(ctx, corrective.Audit{
		Actor:         "work-order-service",
		Source:        evt.EventType,
		CorrelationID: evt.ID,
	})
	ci, err := c.completer.MarkWorkCompleted(ctx, p.WorkOrderID)
	switch {
	case err == nil:
		c.log.Info("work order completion applied",
			zap.String("work_order_id", p.WorkOrderID),
			zap.String("issue_id", ci.ID))
		return nil
	case errors.Is(err, corrective.ErrInvalidTransition):
		// Redelivered signal for an issue that already moved on.
		c.log.Debug("work order completion already applied",
			zap.String("work_order_id", p.WorkOrderID), zap.Error(err))
		return nil
	case errors.Is(err, corrective.ErrNotFound):
		c.log.Warn("work order completion for untracked work order",
			zap.String("work_order_id", p.WorkOrderID))
		return nil
	default:
		return err
	}
}
