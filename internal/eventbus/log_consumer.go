package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/event"
)

// LogConsumer logs all domain events for observability.
type LogConsumer struct {
	log *zap.Logger
}

func NewLogConsumer(log *zap.Logger) *LogConsumer { return &LogConsumer{log: log} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		entities[i] = ref.EntityType + ":" + ref.EntityID
	}
	c.log.Info("event",
		zap.String("event_type", evt.EventType),
		zap.String("category", evt.Category),
		zap.String("stage", evt.Stage),
		zap.String("summary", evt.Summary),
		zap.Strings("entities", entities))
	return nil
}
