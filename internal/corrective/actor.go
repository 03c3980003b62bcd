package corrective

import "context"

// Audit identifies who asked for a transition and through which channel.
// It ends up in the payload of every event the machine records.
type Audit struct {
	Actor         string
	Source        string
	CorrelationID string
}

type auditKey struct{}

// WithAudit attaches a to ctx.
func WithAudit(ctx context.Context, a Audit) context.Context {
	return context.WithValue(ctx, auditKey{}, a)
}

// AuditFrom returns the audit metadata attached to ctx, or the zero Audit.
func AuditFrom(ctx context.Context) Audit {
	a, _ := ctx.Value(auditKey{}).(Audit)
	return a
}

// WithActor attaches an actor with no source or correlation id.
func WithActor(ctx context.Context, actor string) context.Context {
	return WithAudit(ctx, Audit{Actor: actor})
}
