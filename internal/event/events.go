package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/compliance/internal/types"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	AffectedEntities []types.SourceRef
	Summary          string
	Category         string // defect category of the issue, "" for work-order events
	Stage            string // corrective status after the event
	Payload          json.RawMessage
}

// Event types.
const (
	TypeIssueTracked       = "corrective_issue_tracked"
	TypeWorkOrderCreated   = "work_order_created"
	TypeWorkCompleted      = "work_completed"
	TypeIssueVerified      = "corrective_issue_verified"
	TypeIssueClosed        = "corrective_issue_closed"
	TypeWorkOrderCompleted = "work_order_completed"
)

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// ── Corrective events ────────────────────────────────────────────────────────

// TransitionPayload carries the issue snapshot shared by every corrective event.
type TransitionPayload struct {
	IssueID      string    `json:"issue_id"`
	PropertyID   string    `json:"property_id"`
	UnitID       string    `json:"unit_id,omitempty"`
	Category     string    `json:"category"`
	Severity     string    `json:"severity"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to"`
	WorkOrderID  string    `json:"work_order_id,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	RegressionOf string    `json:"regression_of,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	// Source is the channel the command came through, e.g. "user" or
	// "webhook". CorrelationID ties the event to the caller's request.
	Source        string    `json:"source,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	At            time.Time `json:"at"`
}

// PayloadFor builds the payload for a transition of ci from the given stage.
// from is zero for newly tracked issues.
func PayloadFor(ci types.CorrectiveIssue, from types.CorrectiveStatus, at time.Time) TransitionPayload {
	p := TransitionPayload{
		IssueID:      ci.ID,
		PropertyID:   ci.PropertyID,
		UnitID:       ci.UnitID,
		Category:     ci.Category,
		Severity:     string(ci.Severity),
		To:           ci.Status.String(),
		WorkOrderID:  ci.LinkedWorkOrderID,
		RegressionOf: ci.RegressionOf,
		At:           at,
	}
	if from.Valid() {
		p.From = from.String()
	}
	return p
}

func refs(p TransitionPayload) []types.SourceRef {
	out := []types.SourceRef{
		{EntityType: "corrective_issue", EntityID: p.IssueID, Role: "subject"},
		{EntityType: "property", EntityID: p.PropertyID, Role: "context"},
	}
	if p.UnitID != "" {
		out = append(out, types.SourceRef{EntityType: "unit", EntityID: p.PropertyID + "/" + p.UnitID, Role: "context"})
	}
	if p.WorkOrderID != "" {
		out = append(out, types.SourceRef{EntityType: "work_order", EntityID: p.WorkOrderID, Role: "related"})
	}
	if p.RegressionOf != "" {
		out = append(out, types.SourceRef{EntityType: "corrective_issue", EntityID: p.RegressionOf, Role: "related"})
	}
	return out
}

func transition(eventType, summary string, p TransitionPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        eventType,
		OccurredAt:       p.At,
		AffectedEntities: refs(p),
		Summary:          summary,
		Category:         p.Category,
		Stage:            p.To,
		Payload:          mustJSON(p),
	}
}

func NewIssueTracked(p TransitionPayload) DomainEvent {
	summary := fmt.Sprintf("%s defect %s tracked for correction", p.Category, p.IssueID)
	if p.RegressionOf != "" {
		summary += fmt.Sprintf(" (regression of %s)", p.RegressionOf)
	}
	return transition(TypeIssueTracked, summary, p)
}

func NewWorkOrderCreated(p TransitionPayload) DomainEvent {
	return transition(TypeWorkOrderCreated,
		fmt.Sprintf("Work order %s created for %s", p.WorkOrderID, p.IssueID), p)
}

func NewWorkCompleted(p TransitionPayload) DomainEvent {
	return transition(TypeWorkCompleted,
		fmt.Sprintf("Work order %s completed for %s", p.WorkOrderID, p.IssueID), p)
}

func NewIssueVerified(p TransitionPayload) DomainEvent {
	return transition(TypeIssueVerified,
		fmt.Sprintf("Correction of %s verified", p.IssueID), p)
}

func NewIssueClosed(p TransitionPayload) DomainEvent {
	return transition(TypeIssueClosed,
		fmt.Sprintf("%s closed", p.IssueID), p)
}

// ── Work order events ────────────────────────────────────────────────────────

// WorkOrderCompletedPayload is the completion signal emitted by the work
// order service when a work order reaches its own completed state.
type WorkOrderCompletedPayload struct {
	WorkOrderID string    `json:"work_order_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewWorkOrderCompleted(p WorkOrderCompletedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeWorkOrderCompleted,
		OccurredAt: p.CompletedAt,
		AffectedEntities: []types.SourceRef{
			{EntityType: "work_order", EntityID: p.WorkOrderID, Role: "subject"},
		},
		Summary: fmt.Sprintf("Work order %s reported completed", p.WorkOrderID),
		Payload: mustJSON(p),
	}
}

// DecodeWorkOrderCompleted extracts the completion payload from evt.
func DecodeWorkOrderCompleted(evt DomainEvent) (WorkOrderCompletedPayload, error) {
	var p WorkOrderCompletedPayload
	if evt.EventType != TypeWorkOrderCompleted {
		return p, fmt.Errorf("event %s is %s, not %s", evt.ID, evt.EventType, TypeWorkOrderCompleted)
	}
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding %s payload: %w", evt.EventType, err)
	}
	if p.WorkOrderID == "" {
		return p, fmt.Errorf("event %s has no work_order_id", evt.ID)
	}
	return p, nil
}
