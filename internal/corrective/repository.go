package corrective

import (
	"context"
	"time"

	"github.com/matthewbaird/compliance/internal/types"
)

// Repository persists corrective issues. Implementations live in
// internal/store.
type Repository interface {
	// Insert stores a newly tracked issue. It returns ErrAlreadyTracked if
	// the id exists.
	Insert(ctx context.Context, ci types.CorrectiveIssue) error

	// Get returns the issue with id, or ErrNotFound.
	Get(ctx context.Context, id string) (types.CorrectiveIssue, error)

	// GetByWorkOrder returns the issue linked to workOrderID, or ErrNotFound.
	GetByWorkOrder(ctx context.Context, workOrderID string) (types.CorrectiveIssue, error)

	// Update replaces the stored issue if its version still equals
	// expectedVersion, and returns ErrConcurrentTransition otherwise.
	Update(ctx context.Context, ci types.CorrectiveIssue, expectedVersion int64) error

	// List returns issues matching f ordered by TrackedAt then id.
	List(ctx context.Context, f Filter) ([]types.CorrectiveIssue, error)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	PropertyID string
	Status     types.CorrectiveStatus
	Limit      int
	Offset     int
}

// Matches reports whether ci passes the filter's field conditions.
func (f Filter) Matches(ci types.CorrectiveIssue) bool {
	if f.PropertyID != "" && ci.PropertyID != f.PropertyID {
		return false
	}
	if f.Status != 0 && ci.Status != f.Status {
		return false
	}
	return true
}

// WorkOrderRequest is what the machine asks the work order service to open.
type WorkOrderRequest struct {
	IssueID     string    `json:"issue_id"`
	PropertyID  string    `json:"property_id"`
	UnitID      string    `json:"unit_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	DueDate     time.Time `json:"due_date"`
}

// WorkOrderService opens work orders in the external maintenance system.
// Completion is reported back asynchronously through MarkWorkCompleted.
type WorkOrderService interface {
	CreateWorkOrder(ctx context.Context, req WorkOrderRequest) (workOrderID string, err error)
}

// WorkOrderSpec carries caller overrides for a new work order. Empty fields
// are derived from the issue.
type WorkOrderSpec struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}
