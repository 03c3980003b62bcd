package workorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/event"
)

var (
	ErrNotFound         = errors.New("work order not found")
	ErrAlreadyCompleted = errors.New("work order already completed")
)

// Status of a locally held work order.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// WorkOrder is a locally held work order.
type WorkOrder struct {
	ID          string                      `json:"id"`
	Request     corrective.WorkOrderRequest `json:"request"`
	Status      Status                      `json:"status"`
	CreatedAt   time.Time                   `json:"created_at"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

// LocalService keeps work orders in memory and announces completions on the
// event bus, the same way the remote service does through Kafka.
type LocalService struct {
	mu     sync.Mutex
	orders map[string]*WorkOrder
	pub    event.WaitPublisher
	now    func() time.Time
}

// NewLocalService creates a LocalService publishing completions to pub.
func NewLocalService(pub event.WaitPublisher) *LocalService {
	return &LocalService{
		orders: make(map[string]*WorkOrder),
		pub:    pub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateWorkOrder implements corrective.WorkOrderService.
func (s *LocalService) CreateWorkOrder(_ context.Context, req corrective.WorkOrderRequest) (string, error) {
	if req.PropertyID == "" || req.Title == "" {
		return "", fmt.Errorf("work order for %q: property and title are required", req.IssueID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wo := &WorkOrder{
		ID:        "WO-" + uuid.NewString(),
		Request:   req,
		Status:    StatusOpen,
		CreatedAt: s.now(),
	}
	s.orders[wo.ID] = wo
	return wo.ID, nil
}

// Complete marks a work order completed and publishes work_order_completed.
// If the event cannot be published the work order is reopened and the
// error returned, so the call can be retried.
func (s *LocalService) Complete(ctx context.Context, id string) (WorkOrder, error) {
	s.mu.Lock()
	wo, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return WorkOrder{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if wo.Status == StatusCompleted {
		s.mu.Unlock()
		return WorkOrder{}, fmt.Errorf("%s: %w", id, ErrAlreadyCompleted)
	}
	at := s.now()
	wo.Status = StatusCompleted
	wo.CompletedAt = &at
	out := *wo
	s.mu.Unlock()

	if s.pub != nil {
		err := s.pub.PublishWait(ctx, event.NewWorkOrderCompleted(event.WorkOrderCompletedPayload{
			WorkOrderID: id,
			CompletedAt: at,
		}))
		if err != nil {
			s.mu.Lock()
			wo.Status = StatusOpen
			wo.CompletedAt = nil
			s.mu.Unlock()
			return WorkOrder{}, fmt.Errorf("announcing completion of %s: %w", id, err)
		}
	}
	return out, nil
}

// Get returns the work order with id.
func (s *LocalService) Get(id string) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wo, ok := s.orders[id]
	if !ok {
		return WorkOrder{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return *wo, nil
}

// List returns every work order, oldest first.
func (s *LocalService) List() []WorkOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkOrder, 0, len(s.orders))
	for _, wo := range s.orders {
		out = append(out, *wo)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
