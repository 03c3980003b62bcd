// Package corrective implements the corrective action state machine:
//
//	needs_work_order → work_order_created → work_completed → verified → closed
//
// Each stage is entered through one named operation on Machine, and most
// stages have an entry gate. Transitions of the same issue are serialized;
// transitions of different issues are independent.
package corrective

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/event"
	"github.com/matthewbaird/compliance/internal/metrics"
	"github.com/matthewbaird/compliance/internal/priority"
	"github.com/matthewbaird/compliance/internal/types"
)

// Machine applies corrective transitions. It is safe for concurrent use.
type Machine struct {
	repo       Repository
	workOrders WorkOrderService
	recorder   event.Recorder
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	locks      *keyedMutex
}

// Option configures a Machine.
type Option func(*Machine)

// WithRecorder records every transition as a domain event.
func WithRecorder(r event.Recorder) Option { return func(m *Machine) { m.recorder = r } }

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option { return func(m *Machine) { m.log = l } }

// WithMetrics counts transitions by event and outcome.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Machine) { m.metrics = mt } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

// NewMachine creates a Machine over repo. workOrders may be nil if
// CreateWorkOrder is never called.
func NewMachine(repo Repository, workOrders WorkOrderService, opts ...Option) *Machine {
	m := &Machine{
		repo:       repo,
		workOrders: workOrders,
		log:        zap.NewNop(),
		now:        time.Now,
		locks:      newKeyedMutex(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Track starts remediation of issue in needs_work_order.
func (m *Machine) Track(ctx context.Context, issue types.CorrectableIssue) (types.CorrectiveIssue, error) {
	if issue.ID == "" {
		return types.CorrectiveIssue{}, errors.New("corrective: issue has no id")
	}
	if _, err := priority.TierFor(issue); err != nil {
		return types.CorrectiveIssue{}, err
	}

	unlock := m.locks.Lock(issue.ID)
	defer unlock()

	now := m.now().UTC()
	ci := types.CorrectiveIssue{
		CorrectableIssue: issue,
		Status:           types.StatusNeedsWorkOrder,
		TrackedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	if err := m.repo.Insert(ctx, ci); err != nil {
		m.metrics.Transition("track", outcome(err))
		return types.CorrectiveIssue{}, err
	}

	p := event.PayloadFor(ci, 0, now)
	stampAudit(ctx, &p)
	m.record(ctx, event.NewIssueTracked(p))
	m.metrics.Transition("track", "ok")
	m.log.Info("corrective issue tracked",
		zap.String("issue_id", ci.ID),
		zap.String("property_id", ci.PropertyID),
		zap.String("category", ci.Category),
		zap.String("regression_of", ci.RegressionOf))
	return ci, nil
}

// AutoTrack tracks every severe or moderate issue whose unique defect is not
// covered yet and returns the newly tracked ones. Repeat observations of a
// defect that is already tracked, or that a closure resolved, are skipped,
// so one defect gets one work order. Low-severity issues are left for
// manual triage.
func (m *Machine) AutoTrack(ctx context.Context, issues []types.CorrectableIssue) ([]types.CorrectiveIssue, error) {
	existing := make(map[string][]types.CorrectiveIssue)
	var tracked []types.CorrectiveIssue
	for _, issue := range issues {
		if issue.Severity != types.SeveritySevere && issue.Severity != types.SeverityModerate {
			continue
		}
		known, ok := existing[issue.PropertyID]
		if !ok {
			var err error
			known, err = m.repo.List(ctx, Filter{PropertyID: issue.PropertyID})
			if err != nil {
				return tracked, fmt.Errorf("auto-tracking %s: listing tracked issues: %w", issue.ID, err)
			}
		}
		if covered(issue, known) {
			existing[issue.PropertyID] = known
			continue
		}
		ci, err := m.Track(ctx, issue)
		if errors.Is(err, ErrAlreadyTracked) {
			existing[issue.PropertyID] = known
			continue
		}
		if err != nil {
			return tracked, fmt.Errorf("auto-tracking %s: %w", issue.ID, err)
		}
		existing[issue.PropertyID] = append(known, ci)
		tracked = append(tracked, ci)
	}
	return tracked, nil
}

func covered(issue types.CorrectableIssue, known []types.CorrectiveIssue) bool {
	for _, ci := range known {
		if ci.Covers(issue) {
			return true
		}
	}
	return false
}

// CreateWorkOrder opens a work order for the issue and links it.
// Gate: the issue has no linked work order.
func (m *Machine) CreateWorkOrder(ctx context.Context, id string, spec WorkOrderSpec) (types.CorrectiveIssue, error) {
	return m.transition(ctx, id, EventCreateWorkOrder, "", func(ci *types.CorrectiveIssue, now time.Time) error {
		if ci.LinkedWorkOrderID != "" {
			return &GateError{IssueID: id, Event: EventCreateWorkOrder, Condition: ConditionWorkOrderLinked}
		}
		if m.workOrders == nil {
			return errors.New("corrective: no work order service configured")
		}
		req := m.workOrderRequest(ci.CorrectableIssue, spec, now)
		woID, err := m.workOrders.CreateWorkOrder(ctx, req)
		if err != nil {
			return fmt.Errorf("creating work order for %s: %w: %w", id, ErrWorkOrderService, err)
		}
		if woID == "" {
			return fmt.Errorf("creating work order for %s: service returned an empty id", id)
		}
		ci.LinkedWorkOrderID = woID
		return nil
	})
}

// MarkWorkCompleted records that the work order linked to an issue reached
// its completed state. It has no gate; it is driven by the work order
// service's completion event.
func (m *Machine) MarkWorkCompleted(ctx context.Context, workOrderID string) (types.CorrectiveIssue, error) {
	ci, err := m.repo.GetByWorkOrder(ctx, workOrderID)
	if err != nil {
		m.metrics.Transition(EventMarkWorkCompleted.String(), outcome(err))
		return types.CorrectiveIssue{}, fmt.Errorf("work order %s: %w", workOrderID, err)
	}
	return m.transition(ctx, ci.ID, EventMarkWorkCompleted, "", func(ci *types.CorrectiveIssue, _ time.Time) error {
		if ci.LinkedWorkOrderID != workOrderID {
			// Relinked between lookup and lock.
			return ErrConcurrentTransition
		}
		return nil
	})
}

// Verify records a successful post-repair inspection.
// Gate: every checklist item is confirmed and notes are not empty.
func (m *Machine) Verify(ctx context.Context, id, notes string, checklist types.Checklist) (types.CorrectiveIssue, error) {
	return m.transition(ctx, id, EventVerify, notes, func(ci *types.CorrectiveIssue, now time.Time) error {
		if missing := checklist.Missing(); len(missing) > 0 {
			return &GateError{IssueID: id, Event: EventVerify, Condition: ConditionChecklistIncomplete, Missing: missing}
		}
		if strings.TrimSpace(notes) == "" {
			return &GateError{IssueID: id, Event: EventVerify, Condition: ConditionVerificationNotes}
		}
		ci.Checklist = checklist
		ci.VerificationNotes = notes
		ci.VerifiedAt = &now
		return nil
	})
}

// Close ends remediation. Closed issues are immutable.
// Gate: notes are not empty.
func (m *Machine) Close(ctx context.Context, id, notes string) (types.CorrectiveIssue, error) {
	return m.transition(ctx, id, EventClose, notes, func(ci *types.CorrectiveIssue, now time.Time) error {
		if strings.TrimSpace(notes) == "" {
			return &GateError{IssueID: id, Event: EventClose, Condition: ConditionClosureNotes}
		}
		ci.ClosureNotes = notes
		ci.ClosedAt = &now
		return nil
	})
}

// transition runs one event against issue id under its lock. apply checks
// the gate and mutates a copy; nothing is written unless every step passes.
func (m *Machine) transition(ctx context.Context, id string, ev Event, notes string, apply func(*types.CorrectiveIssue, time.Time) error) (types.CorrectiveIssue, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, err := m.repo.Get(ctx, id)
	if err != nil {
		m.metrics.Transition(ev.String(), outcome(err))
		return types.CorrectiveIssue{}, err
	}

	to, err := Next(cur.Status, ev)
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			te.IssueID = id
		}
		return types.CorrectiveIssue{}, m.reject(ev, cur, err)
	}

	now := m.now().UTC()
	next := cur
	if err := apply(&next, now); err != nil {
		return types.CorrectiveIssue{}, m.reject(ev, cur, err)
	}
	next.Status = to
	next.UpdatedAt = now
	next.Version = cur.Version + 1

	if err := m.repo.Update(ctx, next, cur.Version); err != nil {
		if errors.Is(err, ErrConcurrentTransition) && next.LinkedWorkOrderID != cur.LinkedWorkOrderID {
			m.log.Error("work order created but not linked",
				zap.String("issue_id", id),
				zap.String("work_order_id", next.LinkedWorkOrderID))
		}
		return types.CorrectiveIssue{}, m.reject(ev, cur, err)
	}

	p := event.PayloadFor(next, cur.Status, now)
	p.Notes = notes
	stampAudit(ctx, &p)
	m.record(ctx, ev.domainEvent(p))
	m.metrics.Transition(ev.String(), "ok")
	m.log.Info("corrective transition",
		zap.String("issue_id", id),
		zap.Stringer("event", ev),
		zap.Stringer("from", cur.Status),
		zap.Stringer("to", to),
		zap.Int64("version", next.Version))
	return next, nil
}

func (m *Machine) reject(ev Event, cur types.CorrectiveIssue, err error) error {
	m.metrics.Transition(ev.String(), outcome(err))
	m.log.Debug("corrective transition rejected",
		zap.String("issue_id", cur.ID),
		zap.Stringer("event", ev),
		zap.Stringer("status", cur.Status),
		zap.Error(err))
	return err
}

// record is best-effort: the transition is already committed.
func stampAudit(ctx context.Context, p *event.TransitionPayload) {
	a := AuditFrom(ctx)
	p.Actor = a.Actor
	p.Source = a.Source
	p.CorrelationID = a.CorrelationID
}

func (m *Machine) record(ctx context.Context, evt event.DomainEvent) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, evt); err != nil {
		m.log.Warn("event recording failed",
			zap.String("event_type", evt.EventType),
			zap.String("event_id", evt.ID),
			zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrGateNotSatisfied):
		return "gate_not_satisfied"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConcurrentTransition):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyTracked):
		return "already_tracked"
	case errors.Is(err, ErrWorkOrderService):
		return "work_order_failed"
	default:
		return "error"
	}
}

// workOrderRequest fills the request from spec, falling back to values
// derived from the issue.
func (m *Machine) workOrderRequest(issue types.CorrectableIssue, spec WorkOrderSpec, now time.Time) WorkOrderRequest {
	req := WorkOrderRequest{
		IssueID:     issue.ID,
		PropertyID:  issue.PropertyID,
		UnitID:      issue.UnitID,
		Title:       spec.Title,
		Description: spec.Description,
		Priority:    spec.Priority,
	}
	if req.Title == "" {
		req.Title = fmt.Sprintf("Correct %s: %s", issue.Category, issue.Title)
	}
	if req.Description == "" {
		req.Description = issue.Description
	}
	if req.Priority == "" {
		// Track already rejected issues without a tier.
		tier, _ := priority.TierFor(issue)
		req.Priority = tier.WorkOrderPriority()
	}
	if spec.DueDate != nil {
		req.DueDate = spec.DueDate.UTC()
	} else {
		req.DueDate = now.Add(DueWithin(issue))
	}
	return req
}

// DueWithin returns the default correction window for an issue.
func DueWithin(issue types.CorrectableIssue) time.Duration {
	const day = 24 * time.Hour
	switch {
	case issue.LifeThreatening, issue.Severity == types.SeveritySevere:
		return day
	case issue.Severity == types.SeverityModerate:
		return 30 * day
	default:
		return 60 * day
	}
}
