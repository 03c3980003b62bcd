package corrective

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matthewbaird/compliance/internal/types"
)

var (
	// ErrNotFound is returned when no corrective issue matches an id or
	// work order id.
	ErrNotFound = errors.New("corrective issue not found")

	// ErrAlreadyTracked is returned when tracking an issue id twice.
	ErrAlreadyTracked = errors.New("issue already tracked")

	// ErrGateNotSatisfied is matched by every *GateError.
	ErrGateNotSatisfied = errors.New("gate not satisfied")

	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConcurrentTransition means another transition of the same issue
	// committed first. Callers should reload the issue and retry.
	ErrConcurrentTransition = errors.New("concurrent transition conflict")

	// ErrWorkOrderService wraps failures of the work order service.
	ErrWorkOrderService = errors.New("work order service failed")
)

// Gate conditions.
const (
	ConditionWorkOrderLinked     = "work order already linked"
	ConditionChecklistIncomplete = "verification checklist incomplete"
	ConditionVerificationNotes   = "verification notes required"
	ConditionClosureNotes        = "closure notes required"
)

// GateError reports an unmet precondition. The issue is left unchanged.
type GateError struct {
	IssueID   string
	Event     Event
	Condition string
	Missing   []string
}

func (e *GateError) Error() string {
	msg := fmt.Sprintf("corrective issue %s: cannot %s: %s", e.IssueID, e.Event, e.Condition)
	if len(e.Missing) > 0 {
		msg += " (missing: " + strings.Join(e.Missing, ", ") + ")"
	}
	return msg
}

func (e *GateError) Is(target error) bool { return target == ErrGateNotSatisfied }

// TransitionError reports an event applied from a stage that does not
// support it.
type TransitionError struct {
	IssueID  string
	From     types.CorrectiveStatus
	Event    Event
	Required types.CorrectiveStatus
}

func (e *TransitionError) Error() string {
	if !e.Required.Valid() {
		return fmt.Sprintf("corrective issue %s: unknown event %s", e.IssueID, e.Event)
	}
	return fmt.Sprintf("corrective issue %s: cannot %s from %s; requires %s",
		e.IssueID, e.Event, e.From, e.Required)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
