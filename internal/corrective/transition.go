package corrective

import (
	"fmt"

	"github.com/matthewbaird/compliance/internal/event"
	"github.com/matthewbaird/compliance/internal/types"
)

// Event is a trigger that moves a corrective issue forward one stage.
type Event uint8

const (
	EventCreateWorkOrder Event = iota + 1
	EventMarkWorkCompleted
	EventVerify
	EventClose
)

var eventNames = map[Event]string{
	EventCreateWorkOrder:   "create_work_order",
	EventMarkWorkCompleted: "mark_work_completed",
	EventVerify:            "verify",
	EventClose:             "close",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

type edge struct{ from, to types.CorrectiveStatus }

// transitions is the complete lifecycle. Every edge moves forward one stage;
// there are no backward edges and nothing leaves closed.
var transitions = map[Event]edge{
	EventCreateWorkOrder:   {types.StatusNeedsWorkOrder, types.StatusWorkOrderCreated},
	EventMarkWorkCompleted: {types.StatusWorkOrderCreated, types.StatusWorkCompleted},
	EventVerify:            {types.StatusWorkCompleted, types.StatusVerified},
	EventClose:             {types.StatusVerified, types.StatusClosed},
}

// Next returns the stage ev leads to from the given stage. It is defined
// for every (status, event) pair: pairs outside the lifecycle return a
// *TransitionError naming the stage ev requires.
func Next(from types.CorrectiveStatus, ev Event) (types.CorrectiveStatus, error) {
	e, ok := transitions[ev]
	if !ok || e.from != from {
		return from, &TransitionError{From: from, Event: ev, Required: e.from}
	}
	return e.to, nil
}

// RequiredStage returns the stage ev must be applied from.
func RequiredStage(ev Event) (types.CorrectiveStatus, bool) {
	e, ok := transitions[ev]
	return e.from, ok
}

func (e Event) domainEvent(p event.TransitionPayload) event.DomainEvent {
	switch e {
	case EventCreateWorkOrder:
		return event.NewWorkOrderCreated(p)
	case EventMarkWorkCompleted:
		return event.NewWorkCompleted(p)
	case EventVerify:
		return event.NewIssueVerified(p)
	default:
		return event.NewIssueClosed(p)
	}
}
