package types

import "fmt"

// CorrectiveStatus is the closed set of remediation stages. The zero value
// is not a valid stage so an uninitialized issue can never pass for one.
type CorrectiveStatus uint8

const (
	StatusNeedsWorkOrder CorrectiveStatus = iota + 1
	StatusWorkOrderCreated
	StatusWorkCompleted
	StatusVerified
	StatusClosed
)

// Statuses lists every stage in lifecycle order.
var Statuses = []CorrectiveStatus{
	StatusNeedsWorkOrder,
	StatusWorkOrderCreated,
	StatusWorkCompleted,
	StatusVerified,
	StatusClosed,
}

var statusNames = map[CorrectiveStatus]string{
	StatusNeedsWorkOrder:   "needs_work_order",
	StatusWorkOrderCreated: "work_order_created",
	StatusWorkCompleted:    "work_completed",
	StatusVerified:         "verified",
	StatusClosed:           "closed",
}

func (s CorrectiveStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CorrectiveStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the five stages.
func (s CorrectiveStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no further transition leaves s.
func (s CorrectiveStatus) Terminal() bool { return s == StatusClosed }

// ParseStatus converts a stage name into a CorrectiveStatus.
func ParseStatus(name string) (CorrectiveStatus, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown corrective status %q", name)
}

func (s CorrectiveStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid corrective status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *CorrectiveStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
