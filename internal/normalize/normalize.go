package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matthewbaird/compliance/internal/types"
)

// ErrMalformedIssue is the errors.Is target of every MalformedIssueError.
var ErrMalformedIssue = errors.New("malformed issue")

// MalformedIssueError reports a record that cannot be normalized because a
// mandatory field is missing or invalid.
type MalformedIssueError struct {
	RecordID string
	Module   types.SourceModule
	Field    string
	Reason   string
}

func (e *MalformedIssueError) Error() string {
	id := e.RecordID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("malformed issue %s (%s): %s: %s", id, e.Module, e.Field, e.Reason)
}

func (e *MalformedIssueError) Is(target error) bool { return target == ErrMalformedIssue }

// Normalize converts source records into CorrectableIssues. A malformed
// record is rejected with a *MalformedIssueError and the remaining records
// are still normalized. Issues keep the order of their records.
func Normalize(records []SourceRecord) ([]types.CorrectableIssue, []error) {
	issues := make([]types.CorrectableIssue, 0, len(records))
	var errs []error
	for _, r := range records {
		issue, err := NormalizeOne(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, errs
}

// NormalizeOne converts a single record.
func NormalizeOne(r SourceRecord) (types.CorrectableIssue, error) {
	malformed := func(field, reason string) error {
		return &MalformedIssueError{RecordID: r.ID, Module: r.Module, Field: field, Reason: reason}
	}

	if !r.Module.Valid() {
		return types.CorrectableIssue{}, malformed("module", fmt.Sprintf("unknown source module %q", r.Module))
	}
	if strings.TrimSpace(r.ID) == "" {
		return types.CorrectableIssue{}, malformed("id", "required")
	}
	if strings.TrimSpace(r.PropertyID) == "" {
		return types.CorrectableIssue{}, malformed("property_id", "required")
	}
	if r.Area == "" {
		return types.CorrectableIssue{}, malformed("area", "required")
	}
	area, err := types.ParseArea(r.Area)
	if err != nil {
		return types.CorrectableIssue{}, malformed("area", err.Error())
	}
	if r.Severity == "" {
		return types.CorrectableIssue{}, malformed("severity", "required")
	}
	severity, err := types.ParseSeverity(r.Severity)
	if err != nil {
		return types.CorrectableIssue{}, malformed("severity", err.Error())
	}
	if r.LifeThreatening && severity != types.SeveritySevere {
		return types.CorrectableIssue{}, malformed("life_threatening", "only severe defects can be life-threatening")
	}
	if strings.TrimSpace(r.Category) == "" {
		return types.CorrectableIssue{}, malformed("category", "required")
	}
	if r.Module == types.SourceInspection && strings.TrimSpace(r.ItemKey) == "" {
		return types.CorrectableIssue{}, malformed("item_key", "required for inspection defects")
	}
	if area == types.AreaInsideUnit && strings.TrimSpace(r.UnitID) == "" {
		return types.CorrectableIssue{}, malformed("unit_id", "required for inside_unit defects")
	}
	if strings.TrimSpace(r.Title) == "" {
		return types.CorrectableIssue{}, malformed("title", "required")
	}
	if r.ObservedAt.IsZero() {
		return types.CorrectableIssue{}, malformed("observed_at", "required")
	}
	if r.PointValue != nil && *r.PointValue < 0 {
		return types.CorrectableIssue{}, malformed("point_value", "must not be negative")
	}
	if r.EstimatedCost != nil && r.EstimatedCost.Currency == "" {
		return types.CorrectableIssue{}, malformed("estimated_cost.currency", "required when a cost is given")
	}

	return types.CorrectableIssue{
		ID:              IssueID(r.Module, r.ID),
		SourceModule:    r.Module,
		PropertyID:      r.PropertyID,
		UnitID:          r.UnitID,
		Area:            area,
		Category:        strings.TrimSpace(r.Category),
		ItemKey:         strings.TrimSpace(r.ItemKey),
		Severity:        severity,
		LifeThreatening: r.LifeThreatening,
		PointValue:      r.PointValue,
		Title:           r.Title,
		Description:     r.Description,
		EstimatedCost:   r.EstimatedCost,
		RegressionOf:    r.RegressionOf,
		CreatedAt:       r.ObservedAt.UTC(),
	}, nil
}

// IssueID is the canonical issue id for a record of the given module.
// Record ids are only unique within their module.
func IssueID(module types.SourceModule, recordID string) string {
	return string(module) + ":" + recordID
}
