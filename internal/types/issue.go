package types

import (
	"fmt"
	"time"
)

// SourceModule names the module that observed a defect.
type SourceModule string

const (
	SourceInspection   SourceModule = "inspection"
	SourceDailyGrounds SourceModule = "daily_grounds"
	SourcePermit       SourceModule = "permit"
	SourceManual       SourceModule = "manual"
)

// Valid reports whether m is one of the known source modules.
func (m SourceModule) Valid() bool {
	switch m {
	case SourceInspection, SourceDailyGrounds, SourcePermit, SourceManual:
		return true
	}
	return false
}

// Area is the inspectable area a defect was found in.
type Area string

const (
	AreaInsideUnit   Area = "inside_unit"
	AreaInsideCommon Area = "inside_common"
	AreaOutside      Area = "outside"
)

// Areas lists every area in descending urgency order.
var Areas = []Area{AreaInsideUnit, AreaInsideCommon, AreaOutside}

// ParseArea validates s as an Area.
func ParseArea(s string) (Area, error) {
	switch a := Area(s); a {
	case AreaInsideUnit, AreaInsideCommon, AreaOutside:
		return a, nil
	}
	return "", fmt.Errorf("unknown area %q", s)
}

// Severity is the regulatory severity of a defect.
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeveritySevere, SeverityModerate, SeverityLow}

// ParseSeverity validates s as a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch sv := Severity(s); sv {
	case SeveritySevere, SeverityModerate, SeverityLow:
		return sv, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// CorrectableIssue is the canonical shape every defect-like record is
// normalized into. Values are never mutated after normalization.
type CorrectableIssue struct {
	ID              string       `json:"id"`
	SourceModule    SourceModule `json:"source_module"`
	PropertyID      string       `json:"property_id"`
	UnitID          string       `json:"unit_id,omitempty"`
	Area            Area         `json:"area"`
	Category        string       `json:"category"`
	ItemKey         string       `json:"item_key,omitempty"`
	Severity        Severity     `json:"severity"`
	LifeThreatening bool         `json:"life_threatening"`
	PointValue      *float64     `json:"point_value,omitempty"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	EstimatedCost   *Money       `json:"estimated_cost,omitempty"`
	RegressionOf    string       `json:"regression_of,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// DedupKey identifies the unique defect an observation belongs to. Repeat
// observations of the same catalog item in the same area share a key.
// Issues without a catalog item never merge with anything else.
func (i CorrectableIssue) DedupKey() string {
	item := i.ItemKey
	if item == "" {
		item = "#" + i.ID
	}
	return i.Category + "\x00" + item + "\x00" + string(i.Area)
}

// Checklist is the verification checklist every corrected issue must pass
// before it can be marked verified.
type Checklist struct {
	PhysicalInspectionDone    bool `json:"physical_inspection_done"`
	ConditionCorrected        bool `json:"condition_corrected"`
	SurroundingAreaAcceptable bool `json:"surrounding_area_acceptable"`
	NoNewDefectsFound         bool `json:"no_new_defects_found"`
	DocumentationComplete     bool `json:"documentation_complete"`
}

// Missing returns the names of unconfirmed checklist items.
func (c Checklist) Missing() []string {
	var missing []string
	if !c.PhysicalInspectionDone {
		missing = append(missing, "physical inspection done")
	}
	if !c.ConditionCorrected {
		missing = append(missing, "condition corrected")
	}
	if !c.SurroundingAreaAcceptable {
		missing = append(missing, "surrounding area acceptable")
	}
	if !c.NoNewDefectsFound {
		missing = append(missing, "no new defects found")
	}
	if !c.DocumentationComplete {
		missing = append(missing, "documentation complete")
	}
	return missing
}

// Complete reports whether every checklist item is confirmed.
func (c Checklist) Complete() bool {
	return len(c.Missing()) == 0
}

// CorrectiveIssue is the remediation projection of a CorrectableIssue.
// Only the corrective state machine writes the fields below the embedded issue.
type CorrectiveIssue struct {
	CorrectableIssue

	Status            CorrectiveStatus `json:"corrective_status"`
	LinkedWorkOrderID string           `json:"linked_work_order_id,omitempty"`
	Checklist         Checklist        `json:"checklist"`
	VerificationNotes string           `json:"verification_notes,omitempty"`
	ClosureNotes      string           `json:"closure_notes,omitempty"`
	VerifiedAt        *time.Time       `json:"verified_at,omitempty"`
	ClosedAt          *time.Time       `json:"closed_at,omitempty"`
	TrackedAt         time.Time        `json:"tracked_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Version           int64            `json:"version"`
}

// Resolves reports whether ci's closure resolves the observation issue.
// A closed corrective issue resolves its own observation and every other
// observation of the same unique defect on the property made no later than
// the closure. Later observations are regressions and stay open.
func (ci CorrectiveIssue) Resolves(issue CorrectableIssue) bool {
	if !ci.Status.Terminal() {
		return false
	}
	if ci.ID == issue.ID {
		return true
	}
	return ci.ClosedAt != nil && ci.sameDefect(issue) && !issue.CreatedAt.After(*ci.ClosedAt)
}

// Covers reports whether ci already accounts for the observation issue:
// either remediation of its unique defect is in progress, or ci resolved it.
func (ci CorrectiveIssue) Covers(issue CorrectableIssue) bool {
	if !ci.Status.Terminal() {
		return ci.ID == issue.ID || ci.sameDefect(issue)
	}
	return ci.Resolves(issue)
}

func (ci CorrectiveIssue) sameDefect(issue CorrectableIssue) bool {
	return ci.PropertyID == issue.PropertyID && ci.DedupKey() == issue.DedupKey()
}
