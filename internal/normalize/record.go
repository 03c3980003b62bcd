// Package normalize converts defect-like records from the inspection,
// daily grounds, permit, and manual-entry modules into CorrectableIssues.
//
// SourceRecord is the only contract a source module has to satisfy. A new
// module adds one mapping function returning a SourceRecord.
package normalize

import (
	"strings"
	"time"

	"github.com/matthewbaird/compliance/internal/types"
)

// SourceRecord is the module-independent input shape of the normalizer.
// Area and severity are kept as raw strings so that bad values are reported
// instead of coerced.
type SourceRecord struct {
	ID              string             `json:"id"`
	Module          types.SourceModule `json:"module"`
	PropertyID      string             `json:"property_id"`
	UnitID          string             `json:"unit_id,omitempty"`
	Area            string             `json:"area"`
	Category        string             `json:"category"`
	ItemKey         string             `json:"item_key,omitempty"`
	Severity        string             `json:"severity"`
	LifeThreatening bool               `json:"life_threatening"`
	PointValue      *float64           `json:"point_value,omitempty"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	EstimatedCost   *types.Money       `json:"estimated_cost,omitempty"`
	RegressionOf    string             `json:"regression_of,omitempty"`
	ObservedAt      time.Time          `json:"observed_at"`
}

// InspectionDefect is a defect recorded against a catalog item during a
// physical inspection.
type InspectionDefect struct {
	ID              string       `json:"id"`
	InspectionID    string       `json:"inspection_id"`
	PropertyID      string       `json:"property_id"`
	UnitID          string       `json:"unit_id,omitempty"`
	Location        string       `json:"location"`
	CatalogItemID   string       `json:"catalog_item_id"`
	DefectCategory  string       `json:"defect_category"`
	Severity        string       `json:"severity"`
	LifeThreatening bool         `json:"life_threatening"`
	PointValue      *float64     `json:"point_value,omitempty"`
	Title           string       `json:"title"`
	Comments        string       `json:"comments,omitempty"`
	RepairEstimate  *types.Money `json:"repair_estimate,omitempty"`
	InspectedAt     time.Time    `json:"inspected_at"`
}

// FromInspection maps an inspection defect. The catalog item id is the
// dedup key, so repeat inspections of the same item collapse into one
// unique defect.
func FromInspection(d InspectionDefect) SourceRecord {
	return SourceRecord{
		ID:              d.ID,
		Module:          types.SourceInspection,
		PropertyID:      d.PropertyID,
		UnitID:          d.UnitID,
		Area:            d.Location,
		Category:        d.DefectCategory,
		ItemKey:         d.CatalogItemID,
		Severity:        d.Severity,
		LifeThreatening: d.LifeThreatening,
		PointValue:      d.PointValue,
		Title:           d.Title,
		Description:     d.Comments,
		EstimatedCost:   d.RepairEstimate,
		ObservedAt:      d.InspectedAt,
	}
}

// GroundsFinding is a finding from a daily grounds walk. Grounds walks
// cover exterior and common areas, never unit interiors.
type GroundsFinding struct {
	ID         string       `json:"id"`
	PropertyID string       `json:"property_id"`
	Zone       string       `json:"zone"`
	Category   string       `json:"category"`
	Severity   string       `json:"severity"`
	Hazard     bool         `json:"hazard"`
	Finding    string       `json:"finding"`
	Notes      string       `json:"notes,omitempty"`
	Estimate   *types.Money `json:"estimate,omitempty"`
	WalkedAt   time.Time    `json:"walked_at"`
}

// FromDailyGrounds maps a daily grounds finding.
func FromDailyGrounds(f GroundsFinding) SourceRecord {
	return SourceRecord{
		ID:              f.ID,
		Module:          types.SourceDailyGrounds,
		PropertyID:      f.PropertyID,
		Area:            f.Zone,
		Category:        f.Category,
		Severity:        f.Severity,
		LifeThreatening: f.Hazard,
		Title:           f.Finding,
		Description:     f.Notes,
		EstimatedCost:   f.Estimate,
		ObservedAt:      f.WalkedAt,
	}
}

// PermitViolation is a violation cited against a permit. The violation
// code plays the role of the catalog item.
type PermitViolation struct {
	ID            string       `json:"id"`
	PermitID      string       `json:"permit_id"`
	PropertyID    string       `json:"property_id"`
	UnitID        string       `json:"unit_id,omitempty"`
	Area          string       `json:"area"`
	Code          string       `json:"code"`
	Category      string       `json:"category"`
	Severity      string       `json:"severity"`
	LifeSafety    bool         `json:"life_safety"`
	Description   string       `json:"description"`
	Fine          *types.Money `json:"fine,omitempty"`
	CitedAt       time.Time    `json:"cited_at"`
	PriorIssueRef string       `json:"prior_issue_ref,omitempty"`
}

// FromPermit maps a permit violation. Outstanding fines count as exposure.
func FromPermit(v PermitViolation) SourceRecord {
	return SourceRecord{
		ID:              v.ID,
		Module:          types.SourcePermit,
		PropertyID:      v.PropertyID,
		UnitID:          v.UnitID,
		Area:            v.Area,
		Category:        v.Category,
		ItemKey:         v.Code,
		Severity:        v.Severity,
		LifeThreatening: v.LifeSafety,
		Title:           strings.TrimSpace("Permit violation " + v.Code),
		Description:     v.Description,
		EstimatedCost:   v.Fine,
		RegressionOf:    v.PriorIssueRef,
		ObservedAt:      v.CitedAt,
	}
}

// FromManual stamps a hand-entered record with the manual module.
func FromManual(r SourceRecord) SourceRecord {
	r.Module = types.SourceManual
	return r
}
