package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/compliance/internal/types"
)

var observed = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func inspection(id string) InspectionDefect {
	return InspectionDefect{
		ID:             id,
		InspectionID:   "insp-1",
		PropertyID:     "prop-1",
		UnitID:         "101",
		Location:       "inside_unit",
		CatalogItemID:  "P-12",
		DefectCategory: "Plumbing",
		Severity:       "moderate",
		Title:          "Leaking supply line",
		InspectedAt:    observed,
	}
}

func TestNormalize_Inspection(t *testing.T) {
	issues, errs := Normalize([]SourceRecord{FromInspection(inspection("d-1"))})
	require.Empty(t, errs)
	require.Len(t, issues, 1)

	got := issues[0]
	assert.Equal(t, "inspection:d-1", got.ID)
	assert.Equal(t, types.SourceInspection, got.SourceModule)
	assert.Equal(t, types.AreaInsideUnit, got.Area)
	assert.Equal(t, types.SeverityModerate, got.Severity)
	assert.Equal(t, "P-12", got.ItemKey)
	assert.Equal(t, observed, got.CreatedAt)
}

func TestNormalize_RejectsMissingFieldsAndKeepsOthers(t *testing.T) {
	noItem := inspection("d-2")
	noItem.CatalogItemID = ""
	noArea := inspection("d-3")
	noArea.Location = ""

	issues, errs := Normalize([]SourceRecord{
		FromInspection(inspection("d-1")),
		FromInspection(noItem),
		FromInspection(noArea),
	})
	require.Len(t, issues, 1)
	require.Len(t, errs, 2)

	var mi *MalformedIssueError
	require.True(t, errors.As(errs[0], &mi))
	assert.Equal(t, "item_key", mi.Field)
	assert.Equal(t, "d-2", mi.RecordID)
	require.True(t, errors.As(errs[1], &mi))
	assert.Equal(t, "area", mi.Field)
	assert.ErrorIs(t, errs[1], ErrMalformedIssue)
}

func TestNormalize_FieldRules(t *testing.T) {
	base := FromManual(SourceRecord{
		ID:         "m-1",
		PropertyID: "prop-1",
		Area:       "outside",
		Category:   "Site",
		Severity:   "low",
		Title:      "Cracked walkway",
		ObservedAt: observed,
	})

	tests := []struct {
		name  string
		edit  func(*SourceRecord)
		field string
	}{
		{"unknown severity", func(r *SourceRecord) { r.Severity = "catastrophic" }, "severity"},
		{"missing severity", func(r *SourceRecord) { r.Severity = "" }, "severity"},
		{"unknown area", func(r *SourceRecord) { r.Area = "roof" }, "area"},
		{"missing property", func(r *SourceRecord) { r.PropertyID = " " }, "property_id"},
		{"missing category", func(r *SourceRecord) { r.Category = "" }, "category"},
		{"missing title", func(r *SourceRecord) { r.Title = "" }, "title"},
		{"missing observed_at", func(r *SourceRecord) { r.ObservedAt = time.Time{} }, "observed_at"},
		{"life threatening low", func(r *SourceRecord) { r.LifeThreatening = true }, "life_threatening"},
		{"inside unit without unit", func(r *SourceRecord) { r.Area = "inside_unit" }, "unit_id"},
		{"unknown module", func(r *SourceRecord) { r.Module = "email" }, "module"},
		{"negative points", func(r *SourceRecord) { v := -1.0; r.PointValue = &v }, "point_value"},
		{"cost without currency", func(r *SourceRecord) { r.EstimatedCost = &types.Money{AmountCents: 100} }, "estimated_cost.currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.edit(&r)
			_, err := NormalizeOne(r)
			var mi *MalformedIssueError
			require.True(t, errors.As(err, &mi), "err = %v", err)
			assert.Equal(t, tt.field, mi.Field)
		})
	}

	_, err := NormalizeOne(base)
	assert.NoError(t, err, "manual records do not need an item key")
}

func TestFromDailyGroundsAndPermit(t *testing.T) {
	grounds := FromDailyGrounds(GroundsFinding{
		ID: "g-1", PropertyID: "prop-1", Zone: "outside", Category: "Site",
		Severity: "severe", Hazard: true, Finding: "Exposed wiring at light pole", WalkedAt: observed,
	})
	permit := FromPermit(PermitViolation{
		ID: "v-9", PermitID: "pm-1", PropertyID: "prop-1", Area: "inside_common",
		Code: "NFPA-101", Category: "Fire Safety", Severity: "moderate",
		Fine: &types.Money{AmountCents: 25000, Currency: "USD"}, CitedAt: observed,
		PriorIssueRef: "permit:v-2",
	})

	issues, errs := Normalize([]SourceRecord{grounds, permit})
	require.Empty(t, errs)
	require.Len(t, issues, 2)

	assert.Equal(t, "daily_grounds:g-1", issues[0].ID)
	assert.True(t, issues[0].LifeThreatening)
	assert.Empty(t, issues[0].ItemKey)

	assert.Equal(t, "permit:v-9", issues[1].ID)
	assert.Equal(t, "Permit violation NFPA-101", issues[1].Title)
	assert.Equal(t, "NFPA-101", issues[1].ItemKey)
	assert.Equal(t, "permit:v-2", issues[1].RegressionOf)
	assert.Equal(t, int64(25000), issues[1].EstimatedCost.AmountCents)
}
