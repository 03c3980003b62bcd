package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/compliance/internal/priority"
	"github.com/matthewbaird/compliance/internal/types"
)

const testCatalog = "../../internal/catalog/testdata/catalog.cue"

const testRecords = `[
  {"id": "1", "module": "inspection", "property_id": "P1", "unit_id": "U1", "area": "inside_unit",
   "category": "Plumbing", "item_key": "P-12", "severity": "severe", "title": "Leak", "observed_at": "2026-01-01T00:00:00Z"},
  {"id": "2", "module": "inspection", "property_id": "P1", "unit_id": "U1", "area": "inside_unit",
   "category": "Plumbing", "item_key": "P-12", "severity": "severe", "title": "Leak", "observed_at": "2026-02-01T00:00:00Z"},
  {"id": "3", "module": "daily_grounds", "property_id": "P2", "area": "outside",
   "category": "Electrical", "severity": "severe", "life_threatening": true, "title": "Exposed wire", "observed_at": "2026-02-01T00:00:00Z"},
  {"id": "4", "module": "inspection", "property_id": "P1", "area": "outside",
   "category": "Plumbing", "severity": "low", "title": "No item key", "observed_at": "2026-02-01T00:00:00Z"}
]`

func writeRecords(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(testRecords), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--catalog", testCatalog}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestScore_JSON(t *testing.T) {
	out, stderr, err := execute(t, "score", "-o", "json", writeRecords(t))
	require.NoError(t, err)
	assert.Contains(t, stderr, "item_key")

	var scores map[string]types.ScoreBreakdown
	require.NoError(t, json.Unmarshal([]byte(out), &scores))
	require.Len(t, scores, 2)

	// Repeat visits of P-12 count once: 100 - 3.
	assert.Equal(t, 97.0, scores["P1"].TotalScore)
	assert.Equal(t, 2, scores["P1"].DefectCount)
	assert.Equal(t, 1, scores["P1"].UniqueDefectCount)
	assert.Equal(t, 94.5, scores["P2"].TotalScore)
}

func TestScore_Text(t *testing.T) {
	out, _, err := execute(t, "score", writeRecords(t))
	require.NoError(t, err)
	assert.Contains(t, out, "PROPERTY")
	assert.Contains(t, out, "97.0")
}

func TestScore_Strict(t *testing.T) {
	_, _, err := execute(t, "score", "--strict", writeRecords(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4 records rejected")
}

func TestUnitScore(t *testing.T) {
	out, _, err := execute(t, "unit-score", "-o", "json", writeRecords(t))
	require.NoError(t, err)

	var rows []unitRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "P1", rows[0].PropertyID)
	assert.Equal(t, types.UnitPerformanceScore{UnitID: "U1", Score: 18}, rows[0].UnitPerformanceScore)

	out, _, err = execute(t, "unit-score", "-o", "json", "--unit", "U9", "--property", "P1", writeRecords(t))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []unitRow{{PropertyID: "P1", UnitPerformanceScore: types.UnitPerformanceScore{UnitID: "U9"}}}, rows)
}

func TestUnitScore_SameUnitIDInTwoProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"id": "1", "module": "inspection", "property_id": "P1", "unit_id": "U1", "area": "inside_unit",
   "category": "Plumbing", "item_key": "P-12", "severity": "severe", "title": "Leak", "observed_at": "2026-01-01T00:00:00Z"},
  {"id": "2", "module": "inspection", "property_id": "P2", "unit_id": "U1", "area": "inside_unit",
   "category": "Plumbing", "item_key": "P-12", "severity": "moderate", "title": "Drip", "observed_at": "2026-01-01T00:00:00Z"}
]`), 0o644))

	out, _, err := execute(t, "unit-score", "-o", "json", path)
	require.NoError(t, err)
	var rows []unitRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, unitRow{PropertyID: "P1", UnitPerformanceScore: types.UnitPerformanceScore{UnitID: "U1", Score: 18}}, rows[0])
	assert.Equal(t, unitRow{PropertyID: "P2", UnitPerformanceScore: types.UnitPerformanceScore{UnitID: "U1", Score: 8}}, rows[1])

	out, _, err = execute(t, "unit-score", "--unit", "U1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "P1")
	assert.Contains(t, out, "P2")
}

func TestPriorities(t *testing.T) {
	out, _, err := execute(t, "priorities", "-o", "json", writeRecords(t))
	require.NoError(t, err)

	var tiers []priority.TierCount
	require.NoError(t, json.Unmarshal([]byte(out), &tiers))
	require.Len(t, tiers, priority.NumTiers)
	assert.Equal(t, 1, tiers[2].Count, "life-threatening outside")
	assert.Equal(t, 2, tiers[3].Count, "severe inside unit")

	out, _, err = execute(t, "priorities", "--ranked", writeRecords(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Exposed wire")
}

func TestValidateCatalog(t *testing.T) {
	out, _, err := execute(t, "validate-catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "version 2026.1, 4 categories")

	bad := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte(`version: "x"
categories: "Plumbing": {weight: -1, points: {severe: 1, moderate: 1, low: 1}}`), 0o644))
	_, _, err = execute(t, "validate-catalog", bad)
	require.Error(t, err)
}

func TestUnknownOutput(t *testing.T) {
	_, _, err := execute(t, "score", "-o", "xml", writeRecords(t))
	require.Error(t, err)
}
