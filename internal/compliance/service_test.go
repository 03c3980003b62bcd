package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/catalog"
	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/metrics"
	"github.com/matthewbaird/compliance/internal/normalize"
	"github.com/matthewbaird/compliance/internal/store"
	"github.com/matthewbaird/compliance/internal/types"
	"github.com/matthewbaird/compliance/internal/workorder"
)

var observed = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func testCatalog() *catalog.Store {
	return catalog.NewStore(catalog.MustNew("test", []catalog.Category{
		{Name: "Plumbing", Weight: 3, Points: catalog.Points{Severe: 18, Moderate: 8, Low: 2}, LifeThreateningMultiplier: 2},
		{Name: "Electrical", Weight: 5, Points: catalog.Points{Severe: 16, Moderate: 6, Low: 2}, LifeThreateningMultiplier: 2},
	}), zap.NewNop(), nil)
}

func record(id, category, item, severity string) normalize.SourceRecord {
	return normalize.SourceRecord{
		ID:         id,
		Module:     types.SourceInspection,
		PropertyID: "prop-1",
		UnitID:     "101",
		Area:       string(types.AreaInsideUnit),
		Category:   category,
		ItemKey:    item,
		Severity:   severity,
		Title:      "Defect " + id,
		ObservedAt: observed,
	}
}

func newService(t *testing.T, m *metrics.Metrics) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return New(st, st, testCatalog(), zap.NewNop(), m), st
}

func TestIngest(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc, _ := newService(t, metrics.New(reg))
	ctx := context.Background()

	noItem := record("3", "Plumbing", "", "moderate")
	other := record("4", "Plumbing", "P-9", "moderate")
	other.PropertyID = "prop-2"

	res, err := svc.Ingest(ctx, "prop-1", []normalize.SourceRecord{
		record("1", "Plumbing", "P-12", "moderate"),
		record("2", "Electrical", "E-1", "severe"),
		noItem,
		other,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, "item_key", res.Rejected[0].Field)
	assert.Equal(t, "property_id", res.Rejected[1].Field)
	n, err := testutil.GatherAndCount(reg, "compliance_normalizer_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-ingesting the same records inserts nothing new.
	res, err = svc.Ingest(ctx, "prop-1", []normalize.SourceRecord{record("1", "Plumbing", "P-12", "moderate")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.Zero(t, res.Inserted)

	issue, err := svc.Issue(ctx, "inspection:1")
	require.NoError(t, err)
	assert.Equal(t, "P-12", issue.ItemKey)
}

func TestPropertyScore_ClosedIssuesStopDeducting(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Ingest(ctx, "prop-1", []normalize.SourceRecord{
		record("1", "Plumbing", "P-12", "moderate"),
		record("2", "Electrical", "E-1", "severe"),
	})
	require.NoError(t, err)

	score, err := svc.PropertyScore(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 92.0, score.TotalScore)

	electrical, err := st.Issue(ctx, "inspection:2")
	require.NoError(t, err)
	require.NoError(t, st.Insert(ctx, types.CorrectiveIssue{
		CorrectableIssue: electrical,
		Status:           types.StatusClosed,
		Version:          5,
	}))

	score, err = svc.PropertyScore(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 97.0, score.TotalScore)

	stats, err := svc.Stats(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tracked)
	assert.Equal(t, 1, stats.PerStage[types.StatusClosed])
	assert.Equal(t, 1, stats.OpenIssues)
}

func TestClosingRepeatedDefectRestoresScore(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := corrective.WithActor(context.Background(), "inspector@example.com")
	closedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	machine := corrective.NewMachine(st, workorder.NewLocalService(nil),
		corrective.WithClock(func() time.Time { return closedAt }))

	// Two inspection visits saw the same leaking trap.
	_, err := svc.Ingest(ctx, "prop-1", []normalize.SourceRecord{
		record("1", "Plumbing", "P-12", "severe"),
		record("2", "Plumbing", "P-12", "severe"),
	})
	require.NoError(t, err)
	score, err := svc.PropertyScore(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 97.0, score.TotalScore)
	assert.Equal(t, 1, score.UniqueDefectCount)

	candidates, err := svc.TrackCandidates(ctx, "prop-1")
	require.NoError(t, err)
	tracked, err := machine.AutoTrack(ctx, candidates)
	require.NoError(t, err)
	require.Len(t, tracked, 1, "one unique defect, one corrective issue")

	id := tracked[0].ID
	ci, err := machine.CreateWorkOrder(ctx, id, corrective.WorkOrderSpec{})
	require.NoError(t, err)
	_, err = machine.MarkWorkCompleted(ctx, ci.LinkedWorkOrderID)
	require.NoError(t, err)
	_, err = machine.Verify(ctx, id, "trap replaced", types.Checklist{
		PhysicalInspectionDone:    true,
		ConditionCorrected:        true,
		SurroundingAreaAcceptable: true,
		NoNewDefectsFound:         true,
		DocumentationComplete:     true,
	})
	require.NoError(t, err)
	_, err = machine.Close(ctx, id, "closed out")
	require.NoError(t, err)

	score, err = svc.PropertyScore(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, score.TotalScore)
	assert.Zero(t, score.UniqueDefectCount)
	open, err := svc.OpenIssues(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, open)

	// A later visit finding the leak again is a regression and deducts again.
	again := record("3", "Plumbing", "P-12", "severe")
	again.ObservedAt = closedAt.Add(24 * time.Hour)
	again.RegressionOf = id
	_, err = svc.Ingest(ctx, "prop-1", []normalize.SourceRecord{again})
	require.NoError(t, err)

	score, err = svc.PropertyScore(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 97.0, score.TotalScore)

	candidates, err = svc.TrackCandidates(ctx, "prop-1")
	require.NoError(t, err)
	tracked, err = machine.AutoTrack(ctx, candidates)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "inspection:3", tracked[0].ID)
}

func TestUnitScoresAndPriorities(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	lt := record("3", "Electrical", "E-2", "severe")
	lt.LifeThreatening = true
	_, err := svc.Ingest(ctx, "", []normalize.SourceRecord{
		record("1", "Plumbing", "P-12", "moderate"),
		lt,
	})
	require.NoError(t, err)

	ups, err := svc.UnitScore(ctx, "prop-1", "101")
	require.NoError(t, err)
	assert.Equal(t, 40.0, ups.Score, "8 moderate + 16×2 life-threatening")
	assert.True(t, ups.IsAutoFail)

	all, err := svc.UnitScores(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ups, all[0])

	tiers, err := svc.Priorities(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tiers[0].Count)
	assert.Equal(t, 1, tiers[6].Count)

	ranked, err := svc.Ranked(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "inspection:3", ranked[0].Issue.ID)

	cands, err := svc.TrackCandidates(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "inspection:3", cands[0].ID)
}

func TestPortfolio(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	other := record("9", "Electrical", "E-1", "low")
	other.PropertyID = "prop-2"
	_, err := svc.Ingest(ctx, "", []normalize.SourceRecord{record("1", "Plumbing", "P-12", "moderate"), other})
	require.NoError(t, err)

	scores, err := svc.Portfolio(ctx)
	require.NoError(t, err)
	assert.Equal(t, 97.0, scores["prop-1"].TotalScore)
	assert.Equal(t, 95.0, scores["prop-2"].TotalScore)
}
