package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/catalog"
	"github.com/matthewbaird/compliance/internal/scoring"
	"github.com/matthewbaird/compliance/internal/types"
)

var cat = catalog.MustNew("test", []catalog.Category{
	{Name: "Plumbing", Weight: 3, Points: catalog.Points{Severe: 18, Moderate: 8, Low: 2}},
	{Name: "Electrical", Weight: 5, Points: catalog.Points{Severe: 16, Moderate: 6, Low: 2}},
})

func issue(id, category, item string, cost *types.Money) types.CorrectableIssue {
	return types.CorrectableIssue{
		ID:            id,
		PropertyID:    "prop-1",
		Area:          types.AreaOutside,
		Category:      category,
		ItemKey:       item,
		Severity:      types.SeverityModerate,
		EstimatedCost: cost,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func projection(i types.CorrectableIssue, st types.CorrectiveStatus) types.CorrectiveIssue {
	return types.CorrectiveIssue{CorrectableIssue: i, Status: st, Version: int64(st)}
}

func usd(c int64) *types.Money { return &types.Money{AmountCents: c, Currency: "USD"} }

func TestStats(t *testing.T) {
	a := issue("a", "Plumbing", "P-1", usd(10000))
	b := issue("b", "Plumbing", "P-2", usd(5000))
	c := issue("c", "Electrical", "E-1", &types.Money{AmountCents: 700, Currency: "CAD"})
	d := issue("d", "Electrical", "E-2", usd(99999)) // closed, excluded from exposure
	e := issue("e", "Plumbing", "P-3", nil)

	corrective := []types.CorrectiveIssue{
		projection(a, types.StatusWorkOrderCreated),
		projection(c, types.StatusVerified),
		projection(d, types.StatusClosed),
	}

	s := New(scoring.New(zap.NewNop(), nil)).Stats([]types.CorrectableIssue{a, b, c, d, e}, corrective, cat)

	assert.Equal(t, map[types.CorrectiveStatus]int{
		types.StatusNeedsWorkOrder:   0,
		types.StatusWorkOrderCreated: 1,
		types.StatusWorkCompleted:    0,
		types.StatusVerified:         1,
		types.StatusClosed:           1,
	}, s.PerStage)
	assert.Equal(t, 3, s.Tracked)
	assert.Equal(t, 4, s.OpenIssues)
	assert.Equal(t, map[string]float64{"Plumbing": 9, "Electrical": 5}, s.PerCategory)
	assert.Equal(t, []types.Money{{AmountCents: 700, Currency: "CAD"}, {AmountCents: 15000, Currency: "USD"}}, s.FinancialExposure)

	total := 0
	for _, tc := range s.TierCounts {
		total += tc.Count
	}
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, s.TierCounts[8].Count, "moderate outside is rank 9")
}

func TestStats_Empty(t *testing.T) {
	s := New(scoring.New(zap.NewNop(), nil)).Stats(nil, nil, cat)
	assert.Len(t, s.PerStage, 5)
	assert.Zero(t, s.Tracked)
	assert.NotNil(t, s.FinancialExposure)
	assert.Empty(t, s.FinancialExposure)
}

func TestStats_StageCountsSumToTracked(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	agg := New(scoring.New(zap.NewNop(), nil))
	for n := 0; n < 100; n++ {
		var corrective []types.CorrectiveIssue
		for i := 0; i < rng.Intn(30); i++ {
			st := types.Statuses[rng.Intn(len(types.Statuses))]
			corrective = append(corrective, projection(issue(string(rune('a'+i)), "Plumbing", "P", nil), st))
		}
		s := agg.Stats(nil, corrective, cat)
		sum := 0
		for _, c := range s.PerStage {
			sum += c
		}
		require.Equal(t, s.Tracked, sum)
	}
}

func TestOpenIssues(t *testing.T) {
	a := issue("a", "Plumbing", "P-1", nil)
	b := issue("b", "Plumbing", "P-2", nil)
	c := issue("c", "Plumbing", "P-3", nil)
	open := OpenIssues([]types.CorrectableIssue{a, b, c}, []types.CorrectiveIssue{
		projection(b, types.StatusClosed),
		projection(c, types.StatusVerified),
	})
	assert.Equal(t, []types.CorrectableIssue{a, c}, open)
}

func TestOpenIssues_ClosureResolvesEarlierObservations(t *testing.T) {
	first := issue("first", "Plumbing", "P-1", nil)
	closed := projection(first, types.StatusClosed)
	closedAt := first.CreatedAt.Add(72 * time.Hour)
	closed.ClosedAt = &closedAt

	repeat := issue("repeat", "Plumbing", "P-1", nil)
	repeat.CreatedAt = first.CreatedAt.Add(24 * time.Hour)
	regression := issue("regression", "Plumbing", "P-1", nil)
	regression.CreatedAt = closedAt.Add(time.Hour)
	elsewhere := issue("elsewhere", "Plumbing", "P-1", nil)
	elsewhere.PropertyID = "prop-2"

	open := OpenIssues([]types.CorrectableIssue{first, repeat, regression, elsewhere}, []types.CorrectiveIssue{closed})
	assert.Equal(t, []types.CorrectableIssue{regression, elsewhere}, open)
}

func TestByProperty(t *testing.T) {
	a := issue("a", "Plumbing", "P-1", nil)
	b := issue("b", "Plumbing", "P-2", nil)
	b.PropertyID = "prop-2"
	c := issue("c", "Plumbing", "P-3", nil)
	got := ByProperty([]types.CorrectableIssue{a, b, c})
	assert.Equal(t, []types.CorrectableIssue{a, c}, got["prop-1"])
	assert.Equal(t, []types.CorrectableIssue{b}, got["prop-2"])
}
