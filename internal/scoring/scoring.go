// Package scoring computes the property deduction score and the unit
// performance score from a set of normalized issues.
//
// Scores are derived on demand from the issue set and a catalog snapshot.
// The engine never mutates issues or remediation state.
package scoring

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/compliance/internal/catalog"
	"github.com/matthewbaird/compliance/internal/metrics"
	"github.com/matthewbaird/compliance/internal/types"
)

// MaxScore is the score of a property without scorable defects.
const MaxScore = 100.0

// AutoFailThreshold is the unit performance score at which a unit fails
// automatically. It is the same for every property and tenant so scores
// stay comparable.
const AutoFailThreshold = 30.0

// Engine scores issue sets. It holds no state between calls and is safe for
// concurrent use.
type Engine struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New creates an Engine. Catalog misses are logged to log and counted in m.
func New(log *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{log: log, metrics: m}
}

// ScoreProperty computes the property deduction score.
//
// Repeat observations of the same defect (see CorrectableIssue.DedupKey)
// are counted once. Unscored categories and categories the catalog does not
// know still count toward DefectCount but never deduct points.
func (e *Engine) ScoreProperty(issues []types.CorrectableIssue, p catalog.Provider) types.ScoreBreakdown {
	b := types.ScoreBreakdown{
		TotalScore:  MaxScore,
		DefectCount: len(issues),
		Deductions:  []types.Deduction{},
	}

	seen := make(map[string]struct{}, len(issues))
	groups := make(map[string]*types.Deduction)
	misses := make(map[string]struct{})

	for _, issue := range issues {
		if p.IsUnscored(issue.Category) {
			continue
		}
		weight, ok := p.Weight(issue.Category)
		if !ok {
			e.lookupMiss(issue)
			misses[issue.Category] = struct{}{}
			continue
		}
		key := issue.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		d, ok := groups[issue.Category]
		if !ok {
			d = &types.Deduction{Category: issue.Category, Weight: weight}
			groups[issue.Category] = d
		}
		d.UniqueDefects++
	}

	for _, d := range groups {
		d.TotalPoints = d.Weight * float64(d.UniqueDefects)
		b.TotalDeductions += d.TotalPoints
		b.UniqueDefectCount += d.UniqueDefects
		b.Deductions = append(b.Deductions, *d)
	}
	sort.Slice(b.Deductions, func(i, j int) bool {
		di, dj := b.Deductions[i], b.Deductions[j]
		if di.TotalPoints != dj.TotalPoints {
			return di.TotalPoints > dj.TotalPoints
		}
		return di.Category < dj.Category
	})

	b.TotalScore = math.Max(0, MaxScore-b.TotalDeductions)

	for c := range misses {
		b.CatalogMisses = append(b.CatalogMisses, c)
	}
	sort.Strings(b.CatalogMisses)
	return b
}

// ScoreUnit computes the unit performance score of unitID. Only issues
// recorded against that unit contribute.
func (e *Engine) ScoreUnit(issues []types.CorrectableIssue, unitID string, p catalog.Provider) types.UnitPerformanceScore {
	ups := types.UnitPerformanceScore{UnitID: unitID}
	seen := make(map[string]struct{})

	for _, issue := range issues {
		if issue.UnitID != unitID || p.IsUnscored(issue.Category) {
			continue
		}
		key := issue.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		points, ok := e.unitPoints(issue, p)
		if !ok {
			continue
		}
		seen[key] = struct{}{}
		ups.Score += points
	}

	ups.IsAutoFail = ups.Score >= AutoFailThreshold
	return ups
}

// ScoreUnits scores every unit that has at least one issue, ordered by
// score descending then unit id.
func (e *Engine) ScoreUnits(issues []types.CorrectableIssue, p catalog.Provider) []types.UnitPerformanceScore {
	units := make(map[string]struct{})
	for _, issue := range issues {
		if issue.UnitID != "" {
			units[issue.UnitID] = struct{}{}
		}
	}
	out := make([]types.UnitPerformanceScore, 0, len(units))
	for u := range units {
		out = append(out, e.ScoreUnit(issues, u, p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out
}

// unitPoints returns the unit-score contribution of one issue. A
// life-threatening defect never scores below the severe points of its
// category, whatever its pre-assigned point value or multiplier.
func (e *Engine) unitPoints(issue types.CorrectableIssue, p catalog.Provider) (float64, bool) {
	severityPoints, ok := p.SeverityPoints(issue.Category, issue.Severity)
	if !ok {
		e.lookupMiss(issue)
		return 0, false
	}
	base := severityPoints
	if issue.PointValue != nil {
		base = *issue.PointValue
	}
	if !issue.LifeThreatening {
		return base, true
	}

	points := base * p.LifeThreateningMultiplier(issue.Category)
	// Severe is the highest non-life-threatening severity.
	floor, _ := p.SeverityPoints(issue.Category, types.SeveritySevere)
	return math.Max(points, floor), true
}

func (e *Engine) lookupMiss(issue types.CorrectableIssue) {
	err := &catalog.LookupMissError{Category: issue.Category, IssueID: issue.ID}
	e.log.Warn("data quality: issue category not in catalog; contributing zero points",
		zap.String("issue_id", issue.ID),
		zap.String("property_id", issue.PropertyID),
		zap.String("category", issue.Category),
		zap.Error(err))
	e.metrics.CatalogMiss(issue.Category)
}

// ScorePortfolio scores many properties concurrently. Each property is
// scored independently against the same catalog snapshot.
func (e *Engine) ScorePortfolio(ctx context.Context, byProperty map[string][]types.CorrectableIssue, p catalog.Provider) (map[string]types.ScoreBreakdown, error) {
	type result struct {
		propertyID string
		breakdown  types.ScoreBreakdown
	}
	results := make(chan result, len(byProperty))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for propertyID, issues := range byProperty {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results <- result{propertyID: propertyID, breakdown: e.ScoreProperty(issues, p)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	out := make(map[string]types.ScoreBreakdown, len(byProperty))
	for r := range results {
		out[r.propertyID] = r.breakdown
	}
	return out, nil
}
