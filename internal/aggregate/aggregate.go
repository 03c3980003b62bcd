// Package aggregate rolls issues and their corrective projections up into
// dashboard statistics. Everything here is recomputed per call.
package aggregate

import (
	"sort"

	"github.com/matthewbaird/compliance/internal/catalog"
	"github.com/matthewbaird/compliance/internal/priority"
	"github.com/matthewbaird/compliance/internal/scoring"
	"github.com/matthewbaird/compliance/internal/types"
)

// Stats is the rollup of one issue set.
type Stats struct {
	// PerStage counts tracked issues by corrective stage. Every stage is
	// present; the values sum to Tracked.
	PerStage map[types.CorrectiveStatus]int `json:"per_stage"`
	Tracked  int                            `json:"tracked"`

	// PerCategory is the deduction points each category contributes to the
	// property score of the open issues.
	PerCategory map[string]float64 `json:"per_category"`

	// FinancialExposure sums the estimated cost of open issues, one entry
	// per currency ordered by currency code.
	FinancialExposure []types.Money `json:"financial_exposure"`

	OpenIssues int                                   `json:"open_issues"`
	TierCounts [priority.NumTiers]priority.TierCount `json:"tier_counts"`
}

// Aggregator computes Stats.
type Aggregator struct {
	engine *scoring.Engine
}

// New creates an Aggregator that scores categories with engine.
func New(engine *scoring.Engine) *Aggregator {
	return &Aggregator{engine: engine}
}

// Stats rolls up issues and the corrective projections tracked for them.
func (a *Aggregator) Stats(issues []types.CorrectableIssue, corrective []types.CorrectiveIssue, p catalog.Provider) Stats {
	s := Stats{
		PerStage:    make(map[types.CorrectiveStatus]int, len(types.Statuses)),
		PerCategory: make(map[string]float64),
		Tracked:     len(corrective),
	}
	for _, st := range types.Statuses {
		s.PerStage[st] = 0
	}
	for _, ci := range corrective {
		s.PerStage[ci.Status]++
	}

	open := OpenIssues(issues, corrective)
	s.OpenIssues = len(open)

	for _, d := range a.engine.ScoreProperty(open, p).Deductions {
		s.PerCategory[d.Category] = d.TotalPoints
	}

	totals := make(map[string]int64)
	for _, issue := range open {
		if issue.EstimatedCost != nil {
			totals[issue.EstimatedCost.Currency] += issue.EstimatedCost.AmountCents
		}
	}
	s.FinancialExposure = make([]types.Money, 0, len(totals))
	for currency, cents := range totals {
		s.FinancialExposure = append(s.FinancialExposure, types.Money{AmountCents: cents, Currency: currency})
	}
	sort.Slice(s.FinancialExposure, func(i, j int) bool {
		return s.FinancialExposure[i].Currency < s.FinancialExposure[j].Currency
	})

	s.TierCounts = priority.Classify(open)
	return s
}

// OpenIssues returns the issues not resolved by a closed corrective issue,
// in input order. Closing one observation of a unique defect resolves the
// earlier and concurrent observations of it too, so the defect stops
// deducting from the score. Untracked issues are open.
func OpenIssues(issues []types.CorrectableIssue, corrective []types.CorrectiveIssue) []types.CorrectableIssue {
	closed := make(map[string][]types.CorrectiveIssue)
	for _, ci := range corrective {
		if ci.Status.Terminal() {
			k := defectKey(ci.CorrectableIssue)
			closed[k] = append(closed[k], ci)
		}
	}
	out := make([]types.CorrectableIssue, 0, len(issues))
	for _, issue := range issues {
		if !resolved(issue, closed[defectKey(issue)]) {
			out = append(out, issue)
		}
	}
	return out
}

func defectKey(issue types.CorrectableIssue) string {
	return issue.PropertyID + "\x00" + issue.DedupKey()
}

func resolved(issue types.CorrectableIssue, closed []types.CorrectiveIssue) bool {
	for _, ci := range closed {
		if ci.Resolves(issue) {
			return true
		}
	}
	return false
}

// ByProperty groups issues by PropertyID, preserving input order within a
// property.
func ByProperty(issues []types.CorrectableIssue) map[string][]types.CorrectableIssue {
	out := make(map[string][]types.CorrectableIssue)
	for _, issue := range issues {
		out[issue.PropertyID] = append(out[issue.PropertyID], issue)
	}
	return out
}
