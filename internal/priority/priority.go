// Package priority buckets issues into the twelve remediation tiers.
//
// A tier is the product of an area (where the defect is) and a severity band
// (severe and life-threatening, severe, moderate, low). Rank 1 is the most
// urgent: life-threatening defects inside a unit.
package priority

import (
	"errors"
	"fmt"
	"sort"

	"github.com/matthewbaird/compliance/internal/types"
)

// NumTiers is the number of priority tiers.
const NumTiers = 12

// ErrUnclassifiable is returned for issues whose area and severity do not
// name a tier. The normalizer never produces one.
var ErrUnclassifiable = errors.New("issue has no priority tier")

// Tier is one of the twelve priority buckets.
type Tier struct {
	Rank            int            `json:"rank"`
	Name            string         `json:"name"`
	Area            types.Area     `json:"area"`
	Severity        types.Severity `json:"severity"`
	LifeThreatening bool           `json:"life_threatening"`
}

// VisualWeight is the dashboard emphasis of the tier. It falls strictly as
// rank rises: rank 1 is 1.0, rank 12 is 1/12.
func (t Tier) VisualWeight() float64 {
	return float64(NumTiers-t.Rank+1) / NumTiers
}

// WorkOrderPriority maps the tier onto the priority vocabulary of the work
// order service.
func (t Tier) WorkOrderPriority() string {
	switch band(t.Rank - 1) {
	case bandLifeThreatening:
		return "emergency"
	case bandSevere:
		return "urgent"
	case bandModerate:
		return "normal"
	default:
		return "low"
	}
}

// TierCount is a tier together with the number of issues in it.
type TierCount struct {
	Tier
	Count        int     `json:"count"`
	VisualWeight float64 `json:"visual_weight"`
}

const (
	bandLifeThreatening = iota
	bandSevere
	bandModerate
	bandLow
)

var bandLabels = [...]string{
	bandLifeThreatening: "Life-threatening",
	bandSevere:          "Severe",
	bandModerate:        "Moderate",
	bandLow:             "Low",
}

var areaLabels = map[types.Area]string{
	types.AreaInsideUnit:   "inside unit",
	types.AreaInsideCommon: "inside common area",
	types.AreaOutside:      "outside",
}

// Tiers lists the twelve tiers in rank order.
var Tiers = buildTiers()

func buildTiers() [NumTiers]Tier {
	var out [NumTiers]Tier
	severities := [...]types.Severity{
		bandLifeThreatening: types.SeveritySevere,
		bandSevere:          types.SeveritySevere,
		bandModerate:        types.SeverityModerate,
		bandLow:             types.SeverityLow,
	}
	for b, sev := range severities {
		for a, area := range types.Areas {
			i := b*len(types.Areas) + a
			out[i] = Tier{
				Rank:            i + 1,
				Name:            bandLabels[b] + ", " + areaLabels[area],
				Area:            area,
				Severity:        sev,
				LifeThreatening: b == bandLifeThreatening,
			}
		}
	}
	return out
}

func band(index int) int { return index / len(types.Areas) }

func areaIndex(a types.Area) int {
	switch a {
	case types.AreaInsideUnit:
		return 0
	case types.AreaInsideCommon:
		return 1
	case types.AreaOutside:
		return 2
	}
	return -1
}

func severityBand(sev types.Severity, lifeThreatening bool) int {
	switch sev {
	case types.SeveritySevere:
		if lifeThreatening {
			return bandLifeThreatening
		}
		return bandSevere
	case types.SeverityModerate:
		if !lifeThreatening {
			return bandModerate
		}
	case types.SeverityLow:
		if !lifeThreatening {
			return bandLow
		}
	}
	return -1
}

func index(issue types.CorrectableIssue) (int, error) {
	a := areaIndex(issue.Area)
	b := severityBand(issue.Severity, issue.LifeThreatening)
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: %s (area=%q severity=%q life_threatening=%t)",
			ErrUnclassifiable, issue.ID, issue.Area, issue.Severity, issue.LifeThreatening)
	}
	return b*len(types.Areas) + a, nil
}

// TierFor returns the tier of issue.
func TierFor(issue types.CorrectableIssue) (Tier, error) {
	i, err := index(issue)
	if err != nil {
		return Tier{}, err
	}
	return Tiers[i], nil
}

// Classify counts issues per tier. Every tier is present in the result even
// when empty. Issues without a tier are skipped; the normalizer guarantees
// there are none.
func Classify(issues []types.CorrectableIssue) [NumTiers]TierCount {
	var out [NumTiers]TierCount
	for i, t := range Tiers {
		out[i] = TierCount{Tier: t, VisualWeight: t.VisualWeight()}
	}
	for _, issue := range issues {
		if i, err := index(issue); err == nil {
			out[i].Count++
		}
	}
	return out
}

// Ranked is an issue annotated with its tier.
type Ranked struct {
	Issue types.CorrectableIssue `json:"issue"`
	Tier  Tier                   `json:"tier"`
}

// Rank orders issues by tier rank, then by CreatedAt so older defects come
// first within a tier, then by id. Unclassifiable issues are dropped.
func Rank(issues []types.CorrectableIssue) []Ranked {
	out := make([]Ranked, 0, len(issues))
	for _, issue := range issues {
		t, err := TierFor(issue)
		if err != nil {
			continue
		}
		out = append(out, Ranked{Issue: issue, Tier: t})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Tier.Rank != b.Tier.Rank {
			return a.Tier.Rank < b.Tier.Rank
		}
		if !a.Issue.CreatedAt.Equal(b.Issue.CreatedAt) {
			return a.Issue.CreatedAt.Before(b.Issue.CreatedAt)
		}
		return a.Issue.ID < b.Issue.ID
	})
	return out
}
