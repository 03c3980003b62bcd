// Package compliance is the read side of the platform: it ingests source
// records through the normalizer and answers score, priority, and stats
// queries for a property from the stored issues and their corrective state.
package compliance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/aggregate"
	"github.com/matthewbaird/compliance/internal/catalog"
	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/metrics"
	"github.com/matthewbaird/compliance/internal/normalize"
	"github.com/matthewbaird/compliance/internal/priority"
	"github.com/matthewbaird/compliance/internal/scoring"
	"github.com/matthewbaird/compliance/internal/store"
	"github.com/matthewbaird/compliance/internal/types"
)

// CatalogSource hands out the active catalog snapshot. *catalog.Store
// implements it.
type CatalogSource interface {
	Current() *catalog.Catalog
}

// Service composes the stores with the scoring engine, the priority
// classifier, and the aggregator.
type Service struct {
	issues     store.IssueStore
	corrective corrective.Repository
	catalog    CatalogSource
	engine     *scoring.Engine
	agg        *aggregate.Aggregator
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a Service.
func New(issues store.IssueStore, repo corrective.Repository, cat CatalogSource, log *zap.Logger, m *metrics.Metrics) *Service {
	engine := scoring.New(log, m)
	return &Service{
		issues:     issues,
		corrective: repo,
		catalog:    cat,
		engine:     engine,
		agg:        aggregate.New(engine),
		log:        log,
		metrics:    m,
	}
}

// Rejection describes one source record the normalizer refused.
type Rejection struct {
	RecordID string             `json:"record_id"`
	Module   types.SourceModule `json:"module"`
	Field    string             `json:"field"`
	Reason   string             `json:"reason"`
}

// IngestResult reports what happened to a batch of source records.
type IngestResult struct {
	Accepted int         `json:"accepted"`
	Inserted int         `json:"inserted"`
	Rejected []Rejection `json:"rejected"`
}

// Ingest normalizes records and stores the resulting issues. When
// propertyID is set, records for another property are rejected. Rejections
// never block the rest of the batch.
func (s *Service) Ingest(ctx context.Context, propertyID string, records []normalize.SourceRecord) (IngestResult, error) {
	res := IngestResult{Rejected: []Rejection{}}
	issues := make([]types.CorrectableIssue, 0, len(records))
	for _, r := range records {
		issue, err := normalize.NormalizeOne(r)
		if err == nil && propertyID != "" && issue.PropertyID != propertyID {
			err = &normalize.MalformedIssueError{
				RecordID: r.ID,
				Module:   r.Module,
				Field:    "property_id",
				Reason:   fmt.Sprintf("belongs to %q, not %q", issue.PropertyID, propertyID),
			}
		}
		if err != nil {
			var me *normalize.MalformedIssueError
			if !errors.As(err, &me) {
				return res, err
			}
			s.metrics.Rejection(string(me.Module), me.Field)
			s.log.Warn("rejected source record",
				zap.String("record_id", me.RecordID),
				zap.String("module", string(me.Module)),
				zap.String("field", me.Field),
				zap.String("reason", me.Reason))
			res.Rejected = append(res.Rejected, Rejection{
				RecordID: me.RecordID,
				Module:   me.Module,
				Field:    me.Field,
				Reason:   me.Reason,
			})
			continue
		}
		issues = append(issues, issue)
	}
	res.Accepted = len(issues)
	if len(issues) == 0 {
		return res, nil
	}
	n, err := s.issues.PutIssues(ctx, issues)
	if err != nil {
		return res, fmt.Errorf("storing issues: %w", err)
	}
	res.Inserted = n
	return res, nil
}

// OpenIssues returns the property's issues that no closed corrective issue
// resolves. Closing a defect resolves every observation of it made up to the
// closure.
func (s *Service) OpenIssues(ctx context.Context, propertyID string) ([]types.CorrectableIssue, error) {
	issues, tracked, err := s.load(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return aggregate.OpenIssues(issues, tracked), nil
}

// PropertyScore scores the property's open issues.
func (s *Service) PropertyScore(ctx context.Context, propertyID string) (types.ScoreBreakdown, error) {
	open, err := s.OpenIssues(ctx, propertyID)
	if err != nil {
		return types.ScoreBreakdown{}, err
	}
	return s.engine.ScoreProperty(open, s.catalog.Current()), nil
}

// UnitScore computes the unit performance score of one unit.
func (s *Service) UnitScore(ctx context.Context, propertyID, unitID string) (types.UnitPerformanceScore, error) {
	open, err := s.OpenIssues(ctx, propertyID)
	if err != nil {
		return types.UnitPerformanceScore{}, err
	}
	return s.engine.ScoreUnit(open, unitID, s.catalog.Current()), nil
}

// UnitScores scores every unit of the property with an open issue.
func (s *Service) UnitScores(ctx context.Context, propertyID string) ([]types.UnitPerformanceScore, error) {
	open, err := s.OpenIssues(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return s.engine.ScoreUnits(open, s.catalog.Current()), nil
}

// Priorities classifies the property's open issues into the twelve tiers.
func (s *Service) Priorities(ctx context.Context, propertyID string) ([priority.NumTiers]priority.TierCount, error) {
	open, err := s.OpenIssues(ctx, propertyID)
	if err != nil {
		return [priority.NumTiers]priority.TierCount{}, err
	}
	return priority.Classify(open), nil
}

// Ranked orders the property's open issues by tier.
func (s *Service) Ranked(ctx context.Context, propertyID string) ([]priority.Ranked, error) {
	open, err := s.OpenIssues(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return priority.Rank(open), nil
}

// Stats rolls up the property.
func (s *Service) Stats(ctx context.Context, propertyID string) (aggregate.Stats, error) {
	issues, tracked, err := s.load(ctx, propertyID)
	if err != nil {
		return aggregate.Stats{}, err
	}
	return s.agg.Stats(issues, tracked, s.catalog.Current()), nil
}

// Portfolio scores every known property concurrently.
func (s *Service) Portfolio(ctx context.Context) (map[string]types.ScoreBreakdown, error) {
	props, err := s.issues.Properties(ctx)
	if err != nil {
		return nil, err
	}
	byProperty := make(map[string][]types.CorrectableIssue, len(props))
	for _, id := range props {
		open, err := s.OpenIssues(ctx, id)
		if err != nil {
			return nil, err
		}
		byProperty[id] = open
	}
	return s.engine.ScorePortfolio(ctx, byProperty, s.catalog.Current())
}

// TrackCandidates returns the property's open issues in tier order. AutoTrack
// picks the severities it tracks from this list.
func (s *Service) TrackCandidates(ctx context.Context, propertyID string) ([]types.CorrectableIssue, error) {
	ranked, err := s.Ranked(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	out := make([]types.CorrectableIssue, len(ranked))
	for i, r := range ranked {
		out[i] = r.Issue
	}
	return out, nil
}

// Issue returns one stored issue.
func (s *Service) Issue(ctx context.Context, id string) (types.CorrectableIssue, error) {
	return s.issues.Issue(ctx, id)
}

func (s *Service) load(ctx context.Context, propertyID string) ([]types.CorrectableIssue, []types.CorrectiveIssue, error) {
	issues, err := s.issues.IssuesByProperty(ctx, propertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading issues of %s: %w", propertyID, err)
	}
	tracked, err := s.corrective.List(ctx, corrective.Filter{PropertyID: propertyID})
	if err != nil {
		return nil, nil, fmt.Errorf("loading corrective issues of %s: %w", propertyID, err)
	}
	return issues, tracked, nil
}
