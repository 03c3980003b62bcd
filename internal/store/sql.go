package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/types"
)

// SQLStore implements IssueStore and corrective.Repository on the tables
// created by Migrate.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a store over db. dialect is an ent dialect name as
// returned by Open.
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) builder() *entsql.DialectBuilder { return entsql.Dialect(s.dialect) }

// ── Issues ───────────────────────────────────────────────────────────────────

var issueColumns = []string{
	"id", "source_module", "property_id", "unit_id", "area", "category", "item_key",
	"severity", "life_threatening", "point_value", "title", "description",
	"estimated_cost_cents", "estimated_cost_currency", "regression_of", "created_at",
}

func (s *SQLStore) PutIssues(ctx context.Context, issues []types.CorrectableIssue) (int, error) {
	if len(issues) == 0 {
		return 0, nil
	}
	ins := s.builder().Insert("issues").Columns(issueColumns...)
	for _, i := range issues {
		var point, cents, currency any
		if i.PointValue != nil {
			point = *i.PointValue
		}
		if i.EstimatedCost != nil {
			cents, currency = i.EstimatedCost.AmountCents, i.EstimatedCost.Currency
		}
		ins.Values(
			i.ID, string(i.SourceModule), i.PropertyID, i.UnitID, string(i.Area), i.Category, i.ItemKey,
			string(i.Severity), i.LifeThreatening, point, i.Title, i.Description,
			cents, currency, i.RegressionOf, i.CreatedAt.UTC(),
		)
	}
	ins.OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing())

	query, args := ins.Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting issues: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLStore) Issue(ctx context.Context, id string) (types.CorrectableIssue, error) {
	b := s.builder()
	query, args := b.Select(issueColumns...).
		From(b.Table("issues")).
		Where(entsql.EQ("id", id)).
		Query()
	issues, err := s.scanIssues(ctx, query, args)
	if err != nil {
		return types.CorrectableIssue{}, err
	}
	if len(issues) == 0 {
		return types.CorrectableIssue{}, ErrIssueNotFound
	}
	return issues[0], nil
}

func (s *SQLStore) IssuesByProperty(ctx context.Context, propertyID string) ([]types.CorrectableIssue, error) {
	b := s.builder()
	query, args := b.Select(issueColumns...).
		From(b.Table("issues")).
		Where(entsql.EQ("property_id", propertyID)).
		OrderBy("created_at", "id").
		Query()
	return s.scanIssues(ctx, query, args)
}

func (s *SQLStore) Properties(ctx context.Context) ([]string, error) {
	b := s.builder()
	query, args := b.Select("property_id").
		Distinct().
		From(b.Table("issues")).
		OrderBy("property_id").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) scanIssues(ctx context.Context, query string, args []any) ([]types.CorrectableIssue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var out []types.CorrectableIssue
	for rows.Next() {
		var (
			i                      types.CorrectableIssue
			module, area, severity string
			point                  sql.NullFloat64
			cents                  sql.NullInt64
			currency               sql.NullString
		)
		err := rows.Scan(
			&i.ID, &module, &i.PropertyID, &i.UnitID, &area, &i.Category, &i.ItemKey,
			&severity, &i.LifeThreatening, &point, &i.Title, &i.Description,
			&cents, &currency, &i.RegressionOf, &i.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		i.SourceModule = types.SourceModule(module)
		i.Area = types.Area(area)
		i.Severity = types.Severity(severity)
		if point.Valid {
			v := point.Float64
			i.PointValue = &v
		}
		if cents.Valid {
			i.EstimatedCost = &types.Money{AmountCents: cents.Int64, Currency: currency.String}
		}
		i.CreatedAt = i.CreatedAt.UTC()
		out = append(out, i)
	}
	return out, rows.Err()
}

// ── Corrective issues ────────────────────────────────────────────────────────

var correctiveColumns = []string{
	"id", "property_id", "issue", "status", "linked_work_order_id", "checklist",
	"verification_notes", "closure_notes", "verified_at", "closed_at",
	"tracked_at", "updated_at", "version",
}

func (s *SQLStore) Insert(ctx context.Context, ci types.CorrectiveIssue) error {
	issueJSON, checklistJSON, err := encodeCorrective(ci)
	if err != nil {
		return err
	}
	query, args := s.builder().Insert("corrective_issues").
		Columns(correctiveColumns...).
		Values(
			ci.ID, ci.PropertyID, issueJSON, ci.Status.String(), nullString(ci.LinkedWorkOrderID), checklistJSON,
			ci.VerificationNotes, ci.ClosureNotes, nullTime(ci.VerifiedAt), nullTime(ci.ClosedAt),
			ci.TrackedAt.UTC(), ci.UpdatedAt.UTC(), ci.Version,
		).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("inserting corrective issue %s: %w", ci.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return corrective.ErrAlreadyTracked
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (types.CorrectiveIssue, error) {
	return s.getOne(ctx, entsql.EQ("id", id))
}

func (s *SQLStore) GetByWorkOrder(ctx context.Context, workOrderID string) (types.CorrectiveIssue, error) {
	return s.getOne(ctx, entsql.EQ("linked_work_order_id", workOrderID))
}

func (s *SQLStore) getOne(ctx context.Context, p *entsql.Predicate) (types.CorrectiveIssue, error) {
	b := s.builder()
	query, args := b.Select(correctiveColumns...).
		From(b.Table("corrective_issues")).
		Where(p).
		Limit(1).
		Query()
	out, err := s.scanCorrective(ctx, query, args)
	if err != nil {
		return types.CorrectiveIssue{}, err
	}
	if len(out) == 0 {
		return types.CorrectiveIssue{}, corrective.ErrNotFound
	}
	return out[0], nil
}

// Update writes ci only if the stored version still equals expectedVersion.
func (s *SQLStore) Update(ctx context.Context, ci types.CorrectiveIssue, expectedVersion int64) error {
	issueJSON, checklistJSON, err := encodeCorrective(ci)
	if err != nil {
		return err
	}
	query, args := s.builder().Update("corrective_issues").
		Set("issue", issueJSON).
		Set("status", ci.Status.String()).
		Set("linked_work_order_id", nullString(ci.LinkedWorkOrderID)).
		Set("checklist", checklistJSON).
		Set("verification_notes", ci.VerificationNotes).
		Set("closure_notes", ci.ClosureNotes).
		Set("verified_at", nullTime(ci.VerifiedAt)).
		Set("closed_at", nullTime(ci.ClosedAt)).
		Set("updated_at", ci.UpdatedAt.UTC()).
		Set("version", ci.Version).
		Where(entsql.And(
			entsql.EQ("id", ci.ID),
			entsql.EQ("version", expectedVersion),
		)).
		Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating corrective issue %s: %w", ci.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, ci.ID); errors.Is(err, corrective.ErrNotFound) {
		return err
	}
	return corrective.ErrConcurrentTransition
}

func (s *SQLStore) List(ctx context.Context, f corrective.Filter) ([]types.CorrectiveIssue, error) {
	b := s.builder()
	sel := b.Select(correctiveColumns...).
		From(b.Table("corrective_issues")).
		OrderBy("tracked_at", "id")

	var ps []*entsql.Predicate
	if f.PropertyID != "" {
		ps = append(ps, entsql.EQ("property_id", f.PropertyID))
	}
	if f.Status != 0 {
		ps = append(ps, entsql.EQ("status", f.Status.String()))
	}
	if len(ps) > 0 {
		sel.Where(entsql.And(ps...))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
		if f.Offset > 0 {
			sel.Offset(f.Offset)
		}
	}

	query, args := sel.Query()
	return s.scanCorrective(ctx, query, args)
}

func (s *SQLStore) scanCorrective(ctx context.Context, query string, args []any) ([]types.CorrectiveIssue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying corrective issues: %w", err)
	}
	defer rows.Close()

	var out []types.CorrectiveIssue
	for rows.Next() {
		var (
			ci                       types.CorrectiveIssue
			propertyID, status       string
			issueJSON, checklistJSON []byte
			workOrder                sql.NullString
			verifiedAt, closedAt     sql.NullTime
		)
		err := rows.Scan(
			&ci.ID, &propertyID, &issueJSON, &status, &workOrder, &checklistJSON,
			&ci.VerificationNotes, &ci.ClosureNotes, &verifiedAt, &closedAt,
			&ci.TrackedAt, &ci.UpdatedAt, &ci.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning corrective issue: %w", err)
		}
		id := ci.ID
		if err := json.Unmarshal(issueJSON, &ci.CorrectableIssue); err != nil {
			return nil, fmt.Errorf("decoding issue snapshot of %s: %w", id, err)
		}
		ci.ID = id
		if err := json.Unmarshal(checklistJSON, &ci.Checklist); err != nil {
			return nil, fmt.Errorf("decoding checklist of %s: %w", id, err)
		}
		if ci.Status, err = types.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("corrective issue %s: %w", id, err)
		}
		ci.LinkedWorkOrderID = workOrder.String
		ci.VerifiedAt = timePtr(verifiedAt)
		ci.ClosedAt = timePtr(closedAt)
		ci.TrackedAt = ci.TrackedAt.UTC()
		ci.UpdatedAt = ci.UpdatedAt.UTC()
		out = append(out, ci)
	}
	return out, rows.Err()
}

func encodeCorrective(ci types.CorrectiveIssue) (issueJSON, checklistJSON string, err error) {
	ib, err := json.Marshal(ci.CorrectableIssue)
	if err != nil {
		return "", "", fmt.Errorf("encoding issue snapshot of %s: %w", ci.ID, err)
	}
	cb, err := json.Marshal(ci.Checklist)
	if err != nil {
		return "", "", fmt.Errorf("encoding checklist of %s: %w", ci.ID, err)
	}
	return string(ib), string(cb), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
