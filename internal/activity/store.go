package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/compliance/internal/types"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search performs full-text search across activity summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

const table = "activity_entries"

var columns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "source_refs", "summary", "category", "stage", "payload",
}

// SQLStore implements Store on the activity_entries table created by the
// store migrations. Queries are built for the given ent dialect, so the same
// code serves SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a new SQLStore. dialect is an entgo.io/ent/dialect name.
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// WriteEntries inserts activity entries. Entries already written for the
// same event and entity are skipped.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ins := entsql.Dialect(s.dialect).Insert(table).Columns(columns...)
	for _, e := range entries {
		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs of %s: %w", e.EventID, err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UTC(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refsJSON), e.Summary, e.Category, e.Stage, payload,
		)
	}
	ins.OnConflict(
		entsql.ConflictColumns("event_id", "indexed_entity_type", "indexed_entity_id"),
		entsql.DoNothing(),
	)

	query, args := ins.Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := queryLimit(opts.Limit)

	filters := func() []*entsql.Predicate {
		ps := []*entsql.Predicate{
			entsql.EQ("indexed_entity_type", entityType),
			entsql.EQ("indexed_entity_id", entityID),
		}
		if opts.Since != nil {
			ps = append(ps, entsql.GTE("occurred_at", opts.Since.UTC()))
		}
		if opts.Until != nil {
			ps = append(ps, entsql.LTE("occurred_at", opts.Until.UTC()))
		}
		if len(opts.Categories) > 0 {
			ps = append(ps, entsql.In("category", anySlice(opts.Categories)...))
		}
		if len(opts.Stages) > 0 {
			ps = append(ps, entsql.In("stage", anySlice(opts.Stages)...))
		}
		return ps
	}

	page := filters()
	if opts.Cursor != "" {
		// Cursor is the occurred_at timestamp of the last result.
		if cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			page = append(page, entsql.LT("occurred_at", cursorTime.UTC()))
		}
	}

	b := entsql.Dialect(s.dialect)
	query, args := b.Select(columns...).
		From(b.Table(table)).
		Where(entsql.And(page...)).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit + 1). // fetch one extra for cursor
		Query()

	entries, err := s.scan(ctx, query, args)
	if err != nil {
		return nil, "", 0, err
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}

	countQuery, countArgs := b.Select(entsql.Count("*")).
		From(b.Table(table)).
		Where(entsql.And(filters()...)).
		Query()
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, "", 0, fmt.Errorf("counting activity entries: %w", err)
	}

	return entries, nextCursor, totalCount, nil
}

// Search performs a case-insensitive substring search across activity summaries.
func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	filters := func() []*entsql.Predicate {
		ps := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
		if opts.EntityType != "" {
			ps = append(ps, entsql.EQ("indexed_entity_type", opts.EntityType))
		}
		if opts.Since != nil {
			ps = append(ps, entsql.GTE("occurred_at", opts.Since.UTC()))
		}
		if len(opts.Categories) > 0 {
			ps = append(ps, entsql.In("category", anySlice(opts.Categories)...))
		}
		return ps
	}

	b := entsql.Dialect(s.dialect)
	sqlQuery, args := b.Select(columns...).
		From(b.Table(table)).
		Where(entsql.And(filters()...)).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(searchLimit(opts.Limit)).
		Query()

	entries, err := s.scan(ctx, sqlQuery, args)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs := b.Select(entsql.Count("*")).
		From(b.Table(table)).
		Where(entsql.And(filters()...)).
		Query()
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting activity entries: %w", err)
	}

	return entries, totalCount, nil
}

func (s *SQLStore) scan(ctx context.Context, query string, args []any) ([]types.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var e types.ActivityEntry
		var refsJSON, payloadJSON []byte
		err := rows.Scan(
			&e.EventID, &e.EventType, &e.OccurredAt, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refsJSON, &e.Summary, &e.Category, &e.Stage, &payloadJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if len(refsJSON) > 0 {
			_ = json.Unmarshal(refsJSON, &e.SourceRefs)
		}
		if len(payloadJSON) > 0 {
			e.Payload = json.RawMessage(payloadJSON)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
