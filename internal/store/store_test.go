package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/types"
)

type backend interface {
	IssueStore
	corrective.Repository
}

func newSQLite(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, d, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db, d, zap.NewNop()))
	return NewSQLStore(db, d)
}

func backends(t *testing.T) map[string]backend {
	return map[string]backend{
		"memory": NewMemoryStore(),
		"sqlite": newSQLite(t),
	}
}

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func sampleIssue(id, property string) types.CorrectableIssue {
	pv := 18.0
	return types.CorrectableIssue{
		ID:              id,
		SourceModule:    types.SourceInspection,
		PropertyID:      property,
		UnitID:          "101",
		Area:            types.AreaInsideUnit,
		Category:        "Plumbing",
		ItemKey:         "P-12",
		Severity:        types.SeveritySevere,
		LifeThreatening: true,
		PointValue:      &pv,
		Title:           "Leak under sink",
		EstimatedCost:   &types.Money{AmountCents: 25000, Currency: "USD"},
		CreatedAt:       t0,
	}
}

func TestIssueStore(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := sampleIssue("inspection:a", "prop-1")
			b := sampleIssue("inspection:b", "prop-1")
			b.CreatedAt = t0.Add(time.Hour)
			b.PointValue, b.EstimatedCost = nil, nil
			c := sampleIssue("inspection:c", "prop-2")

			n, err := s.PutIssues(ctx, []types.CorrectableIssue{b, a, c})
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			changed := a
			changed.Title = "rewritten"
			n, err = s.PutIssues(ctx, []types.CorrectableIssue{changed})
			require.NoError(t, err)
			assert.Zero(t, n, "issues are immutable")

			got, err := s.Issue(ctx, "inspection:a")
			require.NoError(t, err)
			assert.Equal(t, a, got)

			_, err = s.Issue(ctx, "nope")
			assert.ErrorIs(t, err, ErrIssueNotFound)

			list, err := s.IssuesByProperty(ctx, "prop-1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "inspection:a", list[0].ID)
			assert.Nil(t, list[1].PointValue)
			assert.Nil(t, list[1].EstimatedCost)

			props, err := s.Properties(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"prop-1", "prop-2"}, props)
		})
	}
}

func tracked(id, property string) types.CorrectiveIssue {
	return types.CorrectiveIssue{
		CorrectableIssue: sampleIssue(id, property),
		Status:           types.StatusNeedsWorkOrder,
		TrackedAt:        t0,
		UpdatedAt:        t0,
		Version:          1,
	}
}

func TestCorrectiveRepository(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ci := tracked("inspection:a", "prop-1")
			require.NoError(t, s.Insert(ctx, ci))
			assert.ErrorIs(t, s.Insert(ctx, ci), corrective.ErrAlreadyTracked)

			got, err := s.Get(ctx, ci.ID)
			require.NoError(t, err)
			assert.Equal(t, ci, got)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, corrective.ErrNotFound)

			next := got
			next.Status = types.StatusWorkOrderCreated
			next.LinkedWorkOrderID = "WO-1"
			next.UpdatedAt = t0.Add(time.Minute)
			next.Version = 2
			require.NoError(t, s.Update(ctx, next, 1))

			// A second writer holding version 1 loses.
			stale := got
			stale.Status = types.StatusWorkOrderCreated
			stale.LinkedWorkOrderID = "WO-2"
			stale.Version = 2
			assert.ErrorIs(t, s.Update(ctx, stale, 1), corrective.ErrConcurrentTransition)

			missing := tracked("missing", "prop-1")
			assert.ErrorIs(t, s.Update(ctx, missing, 1), corrective.ErrNotFound)

			byWO, err := s.GetByWorkOrder(ctx, "WO-1")
			require.NoError(t, err)
			assert.Equal(t, next, byWO)

			_, err = s.GetByWorkOrder(ctx, "WO-2")
			assert.ErrorIs(t, err, corrective.ErrNotFound)

			verifiedAt := t0.Add(2 * time.Hour)
			done := byWO
			done.Status = types.StatusVerified
			done.Checklist = types.Checklist{PhysicalInspectionDone: true, ConditionCorrected: true}
			done.VerificationNotes = "ok"
			done.VerifiedAt = &verifiedAt
			done.Version = 3
			require.NoError(t, s.Update(ctx, done, 2))
			got, err = s.Get(ctx, ci.ID)
			require.NoError(t, err)
			assert.Equal(t, done, got)
		})
	}
}

func TestCorrectiveRepository_List(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"c", "a", "b"} {
				ci := tracked(id, "prop-1")
				ci.TrackedAt = t0.Add(time.Duration(i) * time.Minute)
				require.NoError(t, s.Insert(ctx, ci))
			}
			other := tracked("z", "prop-2")
			other.Status = types.StatusClosed
			require.NoError(t, s.Insert(ctx, other))

			all, err := s.List(ctx, corrective.Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 4)

			prop1, err := s.List(ctx, corrective.Filter{PropertyID: "prop-1"})
			require.NoError(t, err)
			require.Len(t, prop1, 3)
			assert.Equal(t, []string{"c", "a", "b"}, []string{prop1[0].ID, prop1[1].ID, prop1[2].ID})

			closed, err := s.List(ctx, corrective.Filter{Status: types.StatusClosed})
			require.NoError(t, err)
			require.Len(t, closed, 1)
			assert.Equal(t, "z", closed[0].ID)

			page, err := s.List(ctx, corrective.Filter{PropertyID: "prop-1", Limit: 1, Offset: 1})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "a", page[0].ID)
		})
	}
}

func TestDialect(t *testing.T) {
	d, err := Dialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", d)
	d, err = Dialect("pgx")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d)
	_, err = Dialect("mysql")
	assert.Error(t, err)
}
