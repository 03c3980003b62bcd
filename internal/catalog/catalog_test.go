package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/types"
)

func TestLoadFile(t *testing.T) {
	c, err := LoadFile("testdata/catalog.cue")
	require.NoError(t, err)
	assert.Equal(t, "2026.1", c.Version())
	assert.Len(t, c.Categories(), 4)

	w, ok := c.Weight("Plumbing")
	assert.True(t, ok)
	assert.Equal(t, 3.0, w)

	pts, ok := c.SeverityPoints("Electrical", types.SeverityModerate)
	assert.True(t, ok)
	assert.Equal(t, 6.0, pts)

	assert.True(t, c.IsUnscored("Cosmetic"))
	assert.False(t, c.IsUnscored("Plumbing"))
	assert.Equal(t, 2.0, c.LifeThreateningMultiplier("Plumbing"))
	// defaulted by the schema
	assert.Equal(t, 1.0, c.LifeThreateningMultiplier("Smoke Detector"))
}

func TestCatalog_UnknownCategory(t *testing.T) {
	c := MustNew("t", nil)
	_, ok := c.Weight("Roofing")
	assert.False(t, ok)
	_, ok = c.SeverityPoints("Roofing", types.SeveritySevere)
	assert.False(t, ok)
	assert.False(t, c.IsUnscored("Roofing"))
	assert.Equal(t, 1.0, c.LifeThreateningMultiplier("Roofing"))

	err := error(&LookupMissError{Category: "Roofing", IssueID: "manual:1"})
	assert.True(t, errors.Is(err, ErrLookupMiss))
	assert.Contains(t, err.Error(), "Roofing")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := map[string]string{
		"points increase as severity drops": `
version: "x"
categories: Plumbing: {weight: 3, points: {severe: 2, moderate: 8, low: 1}}`,
		"unknown field": `
version: "x"
categories: Plumbing: {weight: 3, colour: "red", points: {severe: 9, moderate: 8, low: 1}}`,
		"missing points": `
version: "x"
categories: Plumbing: {weight: 3}`,
		"multiplier below one": `
version: "x"
categories: Plumbing: {weight: 3, life_threatening_multiplier: 0.5, points: {severe: 9, moderate: 8, low: 1}}`,
		"syntax": `version: `,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), name+".cue")
			assert.Error(t, err)
		})
	}
}

func TestNew_RejectsZeroWeightScoredCategory(t *testing.T) {
	_, err := New("x", []Category{{Name: "Plumbing", Points: Points{Severe: 3, Moderate: 2, Low: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive weight")
}

const catalogV1 = `
version: "v1"
categories: Plumbing: {weight: 3, points: {severe: 18, moderate: 8, low: 2}}
`

const catalogV2 = `
version: "v2"
categories: Plumbing: {weight: 4, points: {severe: 18, moderate: 8, low: 2}}
`

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.cue")
	require.NoError(t, os.WriteFile(path, []byte(catalogV1), 0o644))

	s, err := OpenStore(path, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", s.Current().Version())

	require.NoError(t, os.WriteFile(path, []byte("categories: {"), 0o644))
	assert.Error(t, s.Reload())
	assert.Equal(t, "v1", s.Current().Version())

	require.NoError(t, os.WriteFile(path, []byte(catalogV2), 0o644))
	require.NoError(t, s.Reload())
	w, _ := s.Current().Weight("Plumbing")
	assert.Equal(t, 4.0, w)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "catalog.cue")
	require.NoError(t, os.WriteFile(path, []byte(catalogV1), 0o644))

	s, err := OpenStore(path, zap.NewNop(), nil)
	require.NoError(t, err)
	w, err := NewWatcher(s, zap.NewNop())
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte(catalogV2), 0o644))
	require.Eventually(t, func() bool {
		return s.Current().Version() == "v2"
	}, 5*time.Second, 20*time.Millisecond)

	w.Stop()
}

func TestNewWatcher_RequiresFile(t *testing.T) {
	s := NewStore(MustNew("mem", nil), zap.NewNop(), nil)
	_, err := NewWatcher(s, zap.NewNop())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no backing file"))
}
