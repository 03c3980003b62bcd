package catalog

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/metrics"
)

// Store holds the current catalog snapshot. Readers take a snapshot once
// per computation so a reload never changes weights halfway through.
type Store struct {
	current atomic.Pointer[Catalog]
	path    string
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewStore creates a store serving initial.
func NewStore(initial *Catalog, log *zap.Logger, m *metrics.Metrics) *Store {
	s := &Store{log: log, metrics: m}
	s.current.Store(initial)
	return s
}

// OpenStore loads path and returns a store that Reload re-reads from it.
func OpenStore(path string, log *zap.Logger, m *metrics.Metrics) (*Store, error) {
	c, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(c, log, m)
	s.path = path
	log.Info("catalog loaded", zap.String("path", path), zap.String("version", c.Version()), zap.Int("categories", len(c.categories)))
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Replace swaps in a new snapshot.
func (s *Store) Replace(c *Catalog) {
	s.current.Store(c)
}

// Path returns the file the store was opened from, or "".
func (s *Store) Path() string { return s.path }

// Reload re-reads the catalog file. On error the previous snapshot stays
// active.
func (s *Store) Reload() error {
	c, err := LoadFile(s.path)
	s.metrics.CatalogReload(err == nil)
	if err != nil {
		s.log.Warn("catalog reload failed; keeping previous catalog",
			zap.String("path", s.path),
			zap.String("version", s.Current().Version()),
			zap.Error(err))
		return err
	}
	prev := s.current.Swap(c)
	s.log.Info("catalog reloaded",
		zap.String("path", s.path),
		zap.String("previous_version", prev.Version()),
		zap.String("version", c.Version()))
	return nil
}
