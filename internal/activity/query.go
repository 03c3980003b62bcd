// Package activity provides the activity store interface and implementations
// for the corrective audit trail: every state transition indexed by the
// entities it touched (issue, property, unit, work order).
package activity

import "time"

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time // default: no lower bound
	Until      *time.Time // default: now
	Categories []string   // filter to specific defect categories
	Stages     []string   // filter to entries that moved an issue into one of these stages
	Limit      int        // max results (default: 100, max: 500)
	Cursor     string     // cursor for pagination
}

// SearchOptions controls filtering for full-text activity search.
type SearchOptions struct {
	EntityType string     // filter to specific entity type
	Since      *time.Time // filter by time
	Categories []string   // filter to specific defect categories
	Limit      int        // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults. An issue
// trail has to reach back to the first transition however old it is, so
// there is no default lower bound.
func DefaultQueryOptions() QueryOptions {
	now := time.Now()
	return QueryOptions{
		Until: &now,
		Limit: 100,
	}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 20,
	}
}

func queryLimit(n int) int {
	if n <= 0 || n > 500 {
		return 100
	}
	return n
}

func searchLimit(n int) int {
	if n <= 0 {
		return 20
	}
	return n
}
