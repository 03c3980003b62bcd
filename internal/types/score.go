package types

// Deduction is the contribution of one defect category to a property score.
type Deduction struct {
	Category      string  `json:"category"`
	Weight        float64 `json:"weight"`
	UniqueDefects int     `json:"unique_defects"`
	TotalPoints   float64 `json:"total_points"`
}

// ScoreBreakdown is the property-level deduction score. It is derived from
// the issue set on every request and never stored as a source of truth.
type ScoreBreakdown struct {
	TotalScore        float64     `json:"total_score"`
	Deductions        []Deduction `json:"deductions"`
	DefectCount       int         `json:"defect_count"`
	UniqueDefectCount int         `json:"unique_defect_count"`
	TotalDeductions   float64     `json:"total_deductions"`
	CatalogMisses     []string    `json:"catalog_misses,omitempty"`
}

// UnitPerformanceScore is the cumulative severity score of one unit.
type UnitPerformanceScore struct {
	UnitID     string  `json:"unit_id"`
	Score      float64 `json:"score"`
	IsAutoFail bool    `json:"is_auto_fail"`
}
