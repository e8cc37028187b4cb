package domain

import (
	"time"

	"gorm.io/datatypes"
)

// AnalysisKind distinguishes the extractor that produced a stored analysis.
type AnalysisKind string

const (
	AnalysisBacktest AnalysisKind = "backtest"
	AnalysisStrategy AnalysisKind = "strategy"
)

// StrategyAnalysis stores one AI analysis result as an opaque JSON document.
// Data is replaced wholesale when follow-up metrics are merged in.
type StrategyAnalysis struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_analyses_user,priority:1"`
	Kind      AnalysisKind   `json:"kind"       gorm:"type:varchar(16);not null"`
	Data      datatypes.JSON `json:"data"       swaggertype:"object"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_analyses_user,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName returns the database table name for StrategyAnalysis.
func (StrategyAnalysis) TableName() string { return "strategy_analyses" }
