package domain

import (
	"time"
)

// InsightType classifies an insight card.
type InsightType string

const (
	InsightTypeRisk        InsightType = "risk"
	InsightTypeOpportunity InsightType = "opportunity"
	InsightTypeAction      InsightType = "action"
	InsightTypeAlert       InsightType = "alert"
)

// InsightTypes lists the accepted insight types in prompt order.
var InsightTypes = []InsightType{
	InsightTypeRisk,
	InsightTypeOpportunity,
	InsightTypeAction,
	InsightTypeAlert,
}

// Valid reports whether t is one of the accepted insight types.
func (t InsightType) Valid() bool {
	for _, v := range InsightTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Level is used for both the impact and the confidence of an insight.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Levels lists the accepted levels from lowest to highest.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh}

// Valid reports whether l is one of the accepted levels.
func (l Level) Valid() bool {
	return l == LevelLow || l == LevelMedium || l == LevelHigh
}

// Insight is a single risk/opportunity/action/alert card produced by the model.
type Insight struct {
	Title          string      `json:"title"`
	InsightType    InsightType `json:"insight_type"`
	Description    string      `json:"description"`
	Impact         Level       `json:"impact"`
	Confidence     Level       `json:"confidence"`
	Recommendation string      `json:"recommendation"`
	SupportingData []string    `json:"supporting_data"`
	Priority       int         `json:"priority"`
}

// InsightResponse is the validated result of an analysis run. Insights are
// kept in model order, which is also priority order.
type InsightResponse struct {
	Insights          []Insight `json:"insights"`
	Summary           string    `json:"summary"`
	TotalInsights     int       `json:"total_insights"`
	AnalysisTimestamp time.Time `json:"analysis_timestamp"`
}
