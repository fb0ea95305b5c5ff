package jobs

import (
	"time"

	"github.com/propcheck/inspections/internal/domain/inspections"
	"github.com/propcheck/inspections/internal/domain/issues"
)

// JobID identifier type
type JobID string

// Type enum for asynchronous work.
type Type string

const (
	TypeAnalyzeInspection Type = "analyze_inspection"
	TypeDeepAnalysis      Type = "deep_analysis"
	TypeTTSGeneration     Type = "tts_generation"
	TypeGenerateReport    Type = "generate_report"
)

// AnalysisType reports whether completion of this job feeds AI issues
// back into the store.
func (t Type) AnalysisType() bool {
	return t == TypeAnalyzeInspection || t == TypeDeepAnalysis
}

// Status enum. The lifecycle is monotonic: pending, running, then exactly
// one of completed or failed; it never regresses.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses along the lifecycle.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the
// monotonic lifecycle.
func (s Status) CanTransition(next Status) bool {
	return next.rank() == s.rank()+1
}

// Job is one unit of asynchronous analysis or report work. An inspection
// may accumulate many jobs; "current status" means the most recent one.
type Job struct {
	ID             JobID                     `json:"id"`
	InspectionID   inspections.InspectionID  `json:"inspection_id"`
	TenantID       string                    `json:"tenant_id"`
	Type           Type                      `json:"type"`
	Status         Status                    `json:"status"`
	IdempotencyKey string                    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	ResultSummary  string                    `json:"result_summary,omitempty"`
	ResultPayload  string                    `json:"result_payload,omitempty"`
}

// Finding is one detection returned by the analysis provider.
type Finding struct {
	ComponentID inspections.ComponentID `json:"component_id"`
	Type        string                  `json:"type"`
	Severity    issues.Severity         `json:"severity"`
	Confidence  float64                 `json:"confidence"`
	Notes       string                  `json:"notes"`
}
