package issues

import (
	"time"

	"github.com/propcheck/inspections/internal/domain/inspections"
)

// IssueID identifier type
type IssueID string

// Severity enum
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// Source enum: who produced the finding.
type Source string

const (
	SourceAI    Source = "ai"
	SourceHuman Source = "human"
)

// AIResolution is the review state of an AI finding. Only meaningful when
// Source is ai; terminal once it leaves pending.
type AIResolution string

const (
	ResolutionPending    AIResolution = "pending"
	ResolutionAccepted   AIResolution = "accepted"
	ResolutionRejected   AIResolution = "rejected"
	ResolutionOverridden AIResolution = "overridden"
)

// Provenance links a human issue back to the AI issue it was derived
// from, plus who accepted or rejected it. This is the audit trail: the
// AI original and the human copy coexist permanently.
type Provenance struct {
	DerivedFromIssueID IssueID `json:"derived_from_issue_id,omitempty"`
	AcceptedByUserID   string  `json:"accepted_by_user_id,omitempty"`
	RejectedByUserID   string  `json:"rejected_by_user_id,omitempty"`
}

// Issue is a finding against a component. AI issues are never deleted and
// their type/severity/notes never mutate in place; resolution only moves
// AIResolution and Provenance. Human issues are append-only.
type Issue struct {
	ID                IssueID               `json:"id"`
	ComponentID       inspections.ComponentID `json:"component_id"`
	TenantID          string                  `json:"tenant_id"`
	Type              string                  `json:"type"`
	Severity          Severity                `json:"severity"`
	Source            Source                  `json:"source"`
	Confidence        float64                 `json:"confidence"`
	Notes             string                  `json:"notes,omitempty"`
	NeedsConfirmation bool                    `json:"needs_confirmation"`
	AIResolution      AIResolution            `json:"ai_resolution,omitempty"`
	Provenance        *Provenance             `json:"provenance,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

// ActiveAISuggestion reports whether this issue belongs in the default
// "pending AI suggestions" view.
func (i *Issue) ActiveAISuggestion() bool {
	return i.Source == SourceAI && (i.AIResolution == "" || i.AIResolution == ResolutionPending)
}

// Rejected reports whether this issue was explicitly rejected and should
// only appear in on-demand history views.
func (i *Issue) Rejected() bool {
	return i.AIResolution == ResolutionRejected
}
