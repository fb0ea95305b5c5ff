package inspections

import (
	"time"

	"github.com/propcheck/inspections/internal/domain/authz"
)

// ID types
type InspectionID string
type RoomID string
type ComponentID string

// Status enum for an inspection
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFinalized  Status = "finalized"
)

// ReportStatus enum
type ReportStatus string

const (
	ReportNone      ReportStatus = "none"
	ReportDraft     ReportStatus = "draft"
	ReportFinalized ReportStatus = "finalized"
)

// Aggregate root: Inspection. Once Status is finalized nothing below it
// may change again; FinalizedAt is set exactly once and never cleared.
type Inspection struct {
	ID              InspectionID `json:"id"`
	TenantID        string       `json:"tenant_id"`
	CreatedByUserID string       `json:"created_by_user_id"`
	InspectionType  string       `json:"inspection_type"`
	PropertyAddress string       `json:"property_address"`
	Status          Status       `json:"status"`
	ReportStatus    ReportStatus `json:"report_status"`
	AnalysisVersion int          `json:"analysis_version"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	FinalizedAt     *time.Time   `json:"finalized_at,omitempty"`
}

// Finalized reports whether the one-way freeze has happened.
func (i *Inspection) Finalized() bool {
	return i.Status == StatusFinalized
}

// Resource builds the authorization view of this inspection. Child
// entities authorize against their owning inspection so the finalization
// lock covers the whole subtree.
func (i *Inspection) Resource() *authz.Resource {
	return &authz.Resource{
		ID:        string(i.ID),
		Type:      "inspection",
		TenantID:  i.TenantID,
		Finalized: i.Finalized(),
	}
}

// Room is owned exclusively by its inspection.
type Room struct {
	ID           RoomID       `json:"id"`
	InspectionID InspectionID `json:"inspection_id"`
	TenantID     string       `json:"tenant_id"`
	Name         string       `json:"name"`
	RoomType     string       `json:"room_type"`
	SortOrder    int          `json:"sort_order"`
}

// Condition holds three independently nullable assessment flags; nil
// means "not yet assessed".
type Condition struct {
	Clean     *bool `json:"clean"`
	Undamaged *bool `json:"undamaged"`
	Working   *bool `json:"working"`
}

// HumanEdits records which component fields a human has touched. A field
// marked here is never overwritten by an automated pass; automation can
// only propose a competing value as a new AI issue.
type HumanEdits struct {
	ConditionFlagsEdited  bool       `json:"condition_flags_edited"`
	OverviewCommentEdited bool       `json:"overview_comment_edited"`
	LastHumanEditAt       *time.Time `json:"last_human_edit_at,omitempty"`
}

// Component of a room. Version is a monotonic counter bumped on every
// write; stale writers are rejected with a conflict fault.
type Component struct {
	ID              ComponentID `json:"id"`
	RoomID          RoomID      `json:"room_id"`
	TenantID        string      `json:"tenant_id"`
	Name            string      `json:"name"`
	Condition       Condition   `json:"condition"`
	OverviewComment string      `json:"overview_comment,omitempty"`
	HumanEdits      HumanEdits  `json:"human_edits"`
	PhotoIDs        []string    `json:"photo_ids,omitempty"`
	Version         int64       `json:"version"`
}

// PaginatedInspections is a paginated listing with metadata.
type PaginatedInspections struct {
	Data       []*Inspection `json:"data"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Total      int64         `json:"totalItems"`
	TotalPages int           `json:"totalPages"`
}
