package issues

import (
	"context"

	"github.com/propcheck/inspections/internal/domain/inspections"
)

// ListFilter controls the read-side views. The default excludes rejected
// AI issues; IncludeRejected surfaces them on demand.
type ListFilter struct {
	IncludeRejected bool
	OnlySource      Source // "" means both sources
}

// Repository port. Insert is append-only: no delete operation exists,
// and UpdateResolution touches only ai_resolution and provenance.
// By-id Get is unscoped (the security kernel does the tenant check);
// missing rows come back as (nil, nil).
type Repository interface {
	Insert(ctx context.Context, i *Issue) error
	Get(ctx context.Context, id IssueID) (*Issue, error)
	ListByComponent(ctx context.Context, tenant string, componentID inspections.ComponentID, f ListFilter) ([]*Issue, error)
	UpdateResolution(ctx context.Context, tenant string, id IssueID, res AIResolution, prov *Provenance) error

	// FindDerived returns the human issue derived from the given AI
	// issue, or nil when none exists. Used to make acceptance idempotent.
	FindDerived(ctx context.Context, tenant string, derivedFrom IssueID) (*Issue, error)
}
