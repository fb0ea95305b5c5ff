package jobs

import (
	"context"

	"github.com/propcheck/inspections/internal/domain/inspections"
)

// Repository port for job persistence. By-id Get is unscoped (the
// security kernel does the tenant check); missing rows come back as
// (nil, nil).
type Repository interface {
	Save(ctx context.Context, j *Job) error
	Get(ctx context.Context, id JobID) (*Job, error)
	// Latest returns the most recently created job for an inspection, or
	// nil when no job has ever run.
	Latest(ctx context.Context, id inspections.InspectionID) (*Job, error)
	ListByInspection(ctx context.Context, tenant string, id inspections.InspectionID) ([]*Job, error)
	// UpdateStatus moves a job along its lifecycle; a regressing
	// transition is refused. Summary and payload are written only when
	// non-empty.
	UpdateStatus(ctx context.Context, tenant string, id JobID, status Status, summary, payload string) error
}

// Provider port: the external analysis service. Invoked only by the job
// worker; the rest of the system treats it as an opaque collaborator.
type Provider interface {
	// AnalyzeInspection inspects the evidence attached to an inspection
	// and returns structured findings. deep requests the slower
	// high-recall pass.
	AnalyzeInspection(ctx context.Context, inspection *inspections.Inspection, components []*inspections.Component, deep bool) ([]Finding, error)

	// GenerateReport produces the rendered report payload for a
	// completed inspection and returns a reference to it.
	GenerateReport(ctx context.Context, inspection *inspections.Inspection) (string, error)
}
