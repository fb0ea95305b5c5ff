package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/propcheck/inspections/internal/application"
	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	dominsp "github.com/propcheck/inspections/internal/domain/inspections"
	domissues "github.com/propcheck/inspections/internal/domain/issues"
	domain "github.com/propcheck/inspections/internal/domain/jobs"
)

// workerIdentity is the caller for deferred completion work: it has no
// human behind it and acts platform-wide.
var workerIdentity = &authz.SecurityContext{
	UserID: "svc-job-worker",
	Role:   authz.RoleSystemService,
}

// Service is the job orchestrator: it records jobs, feeds them to a
// single worker over a channel, and on analysis completion appends AI
// issues back into the store. StartJob never blocks on the provider.
type Service struct {
	Repo        domain.Repository
	Inspections dominsp.Repository
	Issues      domissues.Repository
	Provider    domain.Provider
	Clock       application.Clock
	Logger      *slog.Logger

	queue chan domain.JobID
}

func NewService(repo domain.Repository, insp dominsp.Repository, iss domissues.Repository, provider domain.Provider, clock application.Clock, logger *slog.Logger) *Service {
	return &Service{
		Repo:        repo,
		Inspections: insp,
		Issues:      iss,
		Provider:    provider,
		Clock:       clock,
		Logger:      logger,
		queue:       make(chan domain.JobID, 64),
	}
}

// Start launches the worker goroutine. It drains the queue until ctx is
// cancelled; jobs enqueued but not yet picked up stay pending.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-s.queue:
				s.execute(ctx, id)
			}
		}
	}()
}

// StartJob authorizes, records a pending job, and schedules it. The
// returned job is always pending; callers poll for progress. Two quick
// successive starts produce two job rows; the most recent one is what
// status polling reports.
func (s *Service) StartJob(ctx context.Context, sc *authz.SecurityContext, inspectionID dominsp.InspectionID, jobType domain.Type, idempotencyKey string) (*domain.Job, error) {
	insp, err := s.Inspections.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(inspectionID))
	}

	action := authz.ActionAnalysisTrigger
	if jobType == domain.TypeGenerateReport || jobType == domain.TypeTTSGeneration {
		action = authz.ActionReportGenerate
	}
	if err := authz.Authorize(action, insp.Resource(), sc); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	job := &domain.Job{
		ID:             domain.JobID(uuid.New().String()),
		InspectionID:   insp.ID,
		TenantID:       insp.TenantID,
		Type:           jobType,
		Status:         domain.StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Repo.Save(ctx, job); err != nil {
		return nil, err
	}

	s.queue <- job.ID
	s.Logger.Info("job queued",
		"job_id", job.ID,
		"inspection_id", insp.ID,
		"tenant", insp.TenantID,
		"type", jobType,
		"user_id", sc.UserID,
	)
	return job, nil
}

// GetStatus returns the most recently created job for the inspection, or
// nil when none has ever run.
func (s *Service) GetStatus(ctx context.Context, sc *authz.SecurityContext, inspectionID dominsp.InspectionID) (*domain.Job, error) {
	insp, err := s.Inspections.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(inspectionID))
	}
	if err := authz.Authorize(authz.ActionJobRead, insp.Resource(), sc); err != nil {
		return nil, err
	}
	return s.Repo.Latest(ctx, inspectionID)
}

// ListJobs returns the inspection's full job history in creation order.
func (s *Service) ListJobs(ctx context.Context, sc *authz.SecurityContext, inspectionID dominsp.InspectionID) ([]*domain.Job, error) {
	insp, err := s.Inspections.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(inspectionID))
	}
	if err := authz.Authorize(authz.ActionJobRead, insp.Resource(), sc); err != nil {
		return nil, err
	}
	return s.Repo.ListByInspection(ctx, insp.TenantID, inspectionID)
}

// execute is the deferred completion step. No caller is present; it runs
// as the SystemService identity and re-enters the store directly.
func (s *Service) execute(ctx context.Context, id domain.JobID) {
	job, err := s.Repo.Get(ctx, id)
	if err != nil || job == nil {
		s.Logger.Error("job lookup failed", "job_id", id, "error", err)
		return
	}
	if err := s.Repo.UpdateStatus(ctx, job.TenantID, job.ID, domain.StatusRunning, "", ""); err != nil {
		s.Logger.Error("job start failed", "job_id", id, "error", err)
		return
	}

	switch {
	case job.Type.AnalysisType():
		s.runAnalysis(ctx, job)
	case job.Type == domain.TypeGenerateReport:
		s.runReport(ctx, job)
	default:
		// No executor wired for this type; terminal failure, operator
		// reprocessing is a separate explicit action.
		s.fail(ctx, job, fmt.Sprintf("no executor for job type %s", job.Type))
	}
}

func (s *Service) runAnalysis(ctx context.Context, job *domain.Job) {
	insp, err := s.Inspections.GetInspection(ctx, job.InspectionID)
	if err != nil || insp == nil {
		s.fail(ctx, job, fmt.Sprintf("inspection %s unavailable", job.InspectionID))
		return
	}

	components, err := s.componentsOf(ctx, insp)
	if err != nil {
		s.fail(ctx, job, fmt.Sprintf("loading components: %v", err))
		return
	}

	// The worker writes back as SystemService; the kernel still gates
	// the insert on the finalization lock.
	if err := authz.Authorize(authz.ActionIssueCreate, insp.Resource(), workerIdentity); err != nil {
		s.fail(ctx, job, fmt.Sprintf("worker not permitted to write findings: %v", err))
		return
	}

	findings, err := s.Provider.AnalyzeInspection(ctx, insp, components, job.Type == domain.TypeDeepAnalysis)
	if err != nil {
		// Provider failures are terminal; the caller decides whether to
		// start a fresh job.
		s.fail(ctx, job, fmt.Sprintf("analysis provider: %v", err))
		return
	}

	known := make(map[dominsp.ComponentID]bool, len(components))
	for _, c := range components {
		known[c.ID] = true
	}

	inserted := 0
	for _, f := range findings {
		if !known[f.ComponentID] {
			s.Logger.Warn("provider finding references unknown component",
				"job_id", job.ID, "component_id", f.ComponentID)
			continue
		}
		issue := &domissues.Issue{
			ID:                domissues.IssueID(uuid.New().String()),
			ComponentID:       f.ComponentID,
			TenantID:          job.TenantID,
			Type:              f.Type,
			Severity:          f.Severity,
			Source:            domissues.SourceAI,
			Confidence:        f.Confidence,
			Notes:             f.Notes,
			NeedsConfirmation: true,
			AIResolution:      domissues.ResolutionPending,
			CreatedAt:         s.Clock.Now(),
		}
		if err := s.Issues.Insert(ctx, issue); err != nil {
			s.fail(ctx, job, fmt.Sprintf("storing finding: %v", err))
			return
		}
		inserted++
	}

	insp.AnalysisVersion++
	insp.UpdatedAt = s.Clock.Now()
	if err := s.Inspections.SaveInspection(ctx, insp); err != nil {
		s.fail(ctx, job, fmt.Sprintf("bumping analysis version: %v", err))
		return
	}

	summary := fmt.Sprintf("%d finding(s) detected", inserted)
	if err := s.Repo.UpdateStatus(ctx, job.TenantID, job.ID, domain.StatusCompleted, summary, ""); err != nil {
		s.Logger.Error("job completion failed", "job_id", job.ID, "error", err)
		return
	}
	s.Logger.Info("analysis job completed",
		"job_id", job.ID,
		"inspection_id", insp.ID,
		"findings", inserted,
		"analysis_version", insp.AnalysisVersion,
	)
}

func (s *Service) runReport(ctx context.Context, job *domain.Job) {
	insp, err := s.Inspections.GetInspection(ctx, job.InspectionID)
	if err != nil || insp == nil {
		s.fail(ctx, job, fmt.Sprintf("inspection %s unavailable", job.InspectionID))
		return
	}
	payload, err := s.Provider.GenerateReport(ctx, insp)
	if err != nil {
		s.fail(ctx, job, fmt.Sprintf("report provider: %v", err))
		return
	}
	if err := s.Repo.UpdateStatus(ctx, job.TenantID, job.ID, domain.StatusCompleted, "report generated", payload); err != nil {
		s.Logger.Error("job completion failed", "job_id", job.ID, "error", err)
		return
	}
	s.Logger.Info("report job completed", "job_id", job.ID, "inspection_id", insp.ID)
}

func (s *Service) fail(ctx context.Context, job *domain.Job, summary string) {
	if err := s.Repo.UpdateStatus(ctx, job.TenantID, job.ID, domain.StatusFailed, summary, ""); err != nil {
		s.Logger.Error("job failure update failed", "job_id", job.ID, "error", err)
		return
	}
	s.Logger.Error("job failed", "job_id", job.ID, "summary", summary)
}

func (s *Service) componentsOf(ctx context.Context, insp *dominsp.Inspection) ([]*dominsp.Component, error) {
	rooms, err := s.Inspections.ListRooms(ctx, insp.TenantID, insp.ID)
	if err != nil {
		return nil, err
	}
	var out []*dominsp.Component
	for _, room := range rooms {
		comps, err := s.Inspections.ListComponents(ctx, insp.TenantID, room.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, comps...)
	}
	return out, nil
}

// RunPending drains currently queued jobs synchronously. Useful when the
// worker goroutine is not running (single-shot tools, deterministic tests).
func (s *Service) RunPending(ctx context.Context) {
	for {
		select {
		case id := <-s.queue:
			s.execute(ctx, id)
		default:
			return
		}
	}
}
