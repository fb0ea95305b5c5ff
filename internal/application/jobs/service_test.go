package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinsp "github.com/propcheck/inspections/internal/application/inspections"
	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	dominsp "github.com/propcheck/inspections/internal/domain/inspections"
	domissues "github.com/propcheck/inspections/internal/domain/issues"
	domain "github.com/propcheck/inspections/internal/domain/jobs"
	"github.com/propcheck/inspections/internal/infra/memstore"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

// fakeProvider serves canned findings or a forced error.
type fakeProvider struct {
	findings []domain.Finding
	report   string
	err      error

	calls     int
	deepCalls int
}

func (p *fakeProvider) AnalyzeInspection(_ context.Context, _ *dominsp.Inspection, _ []*dominsp.Component, deep bool) ([]domain.Finding, error) {
	p.calls++
	if deep {
		p.deepCalls++
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.findings, nil
}

func (p *fakeProvider) GenerateReport(_ context.Context, _ *dominsp.Inspection) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.report, nil
}

type fixture struct {
	svc      *Service
	insp     *appinsp.Service
	store    *memstore.Store
	provider *fakeProvider
	inspID   dominsp.InspectionID
	comp     *dominsp.Component
}

func newFixture(t *testing.T) (*fixture, *authz.SecurityContext) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	provider := &fakeProvider{}

	inspSvc := &appinsp.Service{Repo: store.Inspections(), Clock: clock, Logger: logger}
	svc := NewService(store.Jobs(), store.Inspections(), store.Issues(), provider, clock, logger)

	sc := &authz.SecurityContext{UserID: "usr-1", TenantID: "tnt-a", Role: authz.RoleInspector}
	insp, err := inspSvc.Create(ctx, sc, appinsp.CreateInspectionCommand{PropertyAddress: "12 Elm St"})
	require.NoError(t, err)
	room, err := inspSvc.AddRoom(ctx, sc, insp.ID, "Kitchen", "kitchen", 1)
	require.NoError(t, err)
	comp, err := inspSvc.AddComponent(ctx, sc, room.ID, "Sink")
	require.NoError(t, err)

	return &fixture{svc: svc, insp: inspSvc, store: store, provider: provider, inspID: insp.ID, comp: comp}, sc
}

func TestStartJob_ReturnsPendingImmediately(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	job, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeAnalyzeInspection, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Equal(t, 0, fx.provider.calls, "provider must not run on the caller's path")

	got, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestAnalysisJob_WritesPendingAIIssues(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	fx.provider.findings = []domain.Finding{
		{ComponentID: fx.comp.ID, Type: "water_damage", Severity: domissues.SeverityMajor, Confidence: 0.82, Notes: "staining under the basin"},
	}

	_, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeAnalyzeInspection, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	job, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, "1 finding(s) detected", job.ResultSummary)

	issues, err := fx.store.Issues().ListByComponent(ctx, "tnt-a", fx.comp.ID, domissues.ListFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, domissues.SourceAI, issues[0].Source)
	assert.True(t, issues[0].NeedsConfirmation)
	assert.Equal(t, domissues.ResolutionPending, issues[0].AIResolution)
	assert.Equal(t, 0.82, issues[0].Confidence)

	insp, err := fx.store.Inspections().GetInspection(ctx, fx.inspID)
	require.NoError(t, err)
	assert.Equal(t, 1, insp.AnalysisVersion)
}

func TestAnalysisJob_SkipsUnknownComponents(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	fx.provider.findings = []domain.Finding{
		{ComponentID: "comp-ghost", Type: "crack", Severity: domissues.SeverityMinor, Confidence: 0.5},
		{ComponentID: fx.comp.ID, Type: "crack", Severity: domissues.SeverityMinor, Confidence: 0.6},
	}

	_, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeAnalyzeInspection, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	job, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, "1 finding(s) detected", job.ResultSummary)
}

func TestAnalysisJob_DeepFlag(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	_, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeDeepAnalysis, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	assert.Equal(t, 1, fx.provider.calls)
	assert.Equal(t, 1, fx.provider.deepCalls)
}

func TestAnalysisJob_ProviderFailure(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	fx.provider.err = errors.New("model overloaded")

	_, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeAnalyzeInspection, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	job, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.ResultSummary, "model overloaded")
}

func TestReportJob_StoresPayload(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	fx.provider.report = "# Inspection Report\n\nAll clear."

	_, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeGenerateReport, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	job, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, fx.provider.report, job.ResultPayload)
}

func TestTTSJob_NoExecutorFailsTerminally(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	_, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeTTSGeneration, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	job, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.ResultSummary, "no executor")
}

func TestStartJob_ViewerForbidden(t *testing.T) {
	ctx := context.Background()
	fx, _ := newFixture(t)

	viewer := &authz.SecurityContext{UserID: "usr-v", TenantID: "tnt-a", Role: authz.RoleViewer}
	_, err := fx.svc.StartJob(ctx, viewer, fx.inspID, domain.TypeAnalyzeInspection, "")
	assert.Equal(t, faults.KindForbiddenRole, faults.KindOf(err))
}

func TestStartJob_CrossTenant(t *testing.T) {
	ctx := context.Background()
	fx, _ := newFixture(t)

	other := &authz.SecurityContext{UserID: "usr-b", TenantID: "tnt-b", Role: authz.RoleAdmin}
	_, err := fx.svc.StartJob(ctx, other, fx.inspID, domain.TypeAnalyzeInspection, "")
	assert.Equal(t, faults.KindTenantMismatch, faults.KindOf(err))
}

func TestStartJob_MissingInspection(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	_, err := fx.svc.StartJob(ctx, sc, "insp-ghost", domain.TypeAnalyzeInspection, "")
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestConcurrentStarts_LatestWins(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	first, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeAnalyzeInspection, "")
	require.NoError(t, err)
	second, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeAnalyzeInspection, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	history, err := fx.svc.ListJobs(ctx, sc, fx.inspID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, j := range history {
		assert.Equal(t, domain.StatusCompleted, j.Status)
	}
	assert.NotEqual(t, first.ID, second.ID)

	latest, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestGetStatus_NoJobsYet(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	job, err := fx.svc.GetStatus(ctx, sc, fx.inspID)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobStatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	job, err := fx.svc.StartJob(ctx, sc, fx.inspID, domain.TypeAnalyzeInspection, "")
	require.NoError(t, err)
	fx.svc.RunPending(ctx)

	err = fx.store.Jobs().UpdateStatus(ctx, "tnt-a", job.ID, domain.StatusRunning, "", "")
	assert.Equal(t, faults.KindInvalidState, faults.KindOf(err))
}
