package issues

import (
	"context"
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
	domain "github.com/propcheck/inspections/internal/domain/issues"
	"github.com/propcheck/inspections/internal/infra/memstore"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

func strp(v string) *string { return &v }

type fixture struct {
	svc    *Service
	insp   *appinsp.Service
	inspID dominsp.InspectionID
	comp   *dominsp.Component
	store  *memstore.Store
}

func newFixture(t *testing.T) (*fixture, *authz.SecurityContext) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	inspSvc := &appinsp.Service{Repo: store.Inspections(), Clock: clock, Logger: logger}
	svc := &Service{Repo: store.Issues(), Inspections: store.Inspections(), Clock: clock, Logger: logger}

	sc := &authz.SecurityContext{UserID: "usr-1", TenantID: "tnt-a", Role: authz.RoleInspector}
	insp, err := inspSvc.Create(ctx, sc, appinsp.CreateInspectionCommand{PropertyAddress: "12 Elm St"})
	require.NoError(t, err)
	room, err := inspSvc.AddRoom(ctx, sc, insp.ID, "Kitchen", "kitchen", 1)
	require.NoError(t, err)
	comp, err := inspSvc.AddComponent(ctx, sc, room.ID, "Sink")
	require.NoError(t, err)

	return &fixture{svc: svc, insp: inspSvc, inspID: insp.ID, comp: comp, store: store}, sc
}

// seedAIIssue inserts a pending AI finding the way the job worker does.
func (fx *fixture) seedAIIssue(t *testing.T, id domain.IssueID) *domain.Issue {
	t.Helper()
	issue := &domain.Issue{
		ID:                id,
		ComponentID:       fx.comp.ID,
		TenantID:          fx.comp.TenantID,
		Type:              "water_damage",
		Severity:          domain.SeverityMajor,
		Source:            domain.SourceAI,
		Confidence:        0.82,
		Notes:             "staining under the basin",
		NeedsConfirmation: true,
		AIResolution:      domain.ResolutionPending,
		CreatedAt:         time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, fx.store.Issues().Insert(context.Background(), issue))
	return issue
}

func TestCreateHumanIssue(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	issue, err := fx.svc.CreateHumanIssue(ctx, sc, CreateHumanIssueCommand{
		ComponentID: fx.comp.ID,
		Type:        "crack",
		Severity:    domain.SeverityModerate,
		Notes:       "hairline crack on the rim",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHuman, issue.Source)
	assert.Equal(t, 1.0, issue.Confidence)
	assert.Empty(t, issue.AIResolution)
}

func TestCreateHumanIssue_BadSeverity(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	_, err := fx.svc.CreateHumanIssue(ctx, sc, CreateHumanIssueCommand{
		ComponentID: fx.comp.ID,
		Type:        "crack",
		Severity:    "catastrophic",
	})
	assert.Equal(t, faults.KindInvalidState, faults.KindOf(err))
}

func TestResolve_AcceptCreatesLinkedCopy(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	ai := fx.seedAIIssue(t, "ai-42")

	res, err := fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveAccept, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ResolutionAccepted, res.AIIssue.AIResolution)
	// The AI original keeps its content untouched.
	assert.Equal(t, "staining under the basin", res.AIIssue.Notes)
	assert.Equal(t, domain.SeverityMajor, res.AIIssue.Severity)

	require.NotNil(t, res.HumanIssue)
	assert.Equal(t, domain.SourceHuman, res.HumanIssue.Source)
	assert.Equal(t, 1.0, res.HumanIssue.Confidence)
	assert.Equal(t, ai.Notes, res.HumanIssue.Notes)
	assert.Equal(t, ai.Severity, res.HumanIssue.Severity)
	require.NotNil(t, res.HumanIssue.Provenance)
	assert.Equal(t, ai.ID, res.HumanIssue.Provenance.DerivedFromIssueID)
	assert.Equal(t, "usr-1", res.HumanIssue.Provenance.AcceptedByUserID)
}

func TestResolve_AcceptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	ai := fx.seedAIIssue(t, "ai-42")

	first, err := fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveAccept, nil)
	require.NoError(t, err)

	second, err := fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveAccept, nil)
	require.NoError(t, err)
	require.NotNil(t, second.HumanIssue)
	assert.Equal(t, first.HumanIssue.ID, second.HumanIssue.ID, "no duplicate copy")

	human, err := fx.svc.HumanFindings(ctx, sc, fx.comp.ID)
	require.NoError(t, err)
	assert.Len(t, human, 1)
}

func TestResolve_AcceptWithOverride(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	ai := fx.seedAIIssue(t, "ai-42")

	sev := domain.SeverityCritical
	res, err := fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveAccept, &OverrideData{
		Severity: &sev,
		Notes:    strp("active leak, not just staining"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ResolutionOverridden, res.AIIssue.AIResolution)
	assert.Equal(t, domain.SeverityCritical, res.HumanIssue.Severity)
	assert.Equal(t, "active leak, not just staining", res.HumanIssue.Notes)
	// Unset override fields fall back to the AI values.
	assert.Equal(t, ai.Type, res.HumanIssue.Type)

	// Original stays as the provider produced it.
	assert.Equal(t, domain.SeverityMajor, res.AIIssue.Severity)
	assert.Equal(t, "staining under the basin", res.AIIssue.Notes)
}

func TestResolve_RejectHidesButKeeps(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	ai := fx.seedAIIssue(t, "ai-42")

	res, err := fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveReject, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionRejected, res.AIIssue.AIResolution)
	assert.Nil(t, res.HumanIssue)
	require.NotNil(t, res.AIIssue.Provenance)
	assert.Equal(t, "usr-1", res.AIIssue.Provenance.RejectedByUserID)

	// Hidden from the default view, visible on demand.
	visible, err := fx.svc.List(ctx, sc, fx.comp.ID, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := fx.svc.List(ctx, sc, fx.comp.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ai.ID, all[0].ID)
}

func TestResolve_TerminalStatesDoNotFlip(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	ai := fx.seedAIIssue(t, "ai-42")

	_, err := fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveReject, nil)
	require.NoError(t, err)

	// Accept after reject is refused; the resolution is terminal.
	_, err = fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveAccept, nil)
	assert.Equal(t, faults.KindInvalidState, faults.KindOf(err))

	// Reject again is a harmless no-op.
	res, err := fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveReject, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionRejected, res.AIIssue.AIResolution)
}

func TestResolve_MissingIssue(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	_, err := fx.svc.ResolveAIIssue(ctx, sc, "ghost", ResolveAccept, nil)
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestResolve_HumanIssueIsNotResolvable(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	human, err := fx.svc.CreateHumanIssue(ctx, sc, CreateHumanIssueCommand{
		ComponentID: fx.comp.ID,
		Type:        "crack",
		Severity:    domain.SeverityMinor,
	})
	require.NoError(t, err)

	_, err = fx.svc.ResolveAIIssue(ctx, sc, human.ID, ResolveAccept, nil)
	assert.Equal(t, faults.KindInvalidState, faults.KindOf(err))
}

func TestResolve_FinalizedInspectionRefused(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	ai := fx.seedAIIssue(t, "ai-42")

	admin := &authz.SecurityContext{UserID: "usr-a", TenantID: "tnt-a", Role: authz.RoleAdmin}
	_, err := fx.insp.Finalize(ctx, admin, fx.inspID)
	require.NoError(t, err)

	_, err = fx.svc.ResolveAIIssue(ctx, sc, ai.ID, ResolveAccept, nil)
	assert.Equal(t, faults.KindInspectionFinalized, faults.KindOf(err))
}

func TestActiveAISuggestionsView(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)
	pending := fx.seedAIIssue(t, "ai-1")
	accepted := fx.seedAIIssue(t, "ai-2")

	_, err := fx.svc.ResolveAIIssue(ctx, sc, accepted.ID, ResolveAccept, nil)
	require.NoError(t, err)

	active, err := fx.svc.ActiveAISuggestions(ctx, sc, fx.comp.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, pending.ID, active[0].ID)

	// The accepted copy shows up among human findings instead.
	human, err := fx.svc.HumanFindings(ctx, sc, fx.comp.ID)
	require.NoError(t, err)
	require.Len(t, human, 1)
	assert.Equal(t, accepted.ID, human[0].Provenance.DerivedFromIssueID)
}
