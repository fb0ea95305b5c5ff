package components

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
	domain "github.com/propcheck/inspections/internal/domain/inspections"
	"github.com/propcheck/inspections/internal/infra/memstore"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

func boolp(v bool) *bool      { return &v }
func strp(v string) *string   { return &v }

type fixture struct {
	svc    *Service
	insp   *appinsp.Service
	inspID domain.InspectionID
	comp   *domain.Component
}

func newFixture(t *testing.T) (*fixture, *authz.SecurityContext) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	inspSvc := &appinsp.Service{Repo: store.Inspections(), Clock: clock, Logger: logger}
	svc := &Service{Repo: store.Inspections(), Clock: clock, Logger: logger}

	sc := &authz.SecurityContext{UserID: "usr-1", TenantID: "tnt-a", Role: authz.RoleInspector}
	insp, err := inspSvc.Create(ctx, sc, appinsp.CreateInspectionCommand{PropertyAddress: "12 Elm St"})
	require.NoError(t, err)
	room, err := inspSvc.AddRoom(ctx, sc, insp.ID, "Kitchen", "kitchen", 1)
	require.NoError(t, err)
	comp, err := inspSvc.AddComponent(ctx, sc, room.ID, "Sink")
	require.NoError(t, err)

	return &fixture{svc: svc, insp: inspSvc, inspID: insp.ID, comp: comp}, sc
}

func TestApplyEdit_MergesOnlySuppliedFlags(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	got, err := fx.svc.ApplyEdit(ctx, sc, fx.comp.ID, EditCommand{
		Condition:       &ConditionPatch{Clean: boolp(true)},
		ExpectedVersion: fx.comp.Version,
	})
	require.NoError(t, err)

	require.NotNil(t, got.Condition.Clean)
	assert.True(t, *got.Condition.Clean)
	assert.Nil(t, got.Condition.Undamaged, "unsupplied flag stays unassessed")
	assert.Nil(t, got.Condition.Working)
	assert.True(t, got.HumanEdits.ConditionFlagsEdited)
	assert.False(t, got.HumanEdits.OverviewCommentEdited)
	require.NotNil(t, got.HumanEdits.LastHumanEditAt)
	assert.EqualValues(t, fx.comp.Version+1, got.Version)

	// A second edit keeps the earlier flag.
	got, err = fx.svc.ApplyEdit(ctx, sc, fx.comp.ID, EditCommand{
		Condition:       &ConditionPatch{Working: boolp(false)},
		ExpectedVersion: got.Version,
	})
	require.NoError(t, err)
	require.NotNil(t, got.Condition.Clean)
	assert.True(t, *got.Condition.Clean)
	require.NotNil(t, got.Condition.Working)
	assert.False(t, *got.Condition.Working)
}

func TestApplyEdit_CommentPatch(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	got, err := fx.svc.ApplyEdit(ctx, sc, fx.comp.ID, EditCommand{
		OverviewComment: strp("scratches on the basin"),
		ExpectedVersion: fx.comp.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, "scratches on the basin", got.OverviewComment)
	assert.True(t, got.HumanEdits.OverviewCommentEdited)
	assert.False(t, got.HumanEdits.ConditionFlagsEdited)
}

func TestApplyEdit_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	first, err := fx.svc.ApplyEdit(ctx, sc, fx.comp.ID, EditCommand{
		Condition:       &ConditionPatch{Clean: boolp(true)},
		ExpectedVersion: fx.comp.Version,
	})
	require.NoError(t, err)
	require.EqualValues(t, fx.comp.Version+1, first.Version)

	// Replaying with the version we read before the first edit loses.
	_, err = fx.svc.ApplyEdit(ctx, sc, fx.comp.ID, EditCommand{
		Condition:       &ConditionPatch{Clean: boolp(false)},
		ExpectedVersion: fx.comp.Version,
	})
	assert.Equal(t, faults.KindConflictRetry, faults.KindOf(err))
}

func TestApplyEdit_FinalizedInspectionRefused(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	admin := &authz.SecurityContext{UserID: "usr-admin", TenantID: "tnt-a", Role: authz.RoleAdmin}
	_, err := fx.insp.Finalize(ctx, admin, fx.inspID)
	require.NoError(t, err)

	_, err = fx.svc.ApplyEdit(ctx, sc, fx.comp.ID, EditCommand{
		OverviewComment: strp("too late"),
		ExpectedVersion: fx.comp.Version,
	})
	assert.Equal(t, faults.KindInspectionFinalized, faults.KindOf(err))
}

func TestApplyEdit_ViewerForbidden(t *testing.T) {
	ctx := context.Background()
	fx, _ := newFixture(t)

	viewer := &authz.SecurityContext{UserID: "usr-v", TenantID: "tnt-a", Role: authz.RoleViewer}
	_, err := fx.svc.ApplyEdit(ctx, viewer, fx.comp.ID, EditCommand{
		OverviewComment: strp("nope"),
		ExpectedVersion: fx.comp.Version,
	})
	assert.Equal(t, faults.KindForbiddenRole, faults.KindOf(err))
}

func TestApplyEdit_EmptyPatchRejected(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	_, err := fx.svc.ApplyEdit(ctx, sc, fx.comp.ID, EditCommand{ExpectedVersion: fx.comp.Version})
	assert.Equal(t, faults.KindInvalidState, faults.KindOf(err))
}

func TestApplyEdit_UnknownComponent(t *testing.T) {
	ctx := context.Background()
	fx, sc := newFixture(t)

	_, err := fx.svc.ApplyEdit(ctx, sc, "missing", EditCommand{OverviewComment: strp("x")})
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}
