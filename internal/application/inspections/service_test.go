package inspections

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	domain "github.com/propcheck/inspections/internal/domain/inspections"
	"github.com/propcheck/inspections/internal/infra/memstore"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() *Service {
	return &Service{
		Repo:   memstore.New().Inspections(),
		Clock:  fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		Logger: testLogger(),
	}
}

func adminCtx(tenant string) *authz.SecurityContext {
	return &authz.SecurityContext{UserID: "usr-admin", TenantID: tenant, Role: authz.RoleAdmin}
}

func inspectorCtx(tenant string) *authz.SecurityContext {
	return &authz.SecurityContext{UserID: "usr-inspector", TenantID: tenant, Role: authz.RoleInspector}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	sc := inspectorCtx("tnt-a")

	insp, err := svc.Create(ctx, sc, CreateInspectionCommand{
		InspectionType:  "move_out",
		PropertyAddress: "12 Elm St",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, insp.Status)
	assert.Equal(t, domain.ReportNone, insp.ReportStatus)
	assert.Equal(t, "tnt-a", insp.TenantID)
	assert.Equal(t, "usr-inspector", insp.CreatedByUserID)

	got, err := svc.Get(ctx, sc, insp.ID)
	require.NoError(t, err)
	assert.Equal(t, insp.ID, got.ID)
}

func TestGet_CrossTenantReportsMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	insp, err := svc.Create(ctx, inspectorCtx("tnt-a"), CreateInspectionCommand{PropertyAddress: "12 Elm St"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, inspectorCtx("tnt-b"), insp.ID)
	assert.Equal(t, faults.KindTenantMismatch, faults.KindOf(err))
}

func TestGet_MissingReportsNotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.Get(context.Background(), inspectorCtx("tnt-a"), "nope")
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestList_IsTenantScoped(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, inspectorCtx("tnt-a"), CreateInspectionCommand{PropertyAddress: "A"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, inspectorCtx("tnt-b"), CreateInspectionCommand{PropertyAddress: "B"})
	require.NoError(t, err)

	page, err := svc.List(ctx, inspectorCtx("tnt-a"), 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}

func TestFinalize_OneWayTransition(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	sc := adminCtx("tnt-a")

	insp, err := svc.Create(ctx, sc, CreateInspectionCommand{PropertyAddress: "12 Elm St"})
	require.NoError(t, err)

	done, err := svc.Finalize(ctx, sc, insp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, done.Status)
	assert.Equal(t, domain.ReportFinalized, done.ReportStatus)
	require.NotNil(t, done.FinalizedAt)

	// Second finalize hits the finalization lock in the kernel.
	_, err = svc.Finalize(ctx, sc, insp.ID)
	assert.Equal(t, faults.KindInspectionFinalized, faults.KindOf(err))

	// Structure edits below the inspection are refused too.
	_, err = svc.AddRoom(ctx, sc, insp.ID, "Kitchen", "kitchen", 1)
	assert.Equal(t, faults.KindInspectionFinalized, faults.KindOf(err))
}

func TestFinalize_AdminOnly(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	insp, err := svc.Create(ctx, inspectorCtx("tnt-a"), CreateInspectionCommand{PropertyAddress: "12 Elm St"})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, inspectorCtx("tnt-a"), insp.ID)
	assert.Equal(t, faults.KindForbiddenRole, faults.KindOf(err))
}

func TestAddRoomAndComponent_InheritTenant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	sc := inspectorCtx("tnt-a")

	insp, err := svc.Create(ctx, sc, CreateInspectionCommand{PropertyAddress: "12 Elm St"})
	require.NoError(t, err)

	room, err := svc.AddRoom(ctx, sc, insp.ID, "Kitchen", "kitchen", 1)
	require.NoError(t, err)
	assert.Equal(t, insp.TenantID, room.TenantID)

	comp, err := svc.AddComponent(ctx, sc, room.ID, "Sink")
	require.NoError(t, err)
	assert.Equal(t, room.TenantID, comp.TenantID)
	assert.EqualValues(t, 1, comp.Version)

	rooms, err := svc.Rooms(ctx, sc, insp.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	comps, err := svc.Components(ctx, sc, room.ID)
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "Sink", comps[0].Name)
}
