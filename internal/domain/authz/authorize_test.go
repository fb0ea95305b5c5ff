package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propcheck/inspections/internal/domain/faults"
)

func inspector(tenant string) *SecurityContext {
	return &SecurityContext{UserID: "usr-1", TenantID: tenant, Role: RoleInspector}
}

func TestAuthorize_CheckOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	// Worst case on every axis at once: no identity, wrong tenant,
	// finalized resource, role not permitted. Authentication must win.
	res := &Resource{ID: "insp-1", Type: "inspection", TenantID: "tnt-a", Finalized: true}

	err := Authorize(ActionReportFinalize, res, nil)
	require.Error(t, err)
	assert.Equal(t, faults.KindUnauthenticated, faults.KindOf(err))

	err = Authorize(ActionReportFinalize, res, &SecurityContext{TenantID: "tnt-b", Role: RoleViewer})
	assert.Equal(t, faults.KindUnauthenticated, faults.KindOf(err))

	// With identity, tenant mismatch is reported before the finalization lock.
	err = Authorize(ActionReportFinalize, res, &SecurityContext{UserID: "u", TenantID: "tnt-b", Role: RoleViewer})
	assert.Equal(t, faults.KindTenantMismatch, faults.KindOf(err))

	// Same tenant: finalization lock fires before the role check.
	err = Authorize(ActionReportFinalize, res, &SecurityContext{UserID: "u", TenantID: "tnt-a", Role: RoleViewer})
	assert.Equal(t, faults.KindInspectionFinalized, faults.KindOf(err))
}

func TestAuthorize_TenantMismatchRegardlessOfRole(t *testing.T) {
	t.Parallel()

	res := &Resource{ID: "insp-1", Type: "inspection", TenantID: "tnt-a"}
	for _, role := range []Role{RoleAdmin, RoleInspector, RoleViewer} {
		sc := &SecurityContext{UserID: "u", TenantID: "tnt-b", Role: role}
		err := Authorize(ActionInspectionRead, res, sc)
		assert.Equal(t, faults.KindTenantMismatch, faults.KindOf(err), "role %s", role)
	}
}

func TestAuthorize_SystemServiceBypassesTenantScope(t *testing.T) {
	t.Parallel()

	res := &Resource{ID: "cmp-1", Type: "component", TenantID: "tnt-a"}
	sc := &SecurityContext{UserID: "svc-worker", TenantID: "", Role: RoleSystemService}
	assert.NoError(t, Authorize(ActionIssueCreate, res, sc))
}

func TestAuthorize_FinalizedBlocksMutationsOnly(t *testing.T) {
	t.Parallel()

	res := &Resource{ID: "insp-1", Type: "inspection", TenantID: "tnt-a", Finalized: true}
	sc := inspector("tnt-a")

	for _, action := range []Action{
		ActionInspectionUpdate, ActionComponentUpdate, ActionIssueCreate,
		ActionIssueResolve, ActionAnalysisTrigger, ActionReportGenerate,
		ActionMediaUpload,
	} {
		err := Authorize(action, res, sc)
		assert.Equal(t, faults.KindInspectionFinalized, faults.KindOf(err), "action %s", action)
	}

	// Reads stay open after finalization.
	assert.NoError(t, Authorize(ActionInspectionRead, res, sc))
	assert.NoError(t, Authorize(ActionIssueRead, res, sc))
	assert.NoError(t, Authorize(ActionJobRead, res, sc))
}

func TestAuthorize_RoleTable(t *testing.T) {
	t.Parallel()

	res := &Resource{ID: "insp-1", Type: "inspection", TenantID: "tnt-a"}

	tests := []struct {
		name   string
		role   Role
		action Action
		kind   string // "" means allowed
	}{
		{"viewer cannot trigger analysis", RoleViewer, ActionAnalysisTrigger, faults.KindForbiddenRole},
		{"viewer cannot edit components", RoleViewer, ActionComponentUpdate, faults.KindForbiddenRole},
		{"viewer can read", RoleViewer, ActionInspectionRead, ""},
		{"viewer can chat", RoleViewer, ActionChatSend, ""},
		{"inspector cannot finalize", RoleInspector, ActionReportFinalize, faults.KindForbiddenRole},
		{"inspector can trigger analysis", RoleInspector, ActionAnalysisTrigger, ""},
		{"inspector can resolve issues", RoleInspector, ActionIssueResolve, ""},
		{"admin can finalize", RoleAdmin, ActionReportFinalize, ""},
		{"system service cannot finalize", RoleSystemService, ActionReportFinalize, faults.KindForbiddenRole},
		{"system service cannot chat", RoleSystemService, ActionChatSend, faults.KindForbiddenRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &SecurityContext{UserID: "u", TenantID: "tnt-a", Role: tt.role}
			err := Authorize(tt.action, res, sc)
			if tt.kind == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.kind, faults.KindOf(err))
			}
		})
	}
}

func TestAuthorize_UnknownActionFailsClosed(t *testing.T) {
	t.Parallel()

	err := Authorize(Action("inspection:drop"), nil, inspector("tnt-a"))
	assert.Equal(t, faults.KindForbiddenRole, faults.KindOf(err))
}
