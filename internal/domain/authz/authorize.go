// Package authz is the single source of truth for authorization decisions.
// Every gateway operation that touches tenant data calls Authorize before
// delegating to a store or service; no decision is made anywhere else.
//
// Checks run in a fixed order so failures are deterministic:
// authentication, then tenant match, then the finalization lock, then the
// role table. An unauthenticated call against a finalized resource in the
// wrong tenant therefore reports Unauthenticated, nothing else.
package authz

import (
	"github.com/propcheck/inspections/internal/domain/faults"
)

// Authorize decides whether sc may perform action against res. It is a
// pure function with no side effects; res may be nil for actions that
// have no target resource (chat, tenant-wide listing).
func Authorize(action Action, res *Resource, sc *SecurityContext) error {
	if !sc.Authenticated() {
		return faults.Unauthenticated("missing caller identity")
	}

	// SystemService identities act platform-wide (internal job worker),
	// so tenant scoping does not apply to them.
	if res != nil && sc.Role != RoleSystemService {
		if res.TenantID != sc.TenantID {
			return faults.TenantMismatch(res.TenantID, sc.TenantID)
		}
	}

	if res != nil && mutatingActions[action] && res.Finalized {
		return faults.InspectionFinalized(res.ID)
	}

	if !RoleAllowed(action, sc.Role) {
		return faults.ForbiddenRole(string(sc.Role), string(action))
	}

	return nil
}
