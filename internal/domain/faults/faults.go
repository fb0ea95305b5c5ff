// Package faults defines the error taxonomy shared by every service.
// All authorization, lookup, and state errors surface as a *Fault with a
// stable kind code so the HTTP layer can map them without string matching.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind codes for classified failures.
const (
	KindUnauthenticated      = "unauthenticated"
	KindForbiddenRole        = "forbidden_role"
	KindTenantMismatch       = "tenant_mismatch"
	KindNotFound             = "not_found"
	KindInspectionFinalized  = "inspection_finalized"
	KindInvalidState         = "invalid_state"
	KindConflictRetry        = "conflict_retry"
	KindServiceUnavailable   = "service_unavailable"
	KindBillingQuotaExceeded = "billing_quota_exceeded"
)

// httpStatusMap maps kind codes to HTTP status codes.
var httpStatusMap = map[string]int{
	KindUnauthenticated:      http.StatusUnauthorized,
	KindForbiddenRole:        http.StatusForbidden,
	KindTenantMismatch:       http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindInspectionFinalized:  http.StatusConflict,
	KindInvalidState:         http.StatusUnprocessableEntity,
	KindConflictRetry:        http.StatusConflict,
	KindServiceUnavailable:   http.StatusServiceUnavailable,
	KindBillingQuotaExceeded: http.StatusTooManyRequests,
}

// Fault is a classified error.
type Fault struct {
	Kind    string // one of the Kind* constants
	Message string
	Status  int
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// HTTPStatus returns the status code the HTTP layer should respond with.
func (f *Fault) HTTPStatus() int {
	return f.Status
}

func newFault(kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message, Status: httpStatusMap[kind]}
}

// Unauthenticated means no caller identity was supplied.
func Unauthenticated(msg string) *Fault {
	return newFault(KindUnauthenticated, msg)
}

// ForbiddenRole means the caller's role is not permitted the action.
func ForbiddenRole(role, action string) *Fault {
	return newFault(KindForbiddenRole, fmt.Sprintf("role %q may not perform %q", role, action))
}

// TenantMismatch means the target resource belongs to a different tenant.
func TenantMismatch(want, got string) *Fault {
	return newFault(KindTenantMismatch, fmt.Sprintf("resource belongs to tenant %q, caller is %q", want, got))
}

// NotFound means the referenced entity does not exist in the caller's tenant.
func NotFound(entity, id string) *Fault {
	return newFault(KindNotFound, fmt.Sprintf("%s %q not found", entity, id))
}

// InspectionFinalized means the target inspection is frozen.
func InspectionFinalized(id string) *Fault {
	return newFault(KindInspectionFinalized, fmt.Sprintf("inspection %q is finalized", id))
}

// InvalidState means the requested transition is not legal from the current state.
func InvalidState(msg string) *Fault {
	return newFault(KindInvalidState, msg)
}

// ConflictRetry means a versioned write lost a race; the caller may re-read and retry.
func ConflictRetry(entity, id string) *Fault {
	return newFault(KindConflictRetry, fmt.Sprintf("%s %q was modified concurrently, retry with fresh version", entity, id))
}

// ServiceUnavailable means an external collaborator failed.
func ServiceUnavailable(msg string) *Fault {
	return newFault(KindServiceUnavailable, msg)
}

// BillingQuotaExceeded is reserved for plan-limit enforcement.
func BillingQuotaExceeded(msg string) *Fault {
	return newFault(KindBillingQuotaExceeded, msg)
}

// KindOf extracts the kind code from an error, or "" if it is not a Fault.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsKind reports whether err is a Fault of the given kind.
func IsKind(err error, kind string) bool {
	return KindOf(err) == kind
}
