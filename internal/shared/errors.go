package shared

import "errors"

var (
	// ErrNotFound indicates a role, permission or user reference is invalid.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a unique name constraint was violated.
	ErrDuplicateName = errors.New("name already in use")
	// ErrSelfParent indicates a role was reassigned to itself.
	ErrSelfParent = errors.New("role cannot be its own parent")
	// ErrCycleDetected indicates a parent reassignment would create an ancestry loop.
	ErrCycleDetected = errors.New("role hierarchy cycle detected")
	// ErrRoleReferenced indicates a role cannot be deleted while users or child roles point at it.
	ErrRoleReferenced = errors.New("role is still referenced")
	// ErrConcurrentModification indicates the mutation lock could not be acquired in time.
	ErrConcurrentModification = errors.New("concurrent modification in progress")
	// ErrAuditWriteFailed indicates the audit trail could not be written; the enclosing mutation must roll back.
	ErrAuditWriteFailed = errors.New("audit write failed")
	// ErrCacheInconsistent indicates a cached effective set disagrees with a fresh recomputation.
	ErrCacheInconsistent = errors.New("permission cache inconsistent")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
)
