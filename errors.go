package sharekit

import (
	"errors"
	"fmt"
)

// Sentinel errors for sharekit operations. Guard denials are expected
// outcomes and propagate as typed errors; they are never system failures.
var (
	// ErrInactiveActor is returned when the acting user is deactivated.
	ErrInactiveActor = errors.New("sharekit: actor is inactive")

	// ErrInactiveSubject is returned when the subject of a grant is inactive.
	ErrInactiveSubject = errors.New("sharekit: subject is inactive")

	// ErrInactiveObject is returned when the target object is inactive.
	ErrInactiveObject = errors.New("sharekit: object is inactive")

	// ErrInsufficientPrivilege is returned when the actor tries to grant a
	// privilege higher than their own effective privilege on the object.
	ErrInsufficientPrivilege = errors.New("sharekit: insufficient privilege to grant")

	// ErrMustOwnOrHaveSharingPrivilege is returned when the actor neither
	// owns the object nor holds sharing privilege over a shareable object.
	ErrMustOwnOrHaveSharingPrivilege = errors.New("sharekit: must own object or hold sharing privilege")

	// ErrNonOwnerReshareDenied is returned when a non-owner re-grants a
	// subject the privilege it already holds.
	ErrNonOwnerReshareDenied = errors.New("sharekit: non-owners cannot re-grant an existing privilege")

	// ErrNonOwnerDowngradeDenied is returned when a non-owner lowers another
	// subject's privilege. Non-owners may only lower their own.
	ErrNonOwnerDowngradeDenied = errors.New("sharekit: non-owners cannot lower another subject's privilege")

	// ErrCannotRemoveSoleOwner is returned when a mutation would leave the
	// object without any owner.
	ErrCannotRemoveSoleOwner = errors.New("sharekit: cannot remove or demote the sole owner")

	// ErrCannotRemoveQuotaHolder is returned when unsharing a resource from
	// the user whose quota it is charged against.
	ErrCannotRemoveQuotaHolder = errors.New("sharekit: cannot unshare resource from its quota holder")

	// ErrGroupsCannotOwnResources is returned when a group is granted OWNER
	// over a resource.
	ErrGroupsCannotOwnResources = errors.New("sharekit: groups cannot own resources")

	// ErrGroupsCannotOwnCommunities is returned when a group is granted OWNER
	// over a community.
	ErrGroupsCannotOwnCommunities = errors.New("sharekit: groups cannot own communities")

	// ErrCommunitiesViewOnly is returned when a community is granted
	// anything other than VIEW.
	ErrCommunitiesViewOnly = errors.New("sharekit: communities can only hold view privilege")

	// ErrNotGroupMember is returned when sharing a resource with a group the
	// actor does not belong to.
	ErrNotGroupMember = errors.New("sharekit: actor is not a member of the group")

	// ErrMustOwnCommunity is returned when sharing a community with a group
	// without owning the community.
	ErrMustOwnCommunity = errors.New("sharekit: actor must own the community")

	// ErrNotShared is returned when unsharing a pair that holds no access.
	ErrNotShared = errors.New("sharekit: subject holds no access to object")

	// ErrNothingToUndo is returned when the latest ledger entry is already
	// an undo, or no ledger entry exists for the pair.
	ErrNothingToUndo = errors.New("sharekit: nothing to undo")

	// ErrNotLastGrantor is returned when undo is attempted by anyone other
	// than the grantor of the current ledger entry.
	ErrNotLastGrantor = errors.New("sharekit: only the last grantor can undo a grant")

	// ErrAlreadyRedeemed is returned when acting on a redeemed membership request.
	ErrAlreadyRedeemed = errors.New("sharekit: request already redeemed")

	// ErrInvalidPrivilege is returned when a privilege code is out of range
	// or not grantable.
	ErrInvalidPrivilege = errors.New("sharekit: invalid privilege")

	// ErrInvalidPair is returned when a pair is missing identifiers.
	ErrInvalidPair = errors.New("sharekit: invalid pair")

	// ErrStorageFailure is returned when a persistence operation fails for a
	// reason no guard anticipated. The whole transaction is rolled back.
	ErrStorageFailure = errors.New("sharekit: storage failure")
)

// Error wraps a sentinel error with the identifiers involved in the denial.
type Error struct {
	Err       error         // Underlying sentinel error
	Message   string        // Additional context
	ActorID   string        // Acting user (if applicable)
	SubjectID string        // Subject of the grant (if applicable)
	ObjectID  string        // Object of the grant (if applicable)
	Privilege PrivilegeCode // Requested privilege (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithActor adds the acting user to the error.
func (e *Error) WithActor(actorID string) *Error {
	e.ActorID = actorID
	return e
}

// WithPair adds the subject and object identifiers to the error.
func (e *Error) WithPair(p Pair) *Error {
	e.SubjectID = p.SubjectID
	e.ObjectID = p.ObjectID
	return e
}

// WithPrivilege adds the requested privilege to the error.
func (e *Error) WithPrivilege(p PrivilegeCode) *Error {
	e.Privilege = p
	return e
}

// deniedSentinels is the closed set of guard denial errors.
var deniedSentinels = []error{
	ErrInactiveActor, ErrInactiveSubject, ErrInactiveObject,
	ErrInsufficientPrivilege, ErrMustOwnOrHaveSharingPrivilege,
	ErrNonOwnerReshareDenied, ErrNonOwnerDowngradeDenied,
	ErrCannotRemoveSoleOwner, ErrCannotRemoveQuotaHolder,
	ErrGroupsCannotOwnResources, ErrGroupsCannotOwnCommunities,
	ErrCommunitiesViewOnly, ErrNotGroupMember, ErrMustOwnCommunity,
	ErrNotShared, ErrNothingToUndo, ErrNotLastGrantor,
}

// IsDenied reports whether an error is any authorization denial, as opposed
// to a storage failure or invalid input.
func IsDenied(err error) bool {
	for _, sentinel := range deniedSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsSoleOwnerViolation checks if an error is a sole-owner floor failure.
func IsSoleOwnerViolation(err error) bool {
	return errors.Is(err, ErrCannotRemoveSoleOwner)
}

// IsStorageFailure checks if an error is a persistence-layer failure.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// storageError wraps a low-level persistence error as a StorageFailure while
// keeping the cause visible in the message.
func storageError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageFailure, op, cause)
}
