package membership

import (
	"errors"

	"tenant-service/internal/model"
)

var (
	// ErrDuplicateOwner means the company already has an owner membership.
	ErrDuplicateOwner = errors.New("company already has an owner")

	// ErrInvalidRole is returned for roles outside owner, admin and member.
	ErrInvalidRole = errors.New("invalid membership role")

	// ErrDuplicateMembership means the account already belongs to the company.
	ErrDuplicateMembership = errors.New("account is already a member of the company")

	// ErrMembershipNotFound is returned for unknown or removed memberships.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrMembershipImmutable is returned when an update moves a membership to another account or company.
	ErrMembershipImmutable = errors.New("membership account and company cannot change")

	// ErrNotDeletable is returned when removing an owner membership.
	ErrNotDeletable = errors.New("owner membership cannot be removed")

	ErrAccountNotFound = errors.New("account not found")
	ErrCompanyNotFound = errors.New("company not found")

	ErrMissingActor = model.ErrMissingActor
)
