package sharekit

import "fmt"

// PrivilegeCode is the ordered privilege lattice. Lower numeric values are
// more permissive: OWNER < CHANGE < VIEW < NONE.
type PrivilegeCode int16

const (
	// PrivilegeOwner grants full control, including sharing, unsharing and
	// deleting the object. Owners are exempt from the immutability cap.
	PrivilegeOwner PrivilegeCode = 1

	// PrivilegeChange grants read and write access to the object.
	PrivilegeChange PrivilegeCode = 2

	// PrivilegeView grants read-only access to the object.
	PrivilegeView PrivilegeCode = 3

	// PrivilegeNone is the absence of privilege. A missing privilege row
	// resolves to PrivilegeNone.
	PrivilegeNone PrivilegeCode = 4
)

// MinPrivilege returns the more permissive of two privileges. Combining
// independent access paths always keeps the strongest one.
func MinPrivilege(a, b PrivilegeCode) PrivilegeCode {
	if a < b {
		return a
	}
	return b
}

// Grants reports whether p satisfies a requirement of at least q.
// PrivilegeNone never satisfies anything, including itself.
func (p PrivilegeCode) Grants(q PrivilegeCode) bool {
	return p != PrivilegeNone && p <= q
}

// Valid reports whether p is one of the four defined codes.
func (p PrivilegeCode) Valid() bool {
	return p >= PrivilegeOwner && p <= PrivilegeNone
}

// Shareable reports whether p is a grantable level. NONE is produced by
// unshare ledger entries but can never be requested in a share call.
func (p PrivilegeCode) Shareable() bool {
	return p >= PrivilegeOwner && p <= PrivilegeView
}

// String returns the lowercase name of the privilege code.
func (p PrivilegeCode) String() string {
	switch p {
	case PrivilegeOwner:
		return "owner"
	case PrivilegeChange:
		return "change"
	case PrivilegeView:
		return "view"
	case PrivilegeNone:
		return "none"
	default:
		return fmt.Sprintf("privilege(%d)", int16(p))
	}
}

// ParsePrivilege converts a privilege name back to its code.
func ParsePrivilege(s string) (PrivilegeCode, error) {
	switch s {
	case "owner":
		return PrivilegeOwner, nil
	case "change":
		return PrivilegeChange, nil
	case "view":
		return PrivilegeView, nil
	case "none":
		return PrivilegeNone, nil
	default:
		return 0, fmt.Errorf("%w: unknown privilege %q", ErrInvalidPrivilege, s)
	}
}
