package association

import "fmt"

// Status is the lifecycle state of an association context.
type Status uint8

const (
	StatusNonAssociated Status = iota
	StatusPending
	StatusAssociated
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusNonAssociated:
		return "non-associated"
	case StatusPending:
		return "association-pending"
	case StatusAssociated:
		return "associated"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// IsValid reports whether s is a defined status.
func (s Status) IsValid() bool {
	return s <= StatusAssociated
}

// AccessLevel is the access right granted by an association.
type AccessLevel uint8

const (
	AccessNone AccessLevel = iota
	AccessLowest
	AccessLow
	AccessHigh
)

// String returns the name of the access level.
func (l AccessLevel) String() string {
	switch l {
	case AccessNone:
		return "none"
	case AccessLowest:
		return "lowest"
	case AccessLow:
		return "low"
	case AccessHigh:
		return "high"
	default:
		return fmt.Sprintf("AccessLevel(%d)", uint8(l))
	}
}

// IsValid reports whether l is a defined access level.
func (l AccessLevel) IsValid() bool {
	return l <= AccessHigh
}
