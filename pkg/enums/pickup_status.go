package enums

import "fmt"

// PickupStatus tracks the lifecycle of a pickup request.
type PickupStatus string

const (
	PickupStatusRequested         PickupStatus = "REQUESTED"
	PickupStatusFindingVendor     PickupStatus = "FINDING_VENDOR"
	PickupStatusAssigned          PickupStatus = "ASSIGNED"
	PickupStatusOnTheWay          PickupStatus = "ON_THE_WAY"
	PickupStatusCompleted         PickupStatus = "COMPLETED"
	PickupStatusCancelled         PickupStatus = "CANCELLED"
	PickupStatusNoVendorAvailable PickupStatus = "NO_VENDOR_AVAILABLE"
)

var validPickupStatuses = []PickupStatus{
	PickupStatusRequested,
	PickupStatusFindingVendor,
	PickupStatusAssigned,
	PickupStatusOnTheWay,
	PickupStatusCompleted,
	PickupStatusCancelled,
	PickupStatusNoVendorAvailable,
}

// String implements fmt.Stringer.
func (p PickupStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PickupStatus.
func (p PickupStatus) IsValid() bool {
	for _, candidate := range validPickupStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsAbsorbing reports whether no transition may ever leave this status.
func (p PickupStatus) IsAbsorbing() bool {
	return p == PickupStatusCompleted || p == PickupStatusCancelled
}

// IsTerminalForDispatch reports whether the dispatcher has nothing left to
// do for a pickup in this status.
func (p PickupStatus) IsTerminalForDispatch() bool {
	switch p {
	case PickupStatusAssigned, PickupStatusOnTheWay, PickupStatusCompleted, PickupStatusCancelled:
		return true
	}
	return false
}

// ParsePickupStatus converts raw input into a PickupStatus.
func ParsePickupStatus(value string) (PickupStatus, error) {
	for _, candidate := range validPickupStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pickup status %q", value)
}
