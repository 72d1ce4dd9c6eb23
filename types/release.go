package types

// ReleaseStatus describes how an instance relates to its released revision.
type ReleaseStatus string

const (
	// StatusReleased means the released revision matches the current one.
	StatusReleased ReleaseStatus = "RELEASED"
	// StatusHasChanged means a released revision exists but the instance
	// has been edited since.
	StatusHasChanged ReleaseStatus = "HAS_CHANGED"
	// StatusUnreleased means no released revision exists.
	StatusUnreleased ReleaseStatus = "UNRELEASED"
)

// Worse returns the more severe of two statuses. Severity orders
// UNRELEASED > HAS_CHANGED > RELEASED.
func (s ReleaseStatus) Worse(other ReleaseStatus) ReleaseStatus {
	if s.severity() >= other.severity() {
		return s
	}
	return other
}

func (s ReleaseStatus) severity() int {
	switch s {
	case StatusUnreleased:
		return 2
	case StatusHasChanged:
		return 1
	default:
		return 0
	}
}

// ReleaseTreeScope selects which part of an instance's dependency tree a
// release-status query covers.
type ReleaseTreeScope string

const (
	// TopInstanceOnly inspects only the instance itself.
	TopInstanceOnly ReleaseTreeScope = "TOP_INSTANCE_ONLY"
	// ChildrenOnly aggregates the statuses of all dependencies.
	ChildrenOnly ReleaseTreeScope = "CHILDREN_ONLY"
	// ChildrenOnlyRestricted aggregates dependencies over the restricted
	// dependency tree, skipping elements flagged as excludable.
	ChildrenOnlyRestricted ReleaseTreeScope = "CHILDREN_ONLY_RESTRICTED"
)
