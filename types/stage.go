// Package types defines the data model shared by the kgraph repositories:
// stages, spaces, instance identifiers, the JSON-like document container,
// per-item results, the metadata catalog model and the scope tree.
package types

// Stage is a logical partition representing a document's lifecycle position.
type Stage string

const (
	// StageNative holds the raw contributions before inference.
	StageNative Stage = "NATIVE"
	// StageInProgress holds the inferred, editable documents.
	StageInProgress Stage = "IN_PROGRESS"
	// StageReleased holds the released snapshots.
	StageReleased Stage = "RELEASED"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageNative, StageInProgress, StageReleased:
		return true
	}
	return false
}

func (s Stage) String() string { return string(s) }
