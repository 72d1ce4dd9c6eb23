package permissions

import (
	"github.com/google/uuid"

	"github.com/c360/kgraph/types"
)

// StaticEngine answers grant questions from a fixed global grant set. It
// carries no space or instance scoped grants, so it suits service identities
// whose rights do not depend on where a document lives: maintenance jobs,
// cache warmers and tests.
type StaticEngine struct {
	global map[Functionality]bool
	all    bool
}

// NewStaticEngine builds an engine holding the given global grants.
func NewStaticEngine(global ...Functionality) *StaticEngine {
	grants := make(map[Functionality]bool, len(global))
	for _, f := range global {
		grants[f] = true
	}
	return &StaticEngine{global: grants}
}

// NewAdminEngine builds an engine holding every global grant.
func NewAdminEngine() *StaticEngine {
	return &StaticEngine{all: true}
}

// HasGlobalPermission reports whether the grant set contains f.
func (e *StaticEngine) HasGlobalPermission(f Functionality) bool {
	return e.all || e.global[f]
}

// HasSpacePermission reports the global grant; a static engine holds no
// space scoped grants.
func (e *StaticEngine) HasSpacePermission(f Functionality, _ types.SpaceName) bool {
	return e.HasGlobalPermission(f)
}

// HasInstancePermission reports the global grant; a static engine holds no
// instance scoped grants.
func (e *StaticEngine) HasInstancePermission(f Functionality, _ types.SpaceName, _ uuid.UUID) bool {
	return e.HasGlobalPermission(f)
}

// SpacesWithPermission returns nil: global grants already cover every space.
func (e *StaticEngine) SpacesWithPermission(Functionality) []types.SpaceName {
	return nil
}

// InstancesWithPermission returns nil: global grants already cover every
// instance.
func (e *StaticEngine) InstancesWithPermission(Functionality) []types.InstanceID {
	return nil
}
