// Package permissions evaluates what a caller may see. The repository layer
// never receives raw role information: it asks the Controller for an access
// decision per instance, or for a materialized whitelist it can push down
// into queries.
package permissions

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/types"
)

// Functionality is a named capability a caller can hold globally, per space
// or per instance.
type Functionality string

const (
	// FuncRead grants full payload access at the editable stage.
	FuncRead Functionality = "READ"
	// FuncReadReleased grants full payload access at the released stage.
	FuncReadReleased Functionality = "READ_RELEASED"
	// FuncMinimalRead grants label-level access at the editable stage.
	FuncMinimalRead Functionality = "MINIMAL_READ"
	// FuncReleaseStatus grants access to release state information.
	FuncReleaseStatus Functionality = "RELEASE_STATUS"
	// FuncSuggest grants access to link suggestions.
	FuncSuggest Functionality = "SUGGEST"
)

// AccessDecision is the per-instance outcome of a read check.
type AccessDecision int

const (
	// AccessNone denies any payload.
	AccessNone AccessDecision = iota
	// AccessMinimal exposes label-level fields only.
	AccessMinimal
	// AccessFull exposes the whole payload.
	AccessFull
)

func (a AccessDecision) String() string {
	switch a {
	case AccessFull:
		return "full"
	case AccessMinimal:
		return "minimal"
	default:
		return "none"
	}
}

// Engine answers raw grant questions for the current caller. Implementations
// wrap whatever authentication system is in front of the store.
type Engine interface {
	HasGlobalPermission(f Functionality) bool
	HasSpacePermission(f Functionality, space types.SpaceName) bool
	HasInstancePermission(f Functionality, space types.SpaceName, id uuid.UUID) bool
	SpacesWithPermission(f Functionality) []types.SpaceName
	InstancesWithPermission(f Functionality) []types.InstanceID
}

// Controller translates raw grants into the decisions the repositories need.
type Controller struct {
	engine Engine
	logger *slog.Logger
}

// NewController wires a permission controller.
func NewController(engine Engine, logger *slog.Logger) (*Controller, error) {
	if engine == nil {
		return nil, errors.WrapInvalid(nil, "permissions", "NewController", "engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{engine: engine, logger: logger}, nil
}

// ReadFunctionality is the capability granting full payload access at the
// given stage.
func ReadFunctionality(stage types.Stage) Functionality {
	if stage == types.StageReleased {
		return FuncReadReleased
	}
	return FuncRead
}

// MinimalReadFunctionality is the capability granting reduced payload access.
// The released stage has no reduced tier.
func MinimalReadFunctionality(stage types.Stage) (Functionality, bool) {
	if stage == types.StageReleased {
		return "", false
	}
	return FuncMinimalRead, true
}

// DecideAccess classifies the caller's access to one instance.
func (c *Controller) DecideAccess(stage types.Stage, space types.SpaceName, id uuid.UUID) AccessDecision {
	if c.hasPermission(ReadFunctionality(stage), space, id) {
		return AccessFull
	}
	if minimal, ok := MinimalReadFunctionality(stage); ok && c.hasPermission(minimal, space, id) {
		return AccessMinimal
	}
	return AccessNone
}

// HasAtLeastMinimalAccess reports whether any payload at all may be exposed.
func (c *Controller) HasAtLeastMinimalAccess(stage types.Stage, space types.SpaceName, id uuid.UUID) bool {
	return c.DecideAccess(stage, space, id) != AccessNone
}

// HasGlobalRead reports whether the caller reads everything at the stage.
func (c *Controller) HasGlobalRead(stage types.Stage) bool {
	return c.engine.HasGlobalPermission(ReadFunctionality(stage))
}

// HasSpaceFunctionality checks a capability against a space.
func (c *Controller) HasSpaceFunctionality(f Functionality, space types.SpaceName) bool {
	return c.engine.HasGlobalPermission(f) || c.engine.HasSpacePermission(f, space)
}

// HasInstanceFunctionality checks a capability against a single instance.
func (c *Controller) HasInstanceFunctionality(f Functionality, space types.SpaceName, id uuid.UUID) bool {
	return c.hasPermission(f, space, id)
}

func (c *Controller) hasPermission(f Functionality, space types.SpaceName, id uuid.UUID) bool {
	if c.engine.HasGlobalPermission(f) || c.engine.HasSpacePermission(f, space) {
		return true
	}
	return c.engine.HasInstancePermission(f, space, id)
}

// WhitelistedSpaces lists the spaces readable as a whole at the stage. The
// second return is false when the caller has global read and no restriction
// applies.
func (c *Controller) WhitelistedSpaces(stage types.Stage) ([]types.SpaceName, bool) {
	if c.HasGlobalRead(stage) {
		return nil, false
	}
	seen := map[types.SpaceName]bool{}
	var spaces []types.SpaceName
	add := func(list []types.SpaceName) {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				spaces = append(spaces, s)
			}
		}
	}
	add(c.engine.SpacesWithPermission(ReadFunctionality(stage)))
	if minimal, ok := MinimalReadFunctionality(stage); ok {
		add(c.engine.SpacesWithPermission(minimal))
	}
	return spaces, true
}

// InstancesWithExplicitRead lists instances the caller can read through a
// direct grant rather than a space grant.
func (c *Controller) InstancesWithExplicitRead(stage types.Stage) []types.InstanceID {
	ids := c.engine.InstancesWithPermission(ReadFunctionality(stage))
	if minimal, ok := MinimalReadFunctionality(stage); ok {
		ids = append(ids, c.engine.InstancesWithPermission(minimal)...)
	}
	return ids
}

// ReadWhitelist materializes the caller's read restriction for query
// push-down. A nil whitelist means unrestricted read.
func (c *Controller) ReadWhitelist(stage types.Stage) *aql.ReadWhitelist {
	spaces, restricted := c.WhitelistedSpaces(stage)
	if !restricted {
		return nil
	}
	wl := &aql.ReadWhitelist{Collections: []string{}, DocumentIDs: []string{}}
	for _, space := range spaces {
		wl.Collections = append(wl.Collections, aql.FromSpace(space).Name)
	}
	for _, inst := range c.InstancesWithExplicitRead(stage) {
		wl.DocumentIDs = append(wl.DocumentIDs, aql.NewDocumentReference(inst.Space, inst.UUID).ID())
	}
	return wl
}

// FilterReadableSpaces drops the spaces the caller cannot read at the stage.
func (c *Controller) FilterReadableSpaces(stage types.Stage, spaces []types.SpaceName) []types.SpaceName {
	readable, restricted := c.WhitelistedSpaces(stage)
	if !restricted {
		return spaces
	}
	allowed := map[types.SpaceName]bool{}
	for _, s := range readable {
		allowed[s] = true
	}
	var out []types.SpaceName
	for _, s := range spaces {
		if allowed[s] {
			out = append(out, s)
		}
	}
	return out
}
