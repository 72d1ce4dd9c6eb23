package types

import "strings"

// SpaceName identifies a tenant-like partition of instances.
type SpaceName string

func (s SpaceName) String() string { return string(s) }

// IsWildcard reports whether the space name is a wildcard pattern
// (a trailing "*"), as used in whitelist grants.
func (s SpaceName) IsWildcard() bool {
	return strings.HasSuffix(string(s), "*")
}

// MatchesWildcard reports whether other matches this wildcard pattern.
// A non-wildcard name only matches itself.
func (s SpaceName) MatchesWildcard(other SpaceName) bool {
	if !s.IsWildcard() {
		return s == other
	}
	return strings.HasPrefix(string(other), strings.TrimSuffix(string(s), "*"))
}

// Space carries the configuration and reflection state of a space.
type Space struct {
	Name SpaceName `json:"name"`

	// Declared flags from the space specification.
	AutoRelease   bool `json:"autoRelease"`
	ClientSpace   bool `json:"clientSpace"`
	DeferCache    bool `json:"deferCache"`
	ScopeRelevant bool `json:"scopeRelevant"`

	// Reflected is set when the space has no explicit specification and
	// was inferred purely from existing collections.
	Reflected bool `json:"reflected,omitempty"`
	// ExistsInDB is set when a collection for the space actually exists.
	ExistsInDB bool `json:"existsInDB,omitempty"`
}

// TranslateSpace masks a user's private space name with its public alias.
func TranslateSpace(name SpaceName, privateSpace SpaceName, alias SpaceName) SpaceName {
	if privateSpace != "" && name == privateSpace {
		return alias
	}
	return name
}
