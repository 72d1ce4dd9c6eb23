package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// InstanceID is the canonical identity of an instance: its space and UUID.
type InstanceID struct {
	Space      SpaceName
	UUID       uuid.UUID
	Deprecated bool
}

// NewInstanceID builds an instance id from its parts.
func NewInstanceID(space SpaceName, id uuid.UUID) InstanceID {
	return InstanceID{Space: space, UUID: id}
}

// Serialize renders the structured form "space/uuid".
func (i InstanceID) Serialize() string {
	return fmt.Sprintf("%s/%s", i.Space, i.UUID)
}

func (i InstanceID) String() string { return i.Serialize() }

// ParseInstanceID parses the structured form "space/uuid". The second return
// value is false if the input does not match the structured shape; this is
// how the by-id query shortcut decides whether a search term is an id.
func ParseInstanceID(s string) (InstanceID, bool) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return InstanceID{}, false
	}
	id, err := uuid.Parse(s[idx+1:])
	if err != nil {
		return InstanceID{}, false
	}
	return InstanceID{Space: SpaceName(s[:idx]), UUID: id}, true
}

// IDWithAlternatives is the input to the id-resolution collaborator: a UUID
// plus the known alternative identifiers of the same instance.
type IDWithAlternatives struct {
	ID           uuid.UUID
	Alternatives []string
}
