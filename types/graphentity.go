package types

import "github.com/google/uuid"

// GraphEntity is a node of the neighborhood graph around an instance.
type GraphEntity struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Types    []string       `json:"types,omitempty"`
	Space    string         `json:"space,omitempty"`
	Inbound  []*GraphEntity `json:"inbound"`
	Outbound []*GraphEntity `json:"outbound"`
}

// SuggestedLink is a linkable instance offered while editing a relation.
type SuggestedLink struct {
	ID             uuid.UUID `json:"id"`
	Label          string    `json:"label,omitempty"`
	Type           string    `json:"type,omitempty"`
	Space          string    `json:"space,omitempty"`
	AdditionalInfo string    `json:"additionalInformation,omitempty"`
}
