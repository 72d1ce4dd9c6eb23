package types

// ReducedUserInfo is the public slice of a user profile exposed inside
// alternatives: enough to attribute a contribution, nothing more.
type ReducedUserInfo struct {
	ID          string `json:"id"`
	AlternateID string `json:"alternateId,omitempty"`
	Name        string `json:"name,omitempty"`
	Picture     string `json:"picture,omitempty"`
}
