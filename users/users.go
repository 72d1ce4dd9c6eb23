// Package users declares the user-profile collaborator consumed when
// alternative values are resolved to their contributors.
package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/c360/kgraph/types"
)

// Store answers batch profile lookups. User profiles are not staged, so
// implementations always read the primary store.
type Store interface {
	// Profiles returns the reduced profile per requested user. Unknown users
	// are simply absent from the result.
	Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]types.ReducedUserInfo, error)
}
