package courseware

import (
	"context"

	"github.com/google/uuid"
)

// NoAdmins is the default Identity: nobody gets the admin bypass.
type NoAdmins struct{}

func (NoAdmins) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return false, nil
}

// StaticAdmins grants the admin bypass to a fixed set of user ids,
// typically loaded from server configuration.
type StaticAdmins map[uuid.UUID]bool

// NewStaticAdmins builds a StaticAdmins set from the given ids.
func NewStaticAdmins(ids ...uuid.UUID) StaticAdmins {
	admins := make(StaticAdmins, len(ids))
	for _, id := range ids {
		admins[id] = true
	}
	return admins
}

func (a StaticAdmins) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return a[userID], nil
}
