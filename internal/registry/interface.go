package registry

import (
	"context"

	"github.com/weiawesome/realm-live/internal/domain"
)

// Presence publishes which identities hold a live channel on this process so
// other services can look them up.
type Presence interface {
	IdentityOnline(identity domain.UserIdentity)
	IdentityOffline(identity domain.UserIdentity)
	IsOnline(ctx context.Context, identity domain.UserIdentity) (bool, error)
	Run(ctx context.Context) error
	Close() error
}
