package workflows

import (
	"context"
	"log"
	"time"

	"github.com/Keyring-Network/groundchat/internal/store"
)

type PurgeInput struct {
	Now time.Time
}

type PurgeOutput struct {
	Removed int64
}

type Activities struct {
	sweeper store.Sweeper
}

func NewActivities(sweeper store.Sweeper) *Activities {
	return &Activities{sweeper: sweeper}
}

func (a *Activities) PurgeExpired(ctx context.Context, input PurgeInput) (PurgeOutput, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	removed, err := a.sweeper.PurgeExpired(ctx, now)
	if err != nil {
		return PurgeOutput{}, err
	}
	if removed > 0 {
		log.Printf("sweep purged %d expired entries", removed)
	}
	return PurgeOutput{Removed: removed}, nil
}
