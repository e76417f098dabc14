package services

import (
	"context"
	"time"

	"github.com/yoockh/yoscreen/internal/cache"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/utils"
)

// GuestBridge holds free-phase progress for a guest token until the guest signs in.
// Consume is at-most-once: the state is deleted in the same step it is read.
type GuestBridge interface {
	Save(ctx context.Context, token string, state models.PendingGuestState) error
	// Consume returns nil, nil when nothing is pending for token.
	Consume(ctx context.Context, token string) (*models.PendingGuestState, error)
}

type guestBridge struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewGuestBridge(c cache.Cache, ttl time.Duration) GuestBridge {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &guestBridge{cache: c, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func guestKey(token string) string { return "guest:" + token }

func (b *guestBridge) Save(ctx context.Context, token string, state models.PendingGuestState) error {
	const op = "GuestBridge.Save"

	if token == "" {
		return utils.E(utils.CodeInvalidArgument, op, "guest token is required", nil)
	}
	if !state.Profile.Complete() {
		return utils.E(utils.CodeInvalidArgument, op, "guest state needs a complete profile", nil)
	}
	if len(state.Phase1Questions) != len(state.Phase1Answers) {
		return utils.E(utils.CodeInvalidArgument, op, "phase 1 questions and answers differ in length", nil)
	}

	state.SavedAt = b.now()
	if err := b.cache.SetJSON(ctx, guestKey(token), state, b.ttl); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to save guest progress", err)
	}
	return nil
}

func (b *guestBridge) Consume(ctx context.Context, token string) (*models.PendingGuestState, error) {
	const op = "GuestBridge.Consume"

	if token == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "guest token is required", nil)
	}

	var state models.PendingGuestState
	hit, err := b.cache.TakeJSON(ctx, guestKey(token), &state)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read guest progress", err)
	}
	if !hit {
		return nil, nil
	}
	return &state, nil
}
