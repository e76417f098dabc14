package flow

import (
	"context"
	"time"

	"github.com/yoockh/yoscreen/internal/cache"
	"github.com/yoockh/yoscreen/internal/utils"
)

// Store keeps flow snapshots between requests. A snapshot is deleted when the
// user is sent to checkout; only the persisted session survives that redirect.
type Store interface {
	Get(ctx context.Context, id string) (*Flow, error)
	Put(ctx context.Context, f *Flow) error
	Delete(ctx context.Context, id string) error
}

type store struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewStore(c cache.Cache, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &store{cache: c, ttl: ttl}
}

func flowKey(id string) string { return "flow:" + id }

func (s *store) Get(ctx context.Context, id string) (*Flow, error) {
	const op = "FlowStore.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "flow_id is required", nil)
	}
	var f Flow
	hit, err := s.cache.GetJSON(ctx, flowKey(id), &f)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to load flow", err)
	}
	if !hit {
		return nil, utils.E(utils.CodeNotFound, op, "flow not found or expired", nil)
	}
	return &f, nil
}

func (s *store) Put(ctx context.Context, f *Flow) error {
	const op = "FlowStore.Put"

	if f == nil || f.ID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "flow has no id", nil)
	}
	if err := s.cache.SetJSON(ctx, flowKey(f.ID), f, s.ttl); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to save flow", err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	const op = "FlowStore.Delete"

	if err := s.cache.Del(ctx, flowKey(id)); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to delete flow", err)
	}
	return nil
}
