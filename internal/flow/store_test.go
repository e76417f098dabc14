package flow

import (
	"context"
	"testing"
	"time"

	"github.com/yoockh/yoscreen/internal/cache"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/utils"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(cache.NewMemoryCache(), time.Hour)

	f := &Flow{
		ID:              "flow-1",
		State:           StatePhase1Teaser,
		Profile:         adult,
		Phase1Questions: []string{"q1"},
		Phase1Answers:   []string{"a1"},
		Teaser:          &models.Teaser{Title: "t", Patterns: []string{"x", "y"}},
		LastError:       &FlowError{Code: utils.CodeRateLimited, Message: "busy"},
	}
	if err := s.Put(ctx, f); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "flow-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StatePhase1Teaser || got.Profile != adult || got.Teaser.Patterns[1] != "y" || got.LastError.Code != utils.CodeRateLimited {
		t.Fatalf("unexpected flow: %+v", got)
	}

	if err := s.Delete(ctx, "flow-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "flow-1"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("after delete: want NOT_FOUND, got %v", err)
	}
}

func TestStoreRejectsMissingID(t *testing.T) {
	s := NewStore(cache.NewMemoryCache(), 0)
	if err := s.Put(context.Background(), &Flow{}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("want INVALID_ARGUMENT, got %v", err)
	}
	if _, err := s.Get(context.Background(), ""); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("want INVALID_ARGUMENT, got %v", err)
	}
}
