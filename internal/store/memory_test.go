package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hedgex/options-engine/internal/model"
)

func sampleOption(id uint64, holder string) *model.Option {
	return &model.Option{
		ID:           id,
		Holder:       holder,
		Type:         "call",
		State:        "active",
		Strike:       decimal.NewFromInt(380),
		Amount:       "1000000000000000000",
		LockedAmount: "1000000000000000000",
		Premium:      "28675000000000000",
		Expiration:   time.Unix(1_700_200_000, 0).UTC(),
		CreatedAt:    time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestMemoryStore_SaveAndGetOption(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetOption(ctx, 0); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("expected ErrOptionNotFound, got %v", err)
	}

	opt := sampleOption(0, "alice")
	if err := s.SaveOption(ctx, opt); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetOption(ctx, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Holder != "alice" || got.State != "active" {
		t.Errorf("got %+v", got)
	}

	// Upsert replaces the snapshot.
	opt.State = "exercised"
	if err := s.SaveOption(ctx, opt); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, _ = s.GetOption(ctx, 0)
	if got.State != "exercised" {
		t.Errorf("state = %q, want exercised", got.State)
	}
}

func TestMemoryStore_ListByHolderNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.SaveOption(ctx, sampleOption(0, "alice"))
	s.SaveOption(ctx, sampleOption(1, "bob"))
	s.SaveOption(ctx, sampleOption(2, "alice"))

	got, err := s.ListOptionsByHolder(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 0 {
		t.Errorf("got %+v, want ids [2 0]", got)
	}
}

func TestMemoryStore_EventJournal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	events := []*model.Event{
		{ID: "e1", Type: "Create", OptionID: 0, Account: "alice", Timestamp: time.Unix(1, 0)},
		{ID: "e2", Type: "Provide", OptionID: 0, Account: "lp1", Timestamp: time.Unix(2, 0)},
		{ID: "e3", Type: "Exercise", OptionID: 0, Timestamp: time.Unix(3, 0)},
	}
	for _, e := range events {
		if err := s.InsertEvent(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// Pool events must not alias option 0.
	byOpt, err := s.GetEventsByOption(ctx, 0)
	if err != nil {
		t.Fatalf("by option: %v", err)
	}
	if len(byOpt) != 2 || byOpt[0].ID != "e1" || byOpt[1].ID != "e3" {
		t.Errorf("by option = %+v, want [e1 e3]", byOpt)
	}

	byAcct, err := s.GetEventsByAccount(ctx, "lp1")
	if err != nil {
		t.Fatalf("by account: %v", err)
	}
	if len(byAcct) != 1 || byAcct[0].ID != "e2" {
		t.Errorf("by account = %+v, want [e2]", byAcct)
	}

	recent, err := s.ListEvents(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "e3" || recent[1].ID != "e2" {
		t.Errorf("recent = %+v, want [e3 e2]", recent)
	}
}
