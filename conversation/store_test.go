package conversation_test

import (
	"fmt"
	"testing"

	"github.com/fabfab/docchat/conversation"
)

func TestGetUnknownIdentifierIsEmpty(t *testing.T) {
	store := conversation.NewMemoryStore()
	if turns := store.Get("missing"); len(turns) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(turns))
	}
}

func TestAppendAndGetPreservesOrder(t *testing.T) {
	store := conversation.NewMemoryStore()
	store.Append("conv", conversation.Turn{Role: conversation.RoleUser, Content: "first"})
	store.Append("conv", conversation.Turn{Role: conversation.RoleAssistant, Content: "second"})
	store.Append("other", conversation.Turn{Role: conversation.RoleUser, Content: "elsewhere"})

	turns := store.Get("conv")
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "first" || turns[1].Content != "second" {
		t.Fatalf("unexpected order: %+v", turns)
	}
	if len(store.Get("other")) != 1 {
		t.Fatal("histories must be isolated per identifier")
	}
}

func TestGetReturnsACopy(t *testing.T) {
	store := conversation.NewMemoryStore()
	store.Append("conv", conversation.Turn{Role: conversation.RoleUser, Content: "original"})

	turns := store.Get("conv")
	turns[0].Content = "mutated"

	if store.Get("conv")[0].Content != "original" {
		t.Fatal("mutating a returned history leaked into the store")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	store := conversation.NewMemoryStore()
	store.Append("conv", conversation.Turn{Role: conversation.RoleUser, Content: "hello"})

	store.Clear("conv")
	store.Clear("conv")
	store.Clear("never-existed")

	if len(store.Get("conv")) != 0 {
		t.Fatal("expected empty history after clear")
	}
}

func TestReplaceOverwritesHistory(t *testing.T) {
	store := conversation.NewMemoryStore()
	store.Append("conv", conversation.Turn{Role: conversation.RoleUser, Content: "stale"})

	replacement := []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "grounding"},
		{Role: conversation.RoleUser, Content: "fresh"},
	}
	store.Replace("conv", replacement)

	turns := store.Get("conv")
	if len(turns) != 2 || turns[0].Content != "grounding" || turns[1].Content != "fresh" {
		t.Fatalf("unexpected history after replace: %+v", turns)
	}

	replacement[0].Content = "mutated"
	if store.Get("conv")[0].Content != "grounding" {
		t.Fatal("replace must copy the caller's slice")
	}

	store.Replace("conv", nil)
	if len(store.Get("conv")) != 0 {
		t.Fatal("replacing with an empty history must clear the identifier")
	}
}

func TestBoundedStoreEvictsOldestTurns(t *testing.T) {
	store := conversation.NewBoundedMemoryStore(4)
	for i := 0; i < 6; i++ {
		store.Append("conv", conversation.Turn{Role: conversation.RoleUser, Content: fmt.Sprintf("turn-%d", i)})
	}

	turns := store.Get("conv")
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	if turns[0].Content != "turn-2" || turns[3].Content != "turn-5" {
		t.Fatalf("expected the oldest turns evicted, got %+v", turns)
	}
}
