package store

import (
	"context"
	"testing"

	"github.com/roach88/reviewlog/internal/ir"
)

func TestStorePrompts_ReturnsIDsInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	prompts := []ir.Prompt{
		{Type: ir.QAPromptType, Body: ir.IRObject{"question": ir.IRString("2+2?"), "answer": ir.IRString("4")}},
		{Type: ir.ClozePromptType, Body: ir.IRObject{"body": ir.IRString("The {capital} of France")}},
	}
	ids, err := s.StorePrompts(ctx, prompts)
	if err != nil {
		t.Fatalf("StorePrompts() failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(ids))
	}
	for i, p := range prompts {
		if ids[i] != ir.MustPromptID(p) {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], ir.MustPromptID(p))
		}
	}

	again, err := s.StorePrompts(ctx, prompts[:1])
	if err != nil {
		t.Fatalf("second StorePrompts() failed: %v", err)
	}
	if again[0] != ids[0] {
		t.Errorf("re-stored id = %q, want %q", again[0], ids[0])
	}
}

func TestStorePrompts_RejectsInvalid(t *testing.T) {
	s := createTestStore(t)

	_, err := s.StorePrompts(context.Background(), []ir.Prompt{{Type: "bogus", Body: ir.IRObject{"a": ir.IRInt(1)}}})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGetPrompts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := ir.Prompt{Type: ir.QAPromptType, Body: ir.IRObject{"question": ir.IRString("q"), "answer": ir.IRString("a")}}
	ids, err := s.StorePrompts(ctx, []ir.Prompt{p})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPrompts(ctx, []string{"missing", ids[0]})
	if err != nil {
		t.Fatalf("GetPrompts() failed: %v", err)
	}
	if got[0] != nil {
		t.Errorf("got[0] = %+v, want nil", got[0])
	}
	if got[1] == nil {
		t.Fatal("got[1] is nil")
	}
	if ir.MustPromptID(*got[1]) != ids[0] {
		t.Errorf("read prompt no longer hashes to its id")
	}
}
