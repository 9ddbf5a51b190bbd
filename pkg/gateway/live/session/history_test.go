package session

import (
	"fmt"
	"testing"

	"github.com/sori-ai/sori/pkg/reply"
)

func TestHistoryTrimsToLimit(t *testing.T) {
	h := newHistoryManager()
	for i := 0; i < 15; i++ {
		h.appendUser(fmt.Sprintf("user %d", i))
		h.appendAssistant(fmt.Sprintf("assistant %d", i))
	}
	if h.len() != maxHistoryTurns {
		t.Fatalf("len=%d, want %d", h.len(), maxHistoryTurns)
	}
	turns := h.snapshot()
	if turns[0].Text != "user 5" {
		t.Errorf("oldest kept turn=%q, want %q", turns[0].Text, "user 5")
	}
	if turns[len(turns)-1].Text != "assistant 14" {
		t.Errorf("newest turn=%q, want %q", turns[len(turns)-1].Text, "assistant 14")
	}
}

func TestHistoryReplaceTruncates(t *testing.T) {
	h := newHistoryManager()
	h.appendUser("old")

	incoming := make([]reply.Turn, 0, 30)
	for i := 0; i < 30; i++ {
		incoming = append(incoming, reply.Turn{Role: "user", Text: fmt.Sprintf("t%d", i)})
	}
	h.replace(incoming)
	if h.len() != maxHistoryTurns {
		t.Fatalf("len=%d, want %d", h.len(), maxHistoryTurns)
	}
	if got := h.snapshot()[0].Text; got != "t10" {
		t.Errorf("first kept=%q, want t10", got)
	}
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	h := newHistoryManager()
	h.appendUser("hello")
	snap := h.snapshot()
	snap[0].Text = "mutated"
	if h.snapshot()[0].Text != "hello" {
		t.Fatalf("snapshot mutation leaked into manager")
	}
}
