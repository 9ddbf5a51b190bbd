package session

import "github.com/sori-ai/sori/pkg/reply"

// maxHistoryTurns bounds the conversational context handed to the reply
// generator.
const maxHistoryTurns = 20

type historyManager struct {
	turns []reply.Turn
}

func newHistoryManager() *historyManager {
	return &historyManager{turns: make([]reply.Turn, 0, 16)}
}

func (h *historyManager) appendUser(text string) {
	h.append(reply.Turn{Role: "user", Text: text})
}

func (h *historyManager) appendAssistant(text string) {
	h.append(reply.Turn{Role: "assistant", Text: text})
}

func (h *historyManager) append(turn reply.Turn) {
	h.turns = append(h.turns, turn)
	if len(h.turns) > maxHistoryTurns {
		h.turns = h.turns[len(h.turns)-maxHistoryTurns:]
	}
}

// replace swaps in a client-supplied history, keeping only the most
// recent turns.
func (h *historyManager) replace(turns []reply.Turn) {
	h.turns = h.turns[:0]
	for _, t := range turns {
		h.append(t)
	}
}

func (h *historyManager) snapshot() []reply.Turn {
	out := make([]reply.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *historyManager) len() int {
	return len(h.turns)
}
