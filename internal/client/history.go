package client

import (
	"encoding/json"
)

// DefaultHistoryLimit bounds each of the undo and redo stacks.
const DefaultHistoryLimit = 100

type OpKind int

const (
	OpCreate OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	if k == OpCreate {
		return "create"
	}
	return "delete"
}

// Entry is a shape as it was when an operation happened.
type Entry struct {
	ID      string
	Feature json.RawMessage
}

// Op is one undoable local operation. A create carries exactly one entry.
type Op struct {
	Kind    OpKind
	Entries []Entry
}

// History holds bounded undo and redo stacks of local creates and deletes.
// Edits are not recorded.
type History struct {
	limit      int
	undo, redo []Op
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Record pushes a new local operation and clears the redo stack.
func (h *History) Record(op Op) {
	h.undo = h.push(h.undo, op)
	h.redo = nil
}

// Undo pops the latest operation and moves it to the redo stack.
func (h *History) Undo() (Op, bool) {
	op, ok := pop(&h.undo)
	if ok {
		h.redo = h.push(h.redo, op)
	}
	return op, ok
}

// Redo pops the latest undone operation and moves it back to the undo stack.
func (h *History) Redo() (Op, bool) {
	op, ok := pop(&h.redo)
	if ok {
		h.undo = h.push(h.undo, op)
	}
	return op, ok
}

func (h *History) Clear() {
	h.undo, h.redo = nil, nil
}

func (h *History) Len() (undo, redo int) { return len(h.undo), len(h.redo) }

func (h *History) push(stack []Op, op Op) []Op {
	stack = append(stack, op)
	if over := len(stack) - h.limit; over > 0 {
		stack = append(stack[:0:0], stack[over:]...)
	}
	return stack
}

func pop(stack *[]Op) (Op, bool) {
	s := *stack
	if len(s) == 0 {
		return Op{}, false
	}
	op := s[len(s)-1]
	*stack = s[:len(s)-1]
	return op, true
}
