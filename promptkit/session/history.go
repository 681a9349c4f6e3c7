// Package session keeps a bounded conversation history for repeated calls to
// the generative API. Consecutive turns of the same role are merged, which is
// how streamed partial replies are stitched back together.
package session

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/emirpasic/gods/lists/doublylinkedlist"

	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
)

// Role is the speaker of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

func (r *Role) UnmarshalText(text []byte) error {
	switch v := Role(text); v {
	case RoleUser, RoleModel:
		*r = v
		return nil
	default:
		return fmt.Errorf("unknown role %q", string(text))
	}
}

// Turn is one speaker's contiguous contribution to the conversation.
type Turn struct {
	Role  Role        `json:"role"`
	Parts parts.Parts `json:"parts"`
}

// History is a bounded sequence of turns in which no two adjacent turns share
// a role. It is safe for concurrent use.
type History struct {
	mu            sync.Mutex
	turns         *doublylinkedlist.List // of *Turn, oldest first
	limit         int
	turnCount     int
	rememberReply bool
}

// NewHistory creates a history holding at most limit turns.
// NewHistory(2) keeps a single question and its reply.
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{
		turns:         doublylinkedlist.New(),
		limit:         limit,
		rememberReply: true,
	}
}

// SetRememberReply controls whether IngestReply keeps the reply. When false
// the exchange is discarded once the reply arrives.
func (h *History) SetRememberReply(remember bool) *History {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rememberReply = remember
	return h
}

func (h *History) RememberReply() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rememberReply
}

// Limit is the maximum number of stored turns.
func (h *History) Limit() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.limit
}

// TurnCount counts every appended turn since creation, merges excluded.
// Halve it for the number of question/reply pairs.
func (h *History) TurnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.turnCount
}

// Len is the number of stored turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.turns.Size()
}

// AddUserTurn adds a user turn. Asking twice without a reply in between
// merges the second prompt into the first.
func (h *History) AddUserTurn(ps []parts.Part) *History {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(RoleUser, ps)
	return h
}

// AskText adds a single text part as a user turn.
func (h *History) AskText(prompt string) *History {
	return h.AddUserTurn([]parts.Part{parts.Text(prompt)})
}

// AddModelTurn adds a model turn, merging into a preceding model turn.
func (h *History) AddModelTurn(ps []parts.Part) *History {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(RoleModel, ps)
	return h
}

// ReplyText adds a single text part as a model turn.
func (h *History) ReplyText(reply string) *History {
	return h.AddModelTurn([]parts.Part{parts.Text(reply)})
}

// IngestReply records a reply from the API. With remember reply enabled it is
// added as a model turn and the resulting parts of that turn are returned.
// Otherwise the most recent turn is dropped and ok is false.
func (h *History) IngestReply(ps []parts.Part) (merged []parts.Part, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.rememberReply {
		h.popBack()
		return nil, false
	}
	t := h.add(RoleModel, ps)
	return slices.Clone([]parts.Part(t.Parts)), true
}

// ForgetLastExchange removes the last turn, and the user turn before it if
// any, so a question and its answer (or a dangling question) are retracted.
func (h *History) ForgetLastExchange() *History {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.popBack()
	if t, ok := h.at(1); ok && t.Role == RoleUser {
		h.popBack()
	}
	return h
}

// Turns returns a copy of all turns, oldest first.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot()
}

// Parts returns a copy of the parts of the n-th turn from the end; 1 is the
// last turn. ok is false when n is out of range.
func (h *History) Parts(n int) ([]parts.Part, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.at(n)
	if !ok {
		return nil, false
	}
	return slices.Clone([]parts.Part(t.Parts)), true
}

// EditParts replaces the parts of the n-th turn from the end with the result
// of fn, holding the lock for the duration. It reports whether the turn exists.
func (h *History) EditParts(n int, fn func([]parts.Part) []parts.Part) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.at(n)
	if !ok {
		return false
	}
	t.Parts = fn(t.Parts)
	return true
}

// LastParts returns the parts of the last turn.
func (h *History) LastParts() ([]parts.Part, bool) {
	return h.Parts(1)
}

// LastText concatenates the text parts of the last turn, writing sep after
// each one, so ["a","b"] with "\n" gives "a\nb\n".
func (h *History) LastText(sep string) (string, bool) {
	ps, ok := h.LastParts()
	if !ok {
		return "", false
	}
	var b strings.Builder
	for _, t := range parts.Texts(ps) {
		b.WriteString(t)
		b.WriteString(sep)
	}
	return b.String(), true
}

// add applies the merge-or-append rule and returns the turn that received ps.
func (h *History) add(role Role, ps []parts.Part) *Turn {
	if last, ok := h.at(1); ok && last.Role == role {
		last.Parts = parts.Merge(last.Parts, ps)
		return last
	}

	t := &Turn{Role: role, Parts: slices.Clone(parts.Parts(ps))}
	if t.Parts == nil {
		t.Parts = parts.Parts{}
	}
	h.turns.Add(t)
	h.turnCount++
	if h.turns.Size() > h.limit {
		h.turns.Remove(0)
	}
	return t
}

// at returns the n-th turn from the end.
func (h *History) at(n int) (*Turn, bool) {
	size := h.turns.Size()
	if n < 1 || n > size {
		return nil, false
	}
	v, ok := h.turns.Get(size - n)
	if !ok {
		return nil, false
	}
	return v.(*Turn), true
}

func (h *History) popBack() {
	if size := h.turns.Size(); size > 0 {
		h.turns.Remove(size - 1)
	}
}

func (h *History) snapshot() []Turn {
	out := make([]Turn, 0, h.turns.Size())
	it := h.turns.Iterator()
	for it.Next() {
		t := it.Value().(*Turn)
		out = append(out, Turn{Role: t.Role, Parts: slices.Clone(t.Parts)})
	}
	return out
}
