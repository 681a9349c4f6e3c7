package session

import (
	"encoding/json"
	"fmt"

	"github.com/emirpasic/gods/lists/doublylinkedlist"
	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
)

// historySnapshot is the interchange form of a History.
type historySnapshot struct {
	History       []Turn `json:"history"`
	HistoryLimit  int    `json:"history_limit"`
	ChatNo        int    `json:"chat_no"`
	RememberReply bool   `json:"remember_reply"`
}

// MarshalJSON implements json.Marshaler.
func (h *History) MarshalJSON() ([]byte, error) {
	h.mu.Lock()
	snap := historySnapshot{
		History:       h.snapshot(),
		HistoryLimit:  h.limit,
		ChatNo:        h.turnCount,
		RememberReply: h.rememberReply,
	}
	h.mu.Unlock()
	return json.Marshal(snap)
}

// UnmarshalJSON implements json.Unmarshaler. Snapshots that break the history
// invariants are rejected.
func (h *History) UnmarshalJSON(data []byte) error {
	var snap historySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}
	if err := snap.validate(); err != nil {
		return fmt.Errorf("invalid session snapshot: %w", err)
	}

	turns := doublylinkedlist.New()
	for i := range snap.History {
		t := snap.History[i]
		if t.Parts == nil {
			t.Parts = parts.Parts{}
		}
		turns.Add(&t)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = turns
	h.limit = snap.HistoryLimit
	h.turnCount = snap.ChatNo
	h.rememberReply = snap.RememberReply
	return nil
}

func (s historySnapshot) validate() error {
	if s.HistoryLimit < 0 {
		return fmt.Errorf("negative history limit %d", s.HistoryLimit)
	}
	if len(s.History) > s.HistoryLimit {
		return fmt.Errorf("%d turns exceed history limit %d", len(s.History), s.HistoryLimit)
	}
	if s.ChatNo < len(s.History) {
		return fmt.Errorf("chat count %d is below %d stored turns", s.ChatNo, len(s.History))
	}
	for i, t := range s.History {
		if t.Role != RoleUser && t.Role != RoleModel {
			return fmt.Errorf("turn %d has no role", i)
		}
		if i > 0 && t.Role == s.History[i-1].Role {
			return fmt.Errorf("turns %d and %d share role %s", i-1, i, s.History[i].Role)
		}
	}
	return nil
}

// Decode restores a History from its interchange form.
func Decode(data []byte) (*History, error) {
	h := NewHistory(0)
	if err := json.Unmarshal(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ToGenAI converts the turn to SDK content.
func (t Turn) ToGenAI() (*genai.Content, error) {
	gps, err := parts.ToGenAIParts(t.Parts)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s turn: %w", t.Role, err)
	}
	return &genai.Content{Role: string(t.Role), Parts: gps}, nil
}

// Contents converts turns to the SDK request contents.
func Contents(turns []Turn) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(turns))
	for i, t := range turns {
		c, err := t.ToGenAI()
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}
