package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
	"github.com/ZanzyTHEbar/promptkit/promptkit/markdown"
	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
	"github.com/ZanzyTHEbar/promptkit/promptkit/session"
)

// ErrNoProvider is returned by Send and Stream when no provider is wired.
var ErrNoProvider = errors.New("no generative provider configured")

// SessionManager is the host-facing surface of one conversation: it
// segments prompts, keeps the history and talks to the provider.
type SessionManager struct {
	id        string
	history   *session.History
	segmenter *markdown.Segmenter
	provider  ports.Provider
	store     ports.SessionStore
	tracer    ports.Tracer
	logger    zerolog.Logger
	system    []parts.Part
	tools     ports.ToolConfig
}

// ManagerOptions wires a SessionManager. Nil fields get no-op defaults,
// except Provider which makes Send and Stream fail with ErrNoProvider.
type ManagerOptions struct {
	Segmenter *markdown.Segmenter
	Provider  ports.Provider
	Store     ports.SessionStore
	Tracer    ports.Tracer
	Logger    *zerolog.Logger
	System    []parts.Part
	Tools     ports.ToolConfig
}

// NewSessionManager creates a manager for history under id.
func NewSessionManager(id string, history *session.History, opts ManagerOptions) *SessionManager {
	m := &SessionManager{
		id:        id,
		history:   history,
		segmenter: opts.Segmenter,
		provider:  opts.Provider,
		store:     opts.Store,
		tracer:    opts.Tracer,
		system:    opts.System,
		tools:     opts.Tools,
	}
	if m.segmenter == nil {
		m.segmenter = markdown.NewSegmenter(markdown.Config{})
	}
	if m.store == nil {
		m.store = ports.NopStore{}
	}
	if m.tracer == nil {
		m.tracer = ports.NopTracer{}
	}
	if opts.Logger != nil {
		m.logger = opts.Logger.With().Str("session", id).Logger()
	} else {
		m.logger = zerolog.Nop()
	}
	return m
}

// ID returns the session id.
func (m *SessionManager) ID() string { return m.id }

// History returns the underlying history.
func (m *SessionManager) History() *session.History { return m.history }

// SetTools replaces the tools sent with each request.
func (m *SessionManager) SetTools(tools ports.ToolConfig) *SessionManager {
	m.tools = tools
	return m
}

// ToParts segments prompt without touching the history.
func (m *SessionManager) ToParts(ctx context.Context, prompt string) []parts.Part {
	return m.segmenter.Segment(ctx, prompt)
}

// ToPartsJSON segments prompt and encodes the parts.
func (m *SessionManager) ToPartsJSON(ctx context.Context, prompt string) ([]byte, error) {
	return parts.Encode(m.ToParts(ctx, prompt))
}

// Ask segments prompt and records it as a user turn.
func (m *SessionManager) Ask(ctx context.Context, prompt string) *SessionManager {
	m.history.AddUserTurn(m.ToParts(ctx, prompt))
	return m
}

// AskJSON records encoded parts as a user turn.
func (m *SessionManager) AskJSON(data []byte) error {
	ps, err := parts.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode question: %w", err)
	}
	m.history.AddUserTurn(ps)
	return nil
}

// AddReplyJSON records encoded parts as a model turn.
func (m *SessionManager) AddReplyJSON(data []byte) error {
	ps, err := parts.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	m.history.AddModelTurn(ps)
	return nil
}

// SessionJSON returns the history snapshot.
func (m *SessionManager) SessionJSON() ([]byte, error) {
	return json.Marshal(m.history)
}

// ForgetLastExchange retracts the last question and its answer.
func (m *SessionManager) ForgetLastExchange() *SessionManager {
	m.history.ForgetLastExchange()
	return m
}

func (m *SessionManager) request() ports.Request {
	return ports.Request{System: m.system, Turns: m.history.Turns(), Tools: m.tools}
}

// Send generates a reply for the current history. With remember reply on,
// the reply is stored and the parts of the resulting model turn are returned;
// otherwise the question is dropped and the raw reply returned.
func (m *SessionManager) Send(ctx context.Context) ([]parts.Part, error) {
	if m.provider == nil {
		return nil, ErrNoProvider
	}

	ctx, finish := m.tracer.StartSpan(ctx, "generate", map[string]any{"session": m.id, "turns": m.history.Len()})
	reply, err := m.provider.Generate(ctx, m.request())
	finish(err)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	if merged, ok := m.history.IngestReply(reply); ok {
		return merged, nil
	}
	m.logger.Debug().Msg("reply not remembered")
	return reply, nil
}

// Stream generates a reply chunk by chunk. Each chunk is stitched into the
// model turn as it arrives, then handed to onChunk. With remember reply off
// the history is left without the question once the stream ends. The
// stitched reply is returned.
func (m *SessionManager) Stream(ctx context.Context, onChunk func([]parts.Part) error) ([]parts.Part, error) {
	if m.provider == nil {
		return nil, ErrNoProvider
	}

	remember := m.history.RememberReply()
	dropped := false
	var stitched []parts.Part

	ctx, finish := m.tracer.StartSpan(ctx, "generate_stream", map[string]any{"session": m.id, "turns": m.history.Len()})
	err := m.provider.Stream(ctx, m.request(), func(chunk []parts.Part) error {
		if remember {
			merged, ok := m.history.IngestReply(chunk)
			if ok {
				stitched = merged
				return m.emit(onChunk, chunk)
			}
			// remember reply was switched off mid-stream; IngestReply already dropped the last turn
			remember, dropped = false, true
		}
		stitched = parts.Merge(stitched, chunk)
		return m.emit(onChunk, chunk)
	})
	finish(err)
	if err != nil {
		return stitched, fmt.Errorf("failed to stream reply: %w", err)
	}

	if !remember && !dropped {
		m.history.IngestReply(nil)
	}
	return stitched, nil
}

func (m *SessionManager) emit(onChunk func([]parts.Part) error, chunk []parts.Part) error {
	if onChunk != nil {
		return onChunk(chunk)
	}
	return nil
}

// Save persists the history snapshot under the session id.
func (m *SessionManager) Save(ctx context.Context) error {
	data, err := m.SessionJSON()
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ctx, finish := m.tracer.StartSpan(ctx, "save_session", map[string]any{"session": m.id, "bytes": len(data)})
	err = m.store.SaveSession(ctx, m.id, data)
	finish(err)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
