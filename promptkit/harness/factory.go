package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/promptkit/promptkit/config"
	"github.com/ZanzyTHEbar/promptkit/promptkit/db"
	"github.com/ZanzyTHEbar/promptkit/promptkit/harness/adapters"
	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
	"github.com/ZanzyTHEbar/promptkit/promptkit/markdown"
	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
	"github.com/ZanzyTHEbar/promptkit/promptkit/session"
)

// Factory creates and wires session components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // optional, overrides store.path
	ownsDB bool
	logger zerolog.Logger

	once      sync.Once
	initErr   error
	segmenter *markdown.Segmenter
	store     ports.SessionStore
	provider  ports.Provider
	tracer    ports.Tracer
}

// NewFactory creates a new factory. db may be nil.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, db: db, logger: logger}
}

// WithProvider injects a provider instead of building one from gemini config.
func (f *Factory) WithProvider(p ports.Provider) *Factory {
	f.provider = p
	return f
}

// WithStore injects a session store instead of building one from store config.
func (f *Factory) WithStore(s ports.SessionStore) *Factory {
	f.store = s
	return f
}

func (f *Factory) init(ctx context.Context) error {
	f.once.Do(func() {
		f.tracer = f.createTracer()

		f.segmenter, f.initErr = f.CreateSegmenter()
		if f.initErr != nil {
			return
		}
		if f.store == nil {
			if f.store, f.initErr = f.createStore(ctx); f.initErr != nil {
				return
			}
		}
		if f.provider == nil {
			f.provider, f.initErr = f.createProvider(ctx)
		}
	})
	return f.initErr
}

// CreateSegmenter builds a segmenter from segmenter, cache and rate limit config.
func (f *Factory) CreateSegmenter() (*markdown.Segmenter, error) {
	sc := f.cfg.Segmenter

	pattern := markdown.DefaultPattern
	if sc.Pattern != "" {
		pattern = sc.Pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid segmenter pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("segmenter pattern %q has no capture group", pattern)
	}

	concurrency := sc.FetchConcurrency
	if concurrency < 0 {
		concurrency = 0
		f.logger.Warn().Int("fetch_concurrency", sc.FetchConcurrency).Msg("FetchConcurrency clamped to 0 (one goroutine per match)")
	}

	logger := f.logger.With().Str("component", "segmenter").Logger()
	return markdown.NewSegmenter(markdown.Config{
		Pattern:         re,
		Fetcher:         f.createFetcher(),
		Cache:           f.createCache(),
		CacheTTLSeconds: f.cfg.Cache.TTLSeconds,
		Limiter:         f.createRateLimiter(),
		Tracer:          f.createTracer(),
		Logger:          &logger,
		MaxConcurrency:  concurrency,
	}), nil
}

func (f *Factory) createFetcher() ports.Fetcher {
	return adapters.NewRestyFetcher(adapters.RestyFetcherOptions{
		Timeout:    f.cfg.Segmenter.FetchTimeout,
		UserAgent:  f.cfg.Segmenter.UserAgent,
		RetryCount: f.cfg.Segmenter.FetchRetries,
	})
}

func (f *Factory) createCache() ports.Cache {
	if !f.cfg.Cache.Enabled {
		return ports.NopCache{}
	}
	return adapters.NewLRUCache(f.cfg.Cache.Capacity)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.RateLimit.Enabled {
		return ports.NopRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.RateLimit.Capacity, f.cfg.RateLimit.RefillRate)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Tracing.Enabled {
		return ports.NopTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

func (f *Factory) createStore(ctx context.Context) (ports.SessionStore, error) {
	if f.db == nil {
		if !f.cfg.Store.Enabled {
			return ports.NopStore{}, nil
		}
		conn, err := db.ConnectToDB(ctx, f.cfg.Store.Path, f.logger)
		if err != nil {
			return nil, err
		}
		f.db, f.ownsDB = conn, true
	}
	store, err := adapters.NewLibSQLSessionStore(ctx, f.db)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (f *Factory) createProvider(ctx context.Context) (ports.Provider, error) {
	gc := f.cfg.Gemini
	if gc.APIKey == "" {
		f.logger.Debug().Msg("no gemini api key; sending is disabled")
		return nil, nil
	}
	p, err := adapters.NewGenAIProvider(ctx, adapters.GenAIOptions{
		APIKey:          gc.APIKey,
		Model:           gc.Model,
		BaseURL:         gc.BaseURL,
		Temperature:     gc.Temperature,
		MaxOutputTokens: gc.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// HistoryLimit returns the configured limit clamped to at least 1.
func (f *Factory) HistoryLimit() int {
	limit := f.cfg.Session.HistoryLimit
	if limit < 1 {
		f.logger.Warn().Int("history_limit", limit).Msg("HistoryLimit clamped to minimum of 1")
		limit = 1
	}
	return limit
}

// Store returns the session store, building it if needed.
func (f *Factory) Store(ctx context.Context) (ports.SessionStore, error) {
	if err := f.init(ctx); err != nil {
		return nil, err
	}
	return f.store, nil
}

// NewSession creates a manager for a fresh history under a new id.
func (f *Factory) NewSession(ctx context.Context) (*SessionManager, error) {
	return f.newManager(ctx, uuid.NewString(), nil)
}

// LoadSession restores the session id from the store.
func (f *Factory) LoadSession(ctx context.Context, id string) (*SessionManager, error) {
	if err := f.init(ctx); err != nil {
		return nil, err
	}
	data, err := f.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	h, err := session.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return f.newManager(ctx, id, h)
}

// OpenSession loads id, or starts a fresh history under id when the store has
// none. An empty id behaves like NewSession.
func (f *Factory) OpenSession(ctx context.Context, id string) (*SessionManager, error) {
	if id == "" {
		return f.NewSession(ctx)
	}
	m, err := f.LoadSession(ctx, id)
	if errors.Is(err, ports.ErrSessionNotFound) {
		return f.newManager(ctx, id, nil)
	}
	return m, err
}

func (f *Factory) newManager(ctx context.Context, id string, h *session.History) (*SessionManager, error) {
	if err := f.init(ctx); err != nil {
		return nil, err
	}
	if h == nil {
		h = session.NewHistory(f.HistoryLimit()).SetRememberReply(f.cfg.Session.RememberReply)
	}

	var system []parts.Part
	if s := f.cfg.Gemini.SystemInstruction; s != "" {
		system = []parts.Part{parts.Text(s)}
	}

	return NewSessionManager(id, h, ManagerOptions{
		Segmenter: f.segmenter,
		Provider:  f.provider,
		Store:     f.store,
		Tracer:    f.tracer,
		Logger:    &f.logger,
		System:    system,
		Tools: ports.ToolConfig{
			CodeExecution: f.cfg.Gemini.CodeExecution,
			GoogleSearch:  f.cfg.Gemini.GoogleSearch,
		},
	}), nil
}

// Close releases the database if the factory opened it.
func (f *Factory) Close() error {
	if f.ownsDB && f.db != nil {
		return f.db.Close()
	}
	return nil
}
