package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
	"github.com/ZanzyTHEbar/promptkit/promptkit/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCache_ExpiresEntries(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	c := NewLRUCache(4)
	c.now = clock.Now

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10))
	clock.Advance(5 * time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(6 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_OverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(0)

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), 0))
	require.NoError(t, c.Set(ctx, "k", []byte("v2"), 0))
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "missing"))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%10))
			_ = c.Set(ctx, key, []byte(key), 60)
			c.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}

func TestTokenBucket_ThrottlesPerKey(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tb := NewTokenBucket(2, time.Second)
	tb.now = clock.Now

	for i := 0; i < 2; i++ {
		release, err := tb.Acquire(ctx, "a.example")
		require.NoError(t, err)
		release()
	}
	_, err := tb.Acquire(ctx, "a.example")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	_, err = tb.Acquire(ctx, "b.example")
	assert.NoError(t, err, "other hosts have their own bucket")

	clock.Advance(time.Second)
	_, err = tb.Acquire(ctx, "a.example")
	assert.NoError(t, err)
}

func TestTokenBucket_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTokenBucket(1, time.Second).Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZerologTracer_LogsSpansAndEvents(t *testing.T) {
	var buf strings.Builder
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tracer.StartSpan(context.Background(), "fetch", map[string]any{"url": "https://x/a.png"})
	tracer.Event(ctx, "media_cache_hit", nil)
	finish(assert.AnError)

	out := buf.String()
	assert.Contains(t, out, `"span":"fetch"`)
	assert.Contains(t, out, `"event":"span_start"`)
	assert.Contains(t, out, `"event":"media_cache_hit"`)
	assert.Contains(t, out, `"url":"https://x/a.png"`)
	assert.Contains(t, out, `"level":"error"`)
}

func openStore(t *testing.T) (*LibSQLSessionStore, *fakeClock) {
	t.Helper()
	db, err := sql.Open("libsql", "file:"+filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewLibSQLSessionStore(context.Background(), db)
	require.NoError(t, err)
	clock := newClock()
	store.now = clock.Now
	return store, clock
}

func TestLibSQLSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, clock := openStore(t)

	require.NoError(t, store.SaveSession(ctx, "one", []byte(`{"v":1}`)))
	clock.Advance(time.Minute)
	require.NoError(t, store.SaveSession(ctx, "two", []byte(`{"v":2}`)))
	clock.Advance(time.Minute)
	require.NoError(t, store.SaveSession(ctx, "one", []byte(`{"v":3}`)))

	got, err := store.LoadSession(ctx, "one")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":3}`, string(got))

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "one", list[0].ID)
	assert.Equal(t, "two", list[1].ID)
	assert.True(t, list[0].UpdatedAt.After(list[0].CreatedAt))
}

func TestLibSQLSessionStore_NotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	_, err := store.LoadSession(ctx, "ghost")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	require.NoError(t, store.SaveSession(ctx, "s", []byte(`{}`)))
	require.NoError(t, store.DeleteSession(ctx, "s"))
	require.NoError(t, store.DeleteSession(ctx, "s"))
	_, err = store.LoadSession(ctx, "s")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestLibSQLSessionStore_MigrateIsIdempotent(t *testing.T) {
	store, _ := openStore(t)
	assert.NoError(t, Migrate(context.Background(), store.db))
}

func TestRestyFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cat.png":
			assert.Equal(t, "promptkit-test", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/broken.png":
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("oops"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewRestyFetcher(RestyFetcherOptions{Timeout: 5 * time.Second, UserAgent: "promptkit-test"})

	res, err := f.Fetch(context.Background(), srv.URL+"/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType())
	assert.Equal(t, []byte("png-bytes"), res.Body)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)

	res, err = f.Fetch(context.Background(), srv.URL+"/broken.png")
	assert.ErrorContains(t, err, "unexpected status")
	assert.Nil(t, res)
}

func helloRequest() ports.Request {
	return ports.Request{Turns: []session.Turn{{Role: session.RoleUser, Parts: parts.Parts{parts.Text("hello")}}}}
}

func TestGenAIProvider_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"there"}]}}]}`)
	}))
	defer srv.Close()

	p, err := NewGenAIProvider(context.Background(), GenAIOptions{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), ports.Request{
		System: []parts.Part{parts.Text("be brief")},
		Turns:  []session.Turn{{Role: session.RoleUser, Parts: parts.Parts{parts.Text("hi")}}},
		Tools:  ports.ToolConfig{CodeExecution: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []parts.Part{parts.Text("hello "), parts.Text("there")}, out)

	assert.Contains(t, body, "contents")
	assert.Contains(t, body, "systemInstruction")
	assert.Contains(t, body, "tools")
}

func TestGenAIProvider_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	p, err := NewGenAIProvider(context.Background(), GenAIOptions{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), helloRequest())
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestFirstCandidate_ConversionError(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "f", Args: map[string]any{"x": math.Inf(1)}}},
		}},
	}}}
	_, ok, err := firstCandidate(resp)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "args of f")

	_, ok, err = firstCandidate(&genai.GenerateContentResponse{})
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestGenAIProvider_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "lo"} {
			_, _ = io.WriteString(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"`+chunk+`"}]}}]}`+"\n\n")
		}
	}))
	defer srv.Close()

	p, err := NewGenAIProvider(context.Background(), GenAIOptions{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	var got []string
	err = p.Stream(context.Background(), helloRequest(), func(ps []parts.Part) error {
		got = append(got, parts.Texts(ps)...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestGenAIProvider_RequiresKeyAndModel(t *testing.T) {
	_, err := NewGenAIProvider(context.Background(), GenAIOptions{Model: "m"})
	assert.Error(t, err)
	_, err = NewGenAIProvider(context.Background(), GenAIOptions{APIKey: "k"})
	assert.Error(t, err)
}

func TestToolsOf(t *testing.T) {
	tools, err := toolsOf(ports.ToolConfig{
		Functions: []ports.ToolSpec{{
			Name:        "lookup",
			Description: "look something up",
			JSONSchema:  []byte(`{"type":"object","properties":{"q":{"type":"string"}}}`),
		}},
		CodeExecution: true,
		GoogleSearch:  true,
	})
	require.NoError(t, err)
	require.Len(t, tools, 3)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "lookup", tools[0].FunctionDeclarations[0].Name)
	assert.NotNil(t, tools[0].FunctionDeclarations[0].ParametersJsonSchema)
	assert.NotNil(t, tools[1].CodeExecution)
	assert.NotNil(t, tools[2].GoogleSearch)

	_, err = toolsOf(ports.ToolConfig{Functions: []ports.ToolSpec{{Name: "bad", JSONSchema: []byte("{")}}})
	assert.Error(t, err)
}
