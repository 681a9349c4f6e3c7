package markdown

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
)

// DefaultPattern matches markdown image links, capturing the link target,
// and bare http(s) links to PDF documents.
const DefaultPattern = `(?s)!\[.*?].?\((.*?)\)|(https?://[^\s]+\.pdf)\b`

// Match is a media reference located in the source text. Index and Length are
// byte offsets of the whole match. MimeType and Data are only meaningful when
// Resolved is set.
type Match struct {
	Index    int
	Length   int
	URL      string
	MimeType string
	Data     string // base64
	Resolved bool
}

// End is the byte offset just past the match.
func (m Match) End() int { return m.Index + m.Length }

// Scanner finds media references and resolves them concurrently.
type Scanner struct {
	pattern        *regexp.Regexp
	infer          MimeInference
	fetcher        ports.Fetcher
	cache          ports.Cache
	cacheTTL       int
	limiter        ports.RateLimiter
	tracer         ports.Tracer
	logger         zerolog.Logger
	maxConcurrency int
}

// NewScanner creates a scanner. It panics if the pattern has no capture
// group, because the media URL is read from the first group.
func NewScanner(cfg Config) *Scanner {
	cfg = cfg.withDefaults()
	if cfg.Pattern.NumSubexp() < 1 {
		panic(fmt.Sprintf("markdown: pattern %q has no capture group for the media URL", cfg.Pattern.String()))
	}
	return &Scanner{
		pattern:        cfg.Pattern,
		infer:          cfg.Infer,
		fetcher:        cfg.Fetcher,
		cache:          cfg.Cache,
		cacheTTL:       cfg.CacheTTLSeconds,
		limiter:        cfg.Limiter,
		tracer:         cfg.Tracer,
		logger:         *cfg.Logger,
		maxConcurrency: cfg.MaxConcurrency,
	}
}

// Scan returns one Match per non-overlapping pattern match in source order.
// Every http(s) reference is fetched in its own goroutine; the call returns
// once all of them have finished. Failures leave the match unresolved.
func (s *Scanner) Scan(ctx context.Context, text string) []Match {
	locs := s.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	found := make([]Match, 0, len(locs))
	for _, loc := range locs {
		found = append(found, Match{
			Index:  loc[0],
			Length: loc[1] - loc[0],
			URL:    captureURL(text, loc),
		})
	}

	workers := s.maxConcurrency
	if workers <= 0 || workers > len(found) {
		workers = len(found)
	}
	mapper := iter.Mapper[Match, Match]{MaxGoroutines: workers}
	return mapper.Map(found, func(m *Match) Match {
		return s.resolve(ctx, *m)
	})
}

// captureURL returns the first participating capture group of loc.
func captureURL(text string, loc []int) string {
	for g := 2; g+1 < len(loc); g += 2 {
		if loc[g] >= 0 {
			return text[loc[g]:loc[g+1]]
		}
	}
	return ""
}

func (s *Scanner) resolve(ctx context.Context, m Match) Match {
	if !strings.HasPrefix(m.URL, "https://") && !strings.HasPrefix(m.URL, "http://") {
		s.logger.Debug().Str("url", m.URL).Msg("ignored non-http media reference")
		return m
	}

	key := "media:" + m.URL
	if cached, ok := s.cache.Get(ctx, key); ok {
		var blob parts.InlineData
		if err := json.Unmarshal(cached, &blob); err == nil {
			m.MimeType, m.Data, m.Resolved = blob.MimeType, blob.Data, true
			s.tracer.Event(ctx, "media_cache_hit", map[string]any{"url": m.URL})
			return m
		}
		_ = s.cache.Delete(ctx, key)
	}

	release, err := s.limiter.Acquire(ctx, hostOf(m.URL))
	if err != nil {
		s.logger.Warn().Err(err).Str("url", m.URL).Msg("media fetch throttled")
		return m
	}
	defer release()

	s.logger.Debug().Str("url", m.URL).Msg("fetching media")
	spanCtx, finish := s.tracer.StartSpan(ctx, "fetch", map[string]any{"url": m.URL})
	res, err := s.fetcher.Fetch(spanCtx, m.URL)
	finish(err)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", m.URL).Msg("media fetch failed")
		return m
	}

	mime := res.ContentType()
	if mime == "" {
		mime = s.infer(m.URL)
	}
	m.MimeType = mime
	m.Data = base64.StdEncoding.EncodeToString(res.Body)
	m.Resolved = true

	if blob, err := json.Marshal(parts.InlineData{MimeType: m.MimeType, Data: m.Data}); err == nil {
		if err := s.cache.Set(ctx, key, blob, s.cacheTTL); err != nil {
			s.logger.Debug().Err(err).Str("url", m.URL).Msg("media cache write failed")
		}
	}
	return m
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
