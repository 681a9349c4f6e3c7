package markdown

import (
	"regexp"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
)

// Config wires a Scanner. Nil collaborators fall back to no-ops; with no
// Fetcher every reference stays unresolved.
type Config struct {
	Pattern         *regexp.Regexp // defaults to DefaultPattern
	Infer           MimeInference  // defaults to InferMimeType
	Fetcher         ports.Fetcher
	Cache           ports.Cache
	CacheTTLSeconds int
	Limiter         ports.RateLimiter
	Tracer          ports.Tracer
	Logger          *zerolog.Logger
	MaxConcurrency  int // 0 means one goroutine per match
}

var defaultPattern = regexp.MustCompile(DefaultPattern)

func (c Config) withDefaults() Config {
	if c.Pattern == nil {
		c.Pattern = defaultPattern
	}
	if c.Infer == nil {
		c.Infer = InferMimeType
	}
	if c.Fetcher == nil {
		c.Fetcher = ports.NopFetcher{}
	}
	if c.Cache == nil {
		c.Cache = ports.NopCache{}
	}
	if c.Limiter == nil {
		c.Limiter = ports.NopRateLimiter{}
	}
	if c.Tracer == nil {
		c.Tracer = ports.NopTracer{}
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}
