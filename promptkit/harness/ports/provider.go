package harnessports

import (
	"context"

	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
	"github.com/ZanzyTHEbar/promptkit/promptkit/session"
)

// Request is everything a provider needs for one generation call.
type Request struct {
	System []parts.Part   // system instruction, may be empty
	Turns  []session.Turn // ordered conversation contents
	Tools  ToolConfig
}

// Provider is the abstraction for the remote generative API.
type Provider interface {
	// Generate returns the parts of the first candidate.
	Generate(ctx context.Context, req Request) ([]parts.Part, error)
	// Stream calls onChunk with the parts of each streamed chunk in order.
	// An error returned by onChunk stops the stream and is returned.
	Stream(ctx context.Context, req Request, onChunk func([]parts.Part) error) error
}
