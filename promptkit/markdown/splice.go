// Package markdown turns a prompt written in markdown into API parts: media
// references are located, fetched, and attached as inline data right after
// the reference that named them.
package markdown

import (
	"context"

	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
)

// Splice builds the part sequence for text. Each resolved match ends a Text
// part that still contains the reference syntax, followed by the InlineData
// it resolved to. Unresolved matches are plain text. Matches must be in
// source order; ones overlapping an earlier resolved match are ignored.
func Splice(text string, matches []Match) []parts.Part {
	var out []parts.Part
	consumed := 0

	for _, m := range matches {
		if !m.Resolved {
			continue
		}
		end := m.End()
		if m.Index < consumed || end > len(text) {
			continue
		}
		out = append(out,
			parts.Text(text[consumed:end]),
			parts.InlineData{MimeType: m.MimeType, Data: m.Data},
		)
		consumed = end
	}

	if consumed < len(text) {
		out = append(out, parts.Text(text[consumed:]))
	}
	return out
}

// Segmenter scans and splices in one call.
type Segmenter struct {
	scanner *Scanner
}

// NewSegmenter creates a segmenter; see NewScanner for the pattern contract.
func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{scanner: NewScanner(cfg)}
}

// Segment converts text into parts, resolving media references first.
func (s *Segmenter) Segment(ctx context.Context, text string) []parts.Part {
	ctx, finish := s.scanner.tracer.StartSpan(ctx, "segment", map[string]any{"bytes": len(text)})
	matches := s.scanner.Scan(ctx, text)
	out := Splice(text, matches)
	finish(nil)
	return out
}

// Scanner exposes the underlying scanner.
func (s *Segmenter) Scanner() *Scanner { return s.scanner }
