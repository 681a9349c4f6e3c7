package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
	"github.com/ZanzyTHEbar/promptkit/promptkit/session"
)

// ErrNoCandidates is returned when a response carries no usable candidate.
var ErrNoCandidates = errors.New("response has no candidates")

// GenAIOptions configures GenAIProvider.
type GenAIOptions struct {
	APIKey          string
	Model           string
	BaseURL         string // overrides the API endpoint, mostly for tests
	HTTPClient      *http.Client
	Temperature     *float32
	MaxOutputTokens int32
}

// GenAIProvider talks to the Gemini API through the genai SDK.
type GenAIProvider struct {
	client *genai.Client
	opts   GenAIOptions
}

// NewGenAIProvider creates a client for the Gemini API backend.
func NewGenAIProvider(ctx context.Context, opts GenAIOptions) (*GenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("gemini model is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenAIProvider{client: client, opts: opts}, nil
}

// Generate sends req and returns the parts of the first candidate.
func (p *GenAIProvider) Generate(ctx context.Context, req ports.Request) ([]parts.Part, error) {
	contents, cfg, err := p.build(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.opts.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	ps, ok, err := firstCandidate(resp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCandidates
	}
	return ps, nil
}

// Stream sends req and hands the first candidate of every chunk to onChunk.
// Chunks without a candidate are skipped.
func (p *GenAIProvider) Stream(ctx context.Context, req ports.Request, onChunk func([]parts.Part) error) error {
	contents, cfg, err := p.build(req)
	if err != nil {
		return err
	}
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.opts.Model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		ps, ok, err := firstCandidate(resp)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := onChunk(ps); err != nil {
			return err
		}
	}
	return nil
}

func (p *GenAIProvider) build(req ports.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, err := session.Contents(req.Turns)
	if err != nil {
		return nil, nil, err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: p.opts.Temperature,
	}
	if p.opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = p.opts.MaxOutputTokens
	}
	if len(req.System) > 0 {
		sys, err := parts.ToGenAIParts(req.System)
		if err != nil {
			return nil, nil, fmt.Errorf("system instruction: %w", err)
		}
		cfg.SystemInstruction = &genai.Content{Role: string(session.RoleUser), Parts: sys}
	}
	if !req.Tools.Empty() {
		tools, err := toolsOf(req.Tools)
		if err != nil {
			return nil, nil, err
		}
		cfg.Tools = tools
	}
	return contents, cfg, nil
}

func toolsOf(tc ports.ToolConfig) ([]*genai.Tool, error) {
	var tools []*genai.Tool
	if len(tc.Functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tc.Functions))
		for _, fn := range tc.Functions {
			decl := &genai.FunctionDeclaration{Name: fn.Name, Description: fn.Description}
			if len(fn.JSONSchema) > 0 {
				var schema any
				if err := json.Unmarshal(fn.JSONSchema, &schema); err != nil {
					return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", fn.Name, err)
				}
				decl.ParametersJsonSchema = schema
			}
			decls = append(decls, decl)
		}
		tools = append(tools, &genai.Tool{FunctionDeclarations: decls})
	}
	if tc.CodeExecution {
		tools = append(tools, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
	}
	if tc.GoogleSearch {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	return tools, nil
}

func firstCandidate(resp *genai.GenerateContentResponse) ([]parts.Part, bool, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, false, nil
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return nil, false, nil
	}
	ps, err := parts.FromGenAIParts(c.Content.Parts)
	if err != nil {
		return nil, false, fmt.Errorf("failed to convert candidate: %w", err)
	}
	return ps, true, nil
}

var _ ports.Provider = (*GenAIProvider)(nil)
