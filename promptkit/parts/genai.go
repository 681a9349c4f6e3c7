package parts

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// ToGenAI converts a part to the genai SDK representation.
func ToGenAI(p Part) (*genai.Part, error) {
	switch v := p.(type) {
	case Text:
		return genai.NewPartFromText(string(v)), nil
	case InlineData:
		data, err := base64.StdEncoding.DecodeString(v.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode inline data: %w", err)
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: v.MimeType, Data: data}}, nil
	case ExecutableCode:
		return &genai.Part{ExecutableCode: &genai.ExecutableCode{
			Language: genai.Language(v.Language),
			Code:     v.Code,
		}}, nil
	case CodeExecutionResult:
		res := &genai.CodeExecutionResult{Outcome: genai.Outcome(v.Outcome)}
		if v.Output != nil {
			res.Output = *v.Output
		}
		return &genai.Part{CodeExecutionResult: res}, nil
	case FunctionCall:
		args, err := objectOf(v.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to decode args of %s: %w", v.Name, err)
		}
		return &genai.Part{FunctionCall: &genai.FunctionCall{ID: v.ID, Name: v.Name, Args: args}}, nil
	case FunctionResponse:
		resp, err := objectOf(v.Response)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response of %s: %w", v.Name, err)
		}
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: v.ID, Name: v.Name, Response: resp}}, nil
	case FileData:
		return &genai.Part{FileData: &genai.FileData{MIMEType: v.MimeType, FileURI: v.FileURL}}, nil
	}
	return nil, fmt.Errorf("unsupported part %T", p)
}

// ToGenAIParts converts a part sequence, failing on the first bad part.
func ToGenAIParts(ps []Part) ([]*genai.Part, error) {
	out := make([]*genai.Part, 0, len(ps))
	for i, p := range ps {
		gp, err := ToGenAI(p)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		out = append(out, gp)
	}
	return out, nil
}

// FromGenAI converts an SDK part. A part with no recognised payload becomes
// an empty Text so streamed deltas still merge. Function payloads that cannot
// be encoded are an error.
func FromGenAI(gp *genai.Part) (Part, error) {
	switch {
	case gp.InlineData != nil:
		return InlineData{
			MimeType: gp.InlineData.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(gp.InlineData.Data),
		}, nil
	case gp.ExecutableCode != nil:
		return ExecutableCode{Language: Language(gp.ExecutableCode.Language), Code: gp.ExecutableCode.Code}, nil
	case gp.CodeExecutionResult != nil:
		res := CodeExecutionResult{Outcome: Outcome(gp.CodeExecutionResult.Outcome)}
		if out := gp.CodeExecutionResult.Output; out != "" {
			res.Output = &out
		}
		return res, nil
	case gp.FunctionCall != nil:
		call := FunctionCall{ID: gp.FunctionCall.ID, Name: gp.FunctionCall.Name}
		args, err := json.Marshal(gp.FunctionCall.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode args of %s: %w", call.Name, err)
		}
		call.Args = args
		return call, nil
	case gp.FunctionResponse != nil:
		resp := FunctionResponse{ID: gp.FunctionResponse.ID, Name: gp.FunctionResponse.Name}
		body, err := json.Marshal(gp.FunctionResponse.Response)
		if err != nil {
			return nil, fmt.Errorf("failed to encode response of %s: %w", resp.Name, err)
		}
		resp.Response = body
		return resp, nil
	case gp.FileData != nil:
		return FileData{MimeType: gp.FileData.MIMEType, FileURL: gp.FileData.FileURI}, nil
	}
	return Text(gp.Text), nil
}

// FromGenAIParts converts SDK parts, skipping nil entries and failing on the
// first part that cannot be converted.
func FromGenAIParts(gps []*genai.Part) ([]Part, error) {
	out := make([]Part, 0, len(gps))
	for i, gp := range gps {
		if gp == nil {
			continue
		}
		p, err := FromGenAI(gp)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// objectOf decodes a structured value into the map form the SDK wants.
// Non-object values are wrapped under "output".
func objectOf(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"output": v}, nil
}
