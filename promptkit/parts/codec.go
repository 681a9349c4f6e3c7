package parts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Parts is an ordered part sequence with a JSON form of one single-key object
// per part, e.g. [{"text":"hi"},{"inline_data":{"mime_type":"image/png","data":"..."}}].
type Parts []Part

// tagAliases maps every accepted JSON tag to its kind. The API itself replies
// with camelCase tags, snapshots are written with the canonical Kind values.
var tagAliases = map[string]Kind{
	"text":                  KindText,
	"inline_data":           KindInlineData,
	"inlineData":            KindInlineData,
	"executable_code":       KindExecutableCode,
	"executableCode":        KindExecutableCode,
	"code_execution_result": KindCodeExecutionResult,
	"codeExecutionResult":   KindCodeExecutionResult,
	"functionCall":          KindFunctionCall,
	"function_call":         KindFunctionCall,
	"functionResponse":      KindFunctionResponse,
	"function_response":     KindFunctionResponse,
	"fileData":              KindFileData,
	"file_data":             KindFileData,
}

// MarshalJSON implements json.Marshaler.
func (ps Parts) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(ps))
	for i, p := range ps {
		raw, err := EncodePart(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode part %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ps *Parts) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("failed to decode parts: %w", err)
	}
	out := make(Parts, 0, len(raws))
	for i, raw := range raws {
		p, err := DecodePart(raw)
		if err != nil {
			return fmt.Errorf("failed to decode part %d: %w", i, err)
		}
		out = append(out, p)
	}
	*ps = out
	return nil
}

// EncodePart encodes a single part as its tagged JSON object.
func EncodePart(p Part) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("nil part")
	}
	return json.Marshal(map[Kind]Part{p.Kind(): p})
}

// DecodePart decodes a tagged JSON object. Exactly one known tag must be
// present; unknown keys (thought signatures and the like) are ignored.
func DecodePart(data []byte) (Part, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	var (
		tags []string
		kind Kind
		body json.RawMessage
	)
	for tag, raw := range fields {
		if k, ok := tagAliases[tag]; ok {
			tags = append(tags, tag)
			kind, body = k, raw
		}
	}
	switch len(tags) {
	case 0:
		return nil, fmt.Errorf("no known part kind in object")
	case 1:
	default:
		sort.Strings(tags)
		return nil, fmt.Errorf("ambiguous part with kinds %s", strings.Join(tags, ", "))
	}

	switch kind {
	case KindText:
		var s string
		err := json.Unmarshal(body, &s)
		return Text(s), err
	case KindInlineData:
		var v InlineData
		err := json.Unmarshal(body, &v)
		return v, err
	case KindExecutableCode:
		var v ExecutableCode
		err := json.Unmarshal(body, &v)
		return v, err
	case KindCodeExecutionResult:
		var v CodeExecutionResult
		err := json.Unmarshal(body, &v)
		return v, err
	case KindFunctionCall:
		var v FunctionCall
		err := json.Unmarshal(body, &v)
		return v, err
	case KindFunctionResponse:
		var v FunctionResponse
		err := json.Unmarshal(body, &v)
		return v, err
	case KindFileData:
		var v FileData
		err := json.Unmarshal(body, &v)
		return v, err
	}
	return nil, fmt.Errorf("unsupported part kind %s", kind)
}

// Encode marshals a part sequence to its interchange form.
func Encode(ps []Part) ([]byte, error) {
	return json.Marshal(Parts(ps))
}

// Decode validates data against the interchange schema and decodes it. All
// failures wrap ErrInvalidParts.
func Decode(data []byte) ([]Part, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var ps Parts
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParts, err)
	}
	return ps, nil
}
