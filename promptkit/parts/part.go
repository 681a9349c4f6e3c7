// Package parts defines the content fragments exchanged with the Gemini API:
// a closed set of part kinds, the merge rule used to stitch streamed replies,
// and the JSON interchange form.
package parts

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a part variant. The value doubles as the JSON tag.
type Kind string

const (
	KindText                Kind = "text"
	KindInlineData          Kind = "inline_data"
	KindExecutableCode      Kind = "executable_code"
	KindCodeExecutionResult Kind = "code_execution_result"
	KindFunctionCall        Kind = "functionCall"
	KindFunctionResponse    Kind = "functionResponse"
	KindFileData            Kind = "fileData"
)

// Part is one unit of message content. The set of implementations is closed;
// only the types in this package satisfy it.
type Part interface {
	Kind() Kind
	isPart()
}

// Text is a plain UTF-8 text part.
type Text string

func (Text) Kind() Kind { return KindText }
func (Text) isPart()    {}

// InlineData carries a base64 encoded payload inline with the message.
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (InlineData) Kind() Kind { return KindInlineData }
func (InlineData) isPart()    {}

// UnmarshalJSON accepts both the snake_case and camelCase field spellings.
func (d *InlineData) UnmarshalJSON(data []byte) error {
	var raw struct {
		MimeType      string `json:"mime_type"`
		MimeTypeCamel string `json:"mimeType"`
		Data          string `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.MimeType = raw.MimeType
	if d.MimeType == "" {
		d.MimeType = raw.MimeTypeCamel
	}
	d.Data = raw.Data
	return nil
}

// Language of an ExecutableCode part.
type Language string

const (
	// LanguageUnspecified should not be used.
	LanguageUnspecified Language = "LANGUAGE_UNSPECIFIED"
	// LanguagePython is Python >= 3.10 with numpy and simpy available.
	LanguagePython Language = "PYTHON"
)

func (l *Language) UnmarshalText(text []byte) error {
	switch v := Language(text); v {
	case LanguageUnspecified, LanguagePython:
		*l = v
		return nil
	default:
		return fmt.Errorf("unknown language %q", string(text))
	}
}

// ExecutableCode is code generated by the model for execution.
type ExecutableCode struct {
	Language Language `json:"language"`
	Code     string   `json:"code"`
}

func (ExecutableCode) Kind() Kind { return KindExecutableCode }
func (ExecutableCode) isPart()    {}

// Outcome of a code execution.
type Outcome string

const (
	OutcomeUnspecified      Outcome = "OUTCOME_UNSPECIFIED"
	OutcomeOK               Outcome = "OUTCOME_OK"
	OutcomeFailed           Outcome = "OUTCOME_FAILED"
	OutcomeDeadlineExceeded Outcome = "OUTCOME_DEADLINE_EXCEEDED"
)

func (o *Outcome) UnmarshalText(text []byte) error {
	switch v := Outcome(text); v {
	case OutcomeUnspecified, OutcomeOK, OutcomeFailed, OutcomeDeadlineExceeded:
		*o = v
		return nil
	default:
		return fmt.Errorf("unknown outcome %q", string(text))
	}
}

// CodeExecutionResult is the result of running ExecutableCode. Output is nil
// when the execution produced none.
type CodeExecutionResult struct {
	Outcome Outcome `json:"outcome"`
	Output  *string `json:"output,omitempty"`
}

func (CodeExecutionResult) Kind() Kind { return KindCodeExecutionResult }
func (CodeExecutionResult) isPart()    {}

// FunctionCall is a model request to invoke a declared function.
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

func (FunctionCall) Kind() Kind { return KindFunctionCall }
func (FunctionCall) isPart()    {}

// FunctionResponse returns the result of a FunctionCall to the model.
type FunctionResponse struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

func (FunctionResponse) Kind() Kind { return KindFunctionResponse }
func (FunctionResponse) isPart()    {}

// FileData references a file by URL instead of inlining it.
type FileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURL  string `json:"fileUrl"`
}

func (FileData) Kind() Kind { return KindFileData }
func (FileData) isPart()    {}

// UnmarshalJSON accepts fileUrl as well as the API's fileUri spelling.
func (f *FileData) UnmarshalJSON(data []byte) error {
	var raw struct {
		MimeType      string `json:"mimeType"`
		MimeTypeSnake string `json:"mime_type"`
		FileURL       string `json:"fileUrl"`
		FileURI       string `json:"fileUri"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.MimeType = raw.MimeType
	if f.MimeType == "" {
		f.MimeType = raw.MimeTypeSnake
	}
	f.FileURL = raw.FileURL
	if f.FileURL == "" {
		f.FileURL = raw.FileURI
	}
	return nil
}

// Texts returns the text parts of ps in order.
func Texts(ps []Part) []string {
	var out []string
	for _, p := range ps {
		if t, ok := p.(Text); ok {
			out = append(out, string(t))
		}
	}
	return out
}
