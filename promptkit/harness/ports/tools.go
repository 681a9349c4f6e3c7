package harnessports

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolConfig selects the tools sent with a request.
type ToolConfig struct {
	Functions     []ToolSpec
	CodeExecution bool
	GoogleSearch  bool
}

// Empty reports whether no tool is enabled.
func (c ToolConfig) Empty() bool {
	return len(c.Functions) == 0 && !c.CodeExecution && !c.GoogleSearch
}
