package toolcall

import "context"

// ParamType is the JSON schema type of an exposed parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param describes one allow-listed parameter of an exposed command.
type Param struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool
	Enum        []string
}

// Handler executes an exposed command with its final argument set.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// ExposedCommand registers a local command for LLM invocation.
//
// Only parameters named in Parameters reach the handler. Forced values
// override anything the model proposes and cannot be disabled by callers.
// Commands with Confirm set require a positive answer from the dispatcher's
// confirmation callback before they run.
type ExposedCommand struct {
	Name        string
	Description string
	Parameters  []Param
	Forced      map[string]any
	Confirm     bool
	Handler     Handler
}

// InvocationResult reports the outcome of dispatching a proposed tool call.
//
// UnfilteredArguments always holds the verbatim proposal, including
// arguments that were dropped or overridden. FilteredArguments is the set
// the handler actually received.
type InvocationResult struct {
	CommandExposed      bool           `json:"command_exposed"`
	Reason              string         `json:"reason,omitempty"`
	FilteredArguments   map[string]any `json:"filtered_arguments,omitempty"`
	UnfilteredArguments map[string]any `json:"unfiltered_arguments,omitempty"`
	Output              string         `json:"output,omitempty"`
	Error               string         `json:"error,omitempty"`
}

// Executed reports whether the command ran, successfully or not.
func (r InvocationResult) Executed() bool {
	return r.CommandExposed && r.Reason == ""
}
