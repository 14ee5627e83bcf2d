package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"aictl/internal/lmstudio"
	"aictl/internal/logging"
	"aictl/internal/utils"
)

// ConfirmFunc is asked before a command marked Confirm is executed.
// Returning false denies the invocation.
type ConfirmFunc func(command string, args map[string]any) bool

// Dispatcher maps LLM tool calls onto exposed commands.
type Dispatcher struct {
	registry *Registry
	confirm  ConfirmFunc
	logger   logging.Logger
}

// NewDispatcher creates a dispatcher over the registry. confirm may be nil,
// in which case commands requiring confirmation are denied.
func NewDispatcher(registry *Registry, confirm ConfirmFunc, logger logging.Logger) *Dispatcher {
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("toolcall")
	}
	return &Dispatcher{
		registry: registry,
		confirm:  confirm,
		logger:   logger,
	}
}

// Dispatch resolves and executes a proposed tool call. It never returns an
// error: every outcome, including denial and handler failure, is reported
// through the InvocationResult.
func (d *Dispatcher) Dispatch(ctx context.Context, call lmstudio.ToolCall) InvocationResult {
	proposed := d.resolveArguments(call)
	result := InvocationResult{
		UnfilteredArguments: proposed,
	}

	cmd, ok := d.registry.Get(call.Name)
	if !ok {
		result.Reason = fmt.Sprintf("command not exposed: %s", call.Name)
		d.logger.Warn("Rejected tool call for unexposed command %q", call.Name)
		return result
	}
	result.CommandExposed = true

	filtered, reason := filterArguments(cmd, proposed)
	if reason != "" {
		result.Reason = reason
		d.logger.Warn("Rejected tool call %q: %s", call.Name, reason)
		return result
	}

	// Forced values override anything the model proposed.
	for key, value := range cmd.Forced {
		filtered[key] = value
	}
	result.FilteredArguments = filtered

	if cmd.Confirm {
		if d.confirm == nil || !d.confirm(cmd.Name, filtered) {
			result.Reason = "denied by user"
			result.FilteredArguments = nil
			d.logger.Info("User denied execution of %q", cmd.Name)
			return result
		}
	}

	d.logger.Info("Executing exposed command %q", cmd.Name)
	output, err := cmd.Handler(ctx, filtered)
	result.Output = output
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// resolveArguments returns the verbatim proposal, repairing malformed JSON
// argument text when the model produced any.
func (d *Dispatcher) resolveArguments(call lmstudio.ToolCall) map[string]any {
	if call.Arguments != nil {
		return call.Arguments
	}
	raw := strings.TrimSpace(call.RawArguments)
	if raw == "" {
		return map[string]any{}
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		d.logger.Warn("Could not repair tool call arguments: %v", err)
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		d.logger.Warn("Repaired arguments are still not an object: %v", err)
		return map[string]any{}
	}
	d.logger.Debug("Repaired malformed tool call arguments for %q", call.Name)
	return args
}

// filterArguments keeps allow-listed parameters, coercing values where
// safe. A non-empty reason denies the invocation.
func filterArguments(cmd ExposedCommand, proposed map[string]any) (map[string]any, string) {
	filtered := make(map[string]any, len(cmd.Parameters))

	for _, param := range cmd.Parameters {
		value, present := proposed[param.Name]
		if !present {
			if param.Required {
				if _, forced := cmd.Forced[param.Name]; !forced {
					return nil, fmt.Sprintf("missing required argument %q", param.Name)
				}
			}
			continue
		}

		coerced, ok := coerceValue(value, param.Type)
		if !ok {
			return nil, fmt.Sprintf("argument %q: cannot use %T as %s", param.Name, value, param.Type)
		}
		if len(param.Enum) > 0 {
			if str, isStr := coerced.(string); isStr && !containsString(param.Enum, str) {
				return nil, fmt.Sprintf("argument %q: %q is not one of %v", param.Name, str, param.Enum)
			}
		}
		filtered[param.Name] = coerced
	}

	return filtered, ""
}

// coerceValue converts a JSON-decoded value to the declared type where the
// conversion is unambiguous.
func coerceValue(value any, target ParamType) (any, bool) {
	switch target {
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return v, true
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return parsed, true
			}
		}
	case TypeInteger:
		switch v := value.(type) {
		case float64:
			if v == float64(int64(v)) {
				return int64(v), true
			}
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return parsed, true
			}
		}
	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return parsed, true
			}
		}
	case TypeArray:
		if v, ok := value.([]any); ok {
			return v, true
		}
	case TypeObject:
		if v, ok := value.(map[string]any); ok {
			return v, true
		}
	}
	return nil, false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
