package media

import (
	"fmt"
	"strings"
)

// ToolError is an operation-aware failure from an external tool invocation.
type ToolError struct {
	Op      string
	Message string
	Log     CommandLog
	Err     error
}

// Error formats tool failures for logs.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Log.Command == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Op, e.Message, e.Log.Command, e.Log.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Diagnostic returns the tool's raw stderr when present, otherwise the
// failure message. This is the text surfaced as a failed job's error.
func (e *ToolError) Diagnostic() string {
	if e == nil {
		return ""
	}
	if diag := strings.TrimSpace(e.Log.Stderr); diag != "" {
		return diag
	}
	return e.Error()
}
