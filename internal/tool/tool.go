// Package tool holds the declarative tool registry and the dispatcher that
// resolves, validates, runs and normalizes every invocation.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wpmcp/internal/schema"
)

// Handler runs one tool with validated arguments.
type Handler func(ctx context.Context, args schema.Args) (Result, error)

// Definition is immutable once registered.
type Definition struct {
	Name        string
	Description string
	Input       schema.Schema
	// Timeout overrides the dispatcher budget when positive.
	Timeout time.Duration
	Handler Handler
}

// Descriptor is the discovery view of a Definition.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the uniform success envelope. IsError is set only by the
// transport's error rendering.
type Result struct {
	Content           []Content   `json:"content"`
	StructuredContent interface{} `json:"structuredContent,omitempty"`
	IsError           bool        `json:"isError,omitempty"`
	// Soft marks a text result that reports a failure. It stays off the wire:
	// legacy callers read the text, not isError.
	Soft bool `json:"-"`
}

// Text returns a single text block result.
func Text(text string) Result {
	return Result{Content: []Content{{Type: "text", Text: text}}}
}

// JSON renders v as indented JSON text.
func JSON(v any) (Result, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode result: %w", err)
	}
	return Text(string(raw)), nil
}

// SoftError is the degraded-but-successful text some best-effort tools
// return instead of failing the invocation.
func SoftError(format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasPrefix(msg, "Error:") {
		msg = "Error: " + msg
	}
	return SoftText(msg)
}

// SoftText marks text as a soft error without adding the "Error:" prefix.
func SoftText(text string) Result {
	res := Text(text)
	res.Soft = true
	return res
}

// Error lets a handler fail with an explicit protocol error code.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
