package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigurationMissing matches any ConfigurationMissingError via errors.Is.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrDecoding matches any DecodingError via errors.Is.
	ErrDecoding = errors.New("decoding failed")
)

// ConfigurationMissingError reports that a credential or location needed by a
// component was absent when the component was used. No network call is made
// once this error is produced.
type ConfigurationMissingError struct {
	Component string
	Settings  []string
}

func (e *ConfigurationMissingError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Settings) == 0 {
		return e.Component + " configuration missing"
	}
	return fmt.Sprintf("%s configuration missing: set %s", e.Component, strings.Join(e.Settings, " and "))
}

func (e *ConfigurationMissingError) Is(target error) bool {
	return target == ErrConfigurationMissing
}

// UpstreamError is a non-success response (or transport failure) from the RPC
// gateway or the embedding provider. Body holds a truncated, credential-free
// excerpt of the response.
type UpstreamError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Service)
	if e.Operation != "" {
		b.WriteString(" ")
		b.WriteString(e.Operation)
	}
	b.WriteString(" failed:")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " %d", e.StatusCode)
		if e.Status != "" {
			b.WriteString(" ")
			b.WriteString(e.Status)
		}
	}
	if e.Body != "" {
		b.WriteString(" ")
		b.WriteString(e.Body)
	}
	if e.StatusCode == 0 && e.Cause != nil {
		b.WriteString(" ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether a caller may reasonably try again. The core never
// retries on its own.
func (e *UpstreamError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// DecodingError reports an opaque result id that could not be parsed.
type DecodingError struct {
	Reason string
	Cause  error
}

func (e *DecodingError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return "invalid result id: " + e.Reason + ": " + e.Cause.Error()
	}
	return "invalid result id: " + e.Reason
}

func (e *DecodingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *DecodingError) Is(target error) bool {
	return target == ErrDecoding
}

// UnknownResultKindError reports a well-formed result id whose kind is not
// one the fetch resolver understands.
type UnknownResultKindError struct {
	Kind string
}

func (e *UnknownResultKindError) Error() string {
	if e == nil {
		return ""
	}
	return "unknown result kind: " + e.Kind
}
