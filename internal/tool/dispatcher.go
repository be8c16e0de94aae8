package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wpmcp/internal/model"
	"wpmcp/internal/protocol"
	"wpmcp/internal/schema"
)

// DefaultTimeout is the execution budget for a handler without its own.
const DefaultTimeout = 60 * time.Second

// Kind classifies why an invocation was rejected.
type Kind string

const (
	KindToolNotFound     Kind = "ToolNotFound"
	KindInvalidArguments Kind = "InvalidArguments"
	KindTimeout          Kind = "Timeout"
	KindHandlerError     Kind = "HandlerError"
)

// InvocationError is the only error type Invoke returns. Message is safe to
// show to callers.
type InvocationError struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Issues    []schema.Issue
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Dispatcher sequences lookup, validation, execution and normalization. It
// holds no business logic.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	secrets  []string
	logger   *slog.Logger
}

type DispatcherOption func(*Dispatcher)

// WithTimeout sets the default handler budget.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithSecrets lists values that must never appear in error messages.
func WithSecrets(secrets ...string) DispatcherOption {
	return func(disp *Dispatcher) {
		for _, s := range secrets {
			if len(strings.TrimSpace(s)) >= 4 {
				disp.secrets = append(disp.secrets, s)
			}
		}
	}
}

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		if logger != nil {
			disp.logger = logger
		}
	}
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	d := &Dispatcher{
		registry: registry,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke resolves name, validates raw, runs the handler under its budget and
// returns the result or an *InvocationError.
func (d *Dispatcher) Invoke(ctx context.Context, name string, raw map[string]any) (Result, error) {
	started := time.Now()
	res, err := d.invoke(ctx, name, raw)

	outcome := "ok"
	level := slog.LevelInfo
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		outcome = invErr.Code
		level = slog.LevelWarn
	} else if res.IsError || res.Soft {
		outcome = "soft_error"
	}
	d.logger.Log(ctx, level, "tool invocation",
		"tool", name,
		"outcome", outcome,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, err
}

func (d *Dispatcher) invoke(ctx context.Context, name string, raw map[string]any) (Result, error) {
	def, ok := d.registry.Get(name)
	if !ok {
		return Result{}, &InvocationError{
			Kind:    KindToolNotFound,
			Code:    protocol.ErrorCodeToolNotFound,
			Message: fmt.Sprintf("unknown tool %q", name),
		}
	}

	args, err := def.Input.Validate(raw)
	if err != nil {
		return Result{}, d.normalize(err)
	}

	budget := d.timeout
	if def.Timeout > 0 {
		budget = def.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool handler panicked: %v", r)}
			}
		}()
		res, err := def.Handler(runCtx, args)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && errors.Is(out.err, context.DeadlineExceeded) {
				return Result{}, timeoutError(name, budget)
			}
			return Result{}, d.normalize(out.err)
		}
		if out.res.Content == nil {
			out.res.Content = []Content{}
		}
		return out.res, nil
	case <-runCtx.Done():
		// In-flight downstream calls are not rolled back.
		if ctx.Err() != nil {
			return Result{}, &InvocationError{
				Kind:    KindHandlerError,
				Code:    protocol.ErrorCodeHandlerFault,
				Message: "invocation canceled",
			}
		}
		return Result{}, timeoutError(name, budget)
	}
}

func timeoutError(name string, budget time.Duration) *InvocationError {
	return &InvocationError{
		Kind:      KindTimeout,
		Code:      protocol.ErrorCodeTimeout,
		Message:   fmt.Sprintf("tool %q exceeded its %s execution budget", name, budget),
		Retryable: true,
	}
}

// normalize maps a handler or validation failure onto the error taxonomy.
func (d *Dispatcher) normalize(err error) *InvocationError {
	var (
		invErr      *InvocationError
		validation  *schema.ValidationError
		coded       *Error
		configErr   *model.ConfigurationMissingError
		upstreamErr *model.UpstreamError
		decodeErr   *model.DecodingError
		kindErr     *model.UnknownResultKindError
	)
	switch {
	case errors.As(err, &invErr):
		return invErr
	case errors.As(err, &validation):
		return &InvocationError{
			Kind:    KindInvalidArguments,
			Code:    protocol.ErrorCodeInvalidArguments,
			Message: d.scrub(validation.Error()),
			Issues:  append([]schema.Issue(nil), validation.Issues...),
		}
	case errors.As(err, &coded):
		return &InvocationError{
			Kind:      KindHandlerError,
			Code:      coded.Code,
			Message:   d.scrub(coded.Message),
			Retryable: coded.Retryable,
		}
	case errors.As(err, &configErr):
		return d.handlerError(protocol.ErrorCodeConfigurationMissing, configErr.Error(), false)
	case errors.As(err, &upstreamErr):
		return d.handlerError(protocol.ErrorCodeUpstreamCallFailure, upstreamErr.Error(), upstreamErr.Retryable())
	case errors.As(err, &decodeErr):
		return d.handlerError(protocol.ErrorCodeInvalidResultID, decodeErr.Error(), false)
	case errors.As(err, &kindErr):
		return d.handlerError(protocol.ErrorCodeUnknownResultKind, kindErr.Error(), false)
	default:
		return d.handlerError(protocol.ErrorCodeHandlerFault, err.Error(), false)
	}
}

func (d *Dispatcher) handlerError(code, msg string, retryable bool) *InvocationError {
	return &InvocationError{
		Kind:      KindHandlerError,
		Code:      code,
		Message:   d.scrub(msg),
		Retryable: retryable,
	}
}

func (d *Dispatcher) scrub(msg string) string {
	for _, secret := range d.secrets {
		msg = strings.ReplaceAll(msg, secret, "[redacted]")
	}
	return msg
}
