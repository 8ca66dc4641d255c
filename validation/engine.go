// Package validation holds the per-field-type correctness rules consumed by
// both authoring (sanity checks) and signing (the submission gate).
package validation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/observability"
	"github.com/wudi/signkit/scripting"
)

// DateLayout is the calendar form field date values are validated against.
const DateLayout = "2006-01-02"

// Messages shown inline at the field.
const (
	MsgRequired      = "This field is required."
	MsgSignature     = "A signature is required."
	MsgInvalidDate   = "Enter a valid date (YYYY-MM-DD)."
	MsgMustCheck     = "This box must be checked."
	msgScriptRuntime = "Validation script failed."
)

// Engine evaluates field values. Zero rules beyond the built-in per-type
// ones apply unless a script rule has been registered for the field.
type Engine struct {
	v       *validator.Validate
	mu      sync.RWMutex
	scripts map[string]string
	engine  scripting.Engine
	timeout time.Duration
	log     observability.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithScriptEngine enables author-defined script rules.
func WithScriptEngine(e scripting.Engine) Option {
	return func(eng *Engine) { eng.engine = e }
}

// WithScriptTimeout bounds each script rule's runtime.
func WithScriptTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		if d > 0 {
			eng.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(eng *Engine) { eng.log = l }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		v:       validator.New(),
		scripts: make(map[string]string),
		timeout: 250 * time.Millisecond,
		log:     observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetScript registers an author-defined rule for a field. The script sees
// the current value as `value` and passes by evaluating to true; any other
// result is used as the error message when it is a string.
func (e *Engine) SetScript(fieldID, script string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if script == "" {
		delete(e.scripts, fieldID)
		return
	}
	e.scripts[fieldID] = script
}

// ValidateField returns "" when the field passes, or the inline error
// message when it does not.
func (e *Engine) ValidateField(ctx context.Context, f fields.Field) string {
	if msg := e.builtinRule(f); msg != "" {
		return msg
	}
	return e.scriptRule(ctx, f)
}

// ValidateAll evaluates every field in bulk and returns the non-empty error
// map used to annotate the view and gate submission.
func (e *Engine) ValidateAll(ctx context.Context, fs []fields.Field) map[string]string {
	errs := make(map[string]string)
	for _, f := range fs {
		if msg := e.ValidateField(ctx, f); msg != "" {
			errs[f.ID] = msg
		}
	}
	return errs
}

func (e *Engine) builtinRule(f fields.Field) string {
	switch f.Type {
	case fields.TypeText:
		if f.Required && strings.TrimSpace(f.Value) == "" {
			return MsgRequired
		}
	case fields.TypeSignature:
		if f.Required && strings.TrimSpace(f.Value) == "" {
			return MsgSignature
		}
	case fields.TypeDate:
		if f.Required && strings.TrimSpace(f.Value) == "" {
			return MsgRequired
		}
		if f.Value != "" {
			if err := e.v.Var(f.Value, "datetime="+DateLayout); err != nil {
				return MsgInvalidDate
			}
		}
	case fields.TypeCheckbox:
		if f.Required && f.Value != fields.CheckedValue {
			return MsgMustCheck
		}
	}
	return ""
}

func (e *Engine) scriptRule(ctx context.Context, f fields.Field) string {
	e.mu.RLock()
	script, ok := e.scripts[f.ID]
	engine := e.engine
	e.mu.RUnlock()
	if !ok || engine == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := engine.Bind("value", f.Value); err != nil {
		e.log.Error("script bind failed", observability.String("field", f.ID), observability.Error("err", err))
		return msgScriptRuntime
	}
	result, err := engine.Execute(ctx, script)
	if err != nil {
		e.log.Warn("validation script error",
			observability.String("field", f.ID),
			observability.Error("err", err))
		return msgScriptRuntime
	}
	switch v := result.(type) {
	case bool:
		if v {
			return ""
		}
		return fmt.Sprintf("%q is not an accepted value.", f.Value)
	case string:
		return v
	default:
		return ""
	}
}
