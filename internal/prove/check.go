package prove

import (
	"context"
	"errors"
	"fmt"
)

// ErrConfiguration marks a required input that is absent or invalid.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError is returned by Run when a selected check cannot run
// with the inputs it was given. No check has run when it is returned.
type ConfigurationError struct {
	CheckID string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.CheckID == "" {
		return fmt.Sprintf("%v: %v", ErrConfiguration, e.Err)
	}
	return fmt.Sprintf("%v: check %s: %v", ErrConfiguration, e.CheckID, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// Outcome is what a check decides. The runner adds the id and timing.
type Outcome struct {
	OK      bool
	Reason  string
	Details map[string]interface{}
}

// Pass returns a passing outcome.
func Pass(details map[string]interface{}) Outcome {
	return Outcome{OK: true, Details: details}
}

// Fail returns a failing outcome with reason.
func Fail(reason string, details map[string]interface{}) Outcome {
	return Outcome{OK: false, Reason: reason, Details: details}
}

// Check evaluates one rule against a run context. A returned error is a
// failed execution; the runner converts it into a failing result.
type Check interface {
	Run(ctx context.Context, pctx *Context) (Outcome, error)
}

// CheckFunc adapts a function to Check.
type CheckFunc func(ctx context.Context, pctx *Context) (Outcome, error)

// Run calls f.
func (f CheckFunc) Run(ctx context.Context, pctx *Context) (Outcome, error) {
	return f(ctx, pctx)
}

// Preflighter is implemented by checks with required inputs. Preflight runs
// for every selected check before any check executes.
type Preflighter interface {
	Preflight(pctx *Context) error
}
