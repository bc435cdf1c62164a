// Package expr implements the expression-evaluation capability consumed by
// the conditional node behaviors. Expressions are JavaScript, evaluated in
// a sandboxed goja runtime against a flat scope of record fields or
// execution variables. Failures are reported as evaluation errors, never
// as panics that crash the engine.
package expr

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"

	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
)

// Evaluator evaluates an expression string against a scope and returns a
// boolean or scalar result.
type Evaluator interface {
	// Evaluate runs the expression and returns its value.
	Evaluate(expression string, scope map[string]interface{}) (interface{}, error)

	// EvaluateBool runs the expression and coerces the result to a boolean
	// using JavaScript truthiness.
	EvaluateBool(expression string, scope map[string]interface{}) (bool, error)
}

// dangerousGlobals are removed from every runtime before an expression is
// evaluated. Expressions are predicates over record fields, not programs.
var dangerousGlobals = []string{
	"require", "module", "exports", "process", "global",
	"__dirname", "__filename", "Buffer", "setImmediate", "clearImmediate",
}

// GojaEvaluator is the goja-backed implementation of Evaluator. Runtimes
// are pooled because a goja.Runtime is not safe for concurrent use.
type GojaEvaluator struct {
	pool sync.Pool
}

// NewEvaluator creates a sandboxed goja evaluator.
func NewEvaluator() *GojaEvaluator {
	return &GojaEvaluator{
		pool: sync.Pool{
			New: func() interface{} {
				vm := goja.New()
				for _, name := range dangerousGlobals {
					_ = vm.Set(name, goja.Undefined())
				}
				return vm
			},
		},
	}
}

// Evaluate runs the expression with each scope entry bound as a global.
// The full scope is also bound as "record" so expressions can reach fields
// whose names are not valid identifiers.
func (e *GojaEvaluator) Evaluate(expression string, scope map[string]interface{}) (result interface{}, err error) {
	if expression == "" {
		return nil, &enginerrors.EvaluationError{Expression: expression, Cause: fmt.Errorf("expression is empty")}
	}

	vm := e.pool.Get().(*goja.Runtime)
	defer e.pool.Put(vm)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &enginerrors.EvaluationError{Expression: expression, Cause: fmt.Errorf("runtime panic: %v", r)}
		}
	}()

	if setErr := vm.Set("record", scope); setErr != nil {
		return nil, &enginerrors.EvaluationError{Expression: expression, Cause: setErr}
	}
	for key, value := range scope {
		if setErr := vm.Set(key, value); setErr != nil {
			return nil, &enginerrors.EvaluationError{Expression: expression, Cause: setErr}
		}
	}

	value, runErr := vm.RunString(expression)
	// Scope globals leak between pooled evaluations unless cleared.
	for key := range scope {
		_ = vm.Set(key, goja.Undefined())
	}
	_ = vm.Set("record", goja.Undefined())

	if runErr != nil {
		return nil, &enginerrors.EvaluationError{Expression: expression, Cause: runErr}
	}
	return value.Export(), nil
}

// EvaluateBool runs the expression and applies JavaScript truthiness to
// the result.
func (e *GojaEvaluator) EvaluateBool(expression string, scope map[string]interface{}) (bool, error) {
	value, err := e.Evaluate(expression, scope)
	if err != nil {
		return false, err
	}
	return truthy(value), nil
}

// truthy mirrors JavaScript ToBoolean for exported goja values.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// Ensure GojaEvaluator implements Evaluator.
var _ Evaluator = (*GojaEvaluator)(nil)
