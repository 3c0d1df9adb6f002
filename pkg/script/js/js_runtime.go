package js

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/dop251/goja"
	"github.com/pbinitiative/zentask/pkg/script"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var reservedWords = []string{
	"break", "case", "catch", "class", "const", "continue", "debugger", "default", "delete",
	"do", "else", "enum", "export", "extends", "false", "finally", "for", "function", "if",
	"import", "in", "instanceof", "let", "new", "null", "return", "super", "switch", "this",
	"throw", "true", "try", "typeof", "var", "void", "while", "with", "yield", "await",
}

type JsRunnerFactory struct {
}

func (JsRunnerFactory) NewRunner() script.Runner {
	return newJsRunner()
}

type JsRuntime struct {
	pool *script.RunnerPool
}

var _ script.JsRuntime = &JsRuntime{}

func NewJsRuntime(ctx context.Context, maxVmPoolSize int, minVmPoolSize int) *JsRuntime {
	return &JsRuntime{
		pool: script.NewRunnerPool(ctx, JsRunnerFactory{}, maxVmPoolSize, minVmPoolSize),
	}
}

func (r *JsRuntime) RunScript(script string) (any, error) {
	var runner = r.pool.GetRunnerFromPool()
	defer r.pool.ReturnRunnerToPool(runner)

	res, err := runner.(*JsRunner).runScript(script)
	if err != nil {
		return nil, err
	}
	return res.Export(), nil
}

// Evaluate runs a single JS expression. Variables whose names are valid identifiers
// are passed in as function arguments so nothing leaks into the pooled VM's global object.
func (r *JsRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	var runner = r.pool.GetRunnerFromPool()
	defer r.pool.ReturnRunnerToPool(runner)

	return runner.(*JsRunner).evaluate(expression, variableContext)
}

type JsRunner struct {
	vm *goja.Runtime
}

func (r *JsRunner) Runner() {}

func newJsRunner() *JsRunner {
	r := JsRunner{vm: goja.New()}
	return &r
}

func (r *JsRunner) runScript(script string) (goja.Value, error) {
	resp, err := r.vm.RunString(script)
	if err != nil {
		return resp, fmt.Errorf("error running script \"%s\" : %w", script, err)
	}
	return resp, nil
}

func (r *JsRunner) evaluate(expression string, variableContext map[string]any) (any, error) {
	names := make([]string, 0, len(variableContext))
	for name := range variableContext {
		if !identifierPattern.MatchString(name) || slices.Contains(reservedWords, name) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	src := fmt.Sprintf("(function(%s) {\nreturn (%s);\n})", strings.Join(names, ", "), expression)
	fnValue, err := r.runScript(src)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("expression \"%s\" did not compile into a function", expression)
	}

	args := make([]goja.Value, len(names))
	for i, name := range names {
		args[i] = r.vm.ToValue(variableContext[name])
	}
	res, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, fmt.Errorf("error evaluating expression \"%s\" : %w", expression, err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return res.Export(), nil
}
