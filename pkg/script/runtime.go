package script

// ExpressionRuntime evaluates a single expression against a flat variable context.
// The context is never modified by the runtime.
type ExpressionRuntime interface {
	Evaluate(expression string, variableContext map[string]any) (any, error)
}

type JsRuntime interface {
	ExpressionRuntime
	RunScript(script string) (any, error)
}
