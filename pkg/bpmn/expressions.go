package bpmn

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pbinitiative/feel"
)

// evaluateExpression supports three forms:
//   - "=expr" is evaluated as FEEL
//   - "${expr}" and "#{expr}" are evaluated as JS by the pooled script runtime
//   - anything else is a variable name when the context defines it, otherwise a constant
func (engine *Engine) evaluateExpression(expression string, variableContext map[string]any) (any, error) {
	expression = strings.TrimSpace(expression)
	switch {
	case strings.HasPrefix(expression, "="):
		feelExpression := strings.TrimPrefix(expression, "=")
		res, err := feel.EvalStringWithScope(feelExpression, variableContext)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate expression %s : %w", expression, err)
		}
		return res, nil
	case isScriptExpression(expression):
		if engine.jsRuntime == nil {
			return nil, newEngineErrorf("engine %s has no script runtime, was it started?", engine.name)
		}
		res, err := engine.jsRuntime.Evaluate(expression[2:len(expression)-1], variableContext)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate expression %s : %w", expression, err)
		}
		return res, nil
	}
	if v, ok := variableContext[expression]; ok {
		return v, nil
	}
	return expression, nil
}

func isScriptExpression(expression string) bool {
	return len(expression) > 3 &&
		(strings.HasPrefix(expression, "${") || strings.HasPrefix(expression, "#{")) &&
		strings.HasSuffix(expression, "}")
}

var errNotASequence = errors.New("value is not a sequence")

// toSequence converts slices and arrays of any element type into []any.
// Strings, maps and nil are not sequences.
func toSequence(value any) ([]any, error) {
	if value == nil {
		return nil, errNotASequence
	}
	if s, ok := value.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		res := make([]any, rv.Len())
		for i := range rv.Len() {
			res[i] = rv.Index(i).Interface()
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %T", errNotASequence, value)
	}
}

// valuesEqual compares variable values. Numbers of any Go kind are compared by value, integers exactly.
// Sequences and string keyed maps compare element by element, so Go typed collections
// equal their decoded JSON or YAML form.
func valuesEqual(a, b any) bool {
	if na, ok := toNumber(a); ok {
		nb, ok := toNumber(b)
		return ok && na.equal(nb)
	}
	if isCollection(a) || isCollection(b) {
		return collectionsEqual(a, b)
	}
	return reflect.DeepEqual(a, b)
}

func isCollection(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	default:
		return false
	}
}

func collectionsEqual(a, b any) bool {
	if sa, err := toSequence(a); err == nil {
		sb, err := toSequence(b)
		if err != nil || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !valuesEqual(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	ma, okA := toStringMap(a)
	mb, okB := toStringMap(b)
	if !okA || !okB {
		return reflect.DeepEqual(a, b)
	}
	if len(ma) != len(mb) {
		return false
	}
	for k, va := range ma {
		vb, ok := mb[k]
		if !ok || !valuesEqual(va, vb) {
			return false
		}
	}
	return true
}

func toStringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	res := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		res[iter.Key().String()] = iter.Value().Interface()
	}
	return res, true
}

type numberKind int

const (
	signedNumber numberKind = iota
	unsignedNumber
	floatNumber
)

type number struct {
	kind numberKind
	i    int64
	u    uint64
	f    float64
}

// toNumber accepts every integer and float kind and json.Number
func toNumber(v any) (number, bool) {
	if v == nil {
		return number{}, false
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return number{kind: signedNumber, i: i}, true
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return number{kind: unsignedNumber, u: u}, true
		}
		f, err := n.Float64()
		return number{kind: floatNumber, f: f}, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: signedNumber, i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: unsignedNumber, u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{kind: floatNumber, f: rv.Float()}, true
	default:
		return number{}, false
	}
}

func (n number) equal(o number) bool {
	if n.kind > o.kind {
		n, o = o, n
	}
	switch {
	case n.kind == signedNumber && o.kind == signedNumber:
		return n.i == o.i
	case n.kind == unsignedNumber && o.kind == unsignedNumber:
		return n.u == o.u
	case n.kind == signedNumber && o.kind == unsignedNumber:
		return n.i >= 0 && uint64(n.i) == o.u
	case n.kind == floatNumber:
		return n.f == o.f
	case n.kind == signedNumber:
		return o.f == math.Trunc(o.f) && o.f >= math.MinInt64 && o.f < math.MaxInt64 && int64(o.f) == n.i
	default:
		return o.f == math.Trunc(o.f) && o.f >= 0 && o.f < math.MaxUint64 && uint64(o.f) == n.u
	}
}

func toInt(v any) int {
	n, _ := toNumber(v)
	switch n.kind {
	case unsignedNumber:
		return int(n.u)
	case floatNumber:
		return int(n.f)
	default:
		return int(n.i)
	}
}
