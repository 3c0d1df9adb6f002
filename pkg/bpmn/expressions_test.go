// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_toSequence(t *testing.T) {
	seq, err := toSequence([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, seq)

	seq, err = toSequence([2]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, seq)

	seq, err = toSequence([]any{})
	require.NoError(t, err)
	assert.Empty(t, seq)

	for _, v := range []any{nil, "abc", 3, map[string]any{}} {
		_, err = toSequence(v)
		assert.ErrorIs(t, err, errNotASequence, "%v", v)
	}
}

func Test_valuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(2, int64(2)))
	assert.True(t, valuesEqual(float32(1.5), 1.5))
	assert.True(t, valuesEqual("Tic", "Tic"))
	assert.True(t, valuesEqual([]any{"a"}, []any{"a"}))
	assert.False(t, valuesEqual("2", 2))
	assert.False(t, valuesEqual(2, "2"))
	assert.False(t, valuesEqual(nil, "Tic"))
	assert.True(t, valuesEqual(nil, nil))
}

func Test_valuesEqual_keeps_integer_precision(t *testing.T) {
	assert.False(t, valuesEqual(int64(1<<53+1), int64(1<<53)))
	assert.False(t, valuesEqual(uint64(1<<53+1), int64(1<<53)))
	assert.True(t, valuesEqual(uint64(1<<63), uint64(1<<63)))
	assert.False(t, valuesEqual(int64(-1), uint64(math.MaxUint64)))
	assert.True(t, valuesEqual(int64(42), uint8(42)))
	assert.True(t, valuesEqual(float64(1<<53), int64(1<<53)))
	assert.False(t, valuesEqual(2.5, 2))
	assert.False(t, valuesEqual(float64(math.MaxInt64), int64(math.MaxInt64)), "2^63 is out of int64 range")
	assert.True(t, valuesEqual(json.Number("9007199254740993"), int64(1<<53+1)))
	assert.False(t, valuesEqual(json.Number("9007199254740993"), int64(1<<53)))
}

func Test_valuesEqual_normalises_collections(t *testing.T) {
	assert.True(t, valuesEqual([]int64{1, 2}, []any{float64(1), float64(2)}))
	assert.True(t, valuesEqual([]string{"Tic", "Tac"}, []any{"Tic", "Tac"}))
	assert.True(t, valuesEqual([][]int{{1}, {2}}, []any{[]any{1}, []any{2}}))
	assert.False(t, valuesEqual([]int64{1, 2}, []any{1}))
	assert.False(t, valuesEqual([]int64{1, 2}, []any{1, 3}))
	assert.False(t, valuesEqual([]any{"a"}, "a"))
	assert.True(t, valuesEqual(map[string]int{"qty": 2}, map[string]any{"qty": float64(2)}))
	assert.False(t, valuesEqual(map[string]int{"qty": 2}, map[string]any{"qty": 2, "sku": "A"}))
	assert.False(t, valuesEqual(map[string]any{}, []any{}))
}

func Test_evaluateExpression(t *testing.T) {
	vars := map[string]any{"orderItems": []string{"Tic"}, "count": 2}

	v, err := bpmnEngine.evaluateExpression("orderItems", vars)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tic"}, v)

	v, err = bpmnEngine.evaluateExpression("notDefined", vars)
	require.NoError(t, err)
	assert.Equal(t, "notDefined", v, "unknown names are constants")

	v, err = bpmnEngine.evaluateExpression("${count >= 2}", vars)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = bpmnEngine.evaluateExpression("#{count + 1}", vars)
	require.NoError(t, err)
	assert.True(t, valuesEqual(3, v))

	_, err = bpmnEngine.evaluateExpression("${count +}", vars)
	assert.Error(t, err)
}

func Test_evaluateExpression_without_script_runtime(t *testing.T) {
	engine := NewEngine()

	_, err := engine.evaluateExpression("${1 + 1}", nil)

	var engineErr *BpmnEngineError
	assert.ErrorAs(t, err, &engineErr)
}
