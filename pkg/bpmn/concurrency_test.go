// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runConcurrently starts every function at once and collects the errors they return
func runConcurrently(functions ...func() error) []error {
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, len(functions))
	for i, f := range functions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = f()
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func Test_sibling_completions_race_with_queries(t *testing.T) {
	// given
	engine := newStartedEngine(t)
	process, err := engine.Deploy(t.Context(), orderItemsProcess("concurrentSiblings").
		Parallel().
		OutputCollection("results").
		OutputElement("orderItem").
		MultiInstanceDone().
		EndEvent("").
		Done())
	require.NoError(t, err)
	items := make([]string, 16)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}
	instance, err := engine.StartProcessInstance(t.Context(), process, map[string]any{
		"orderItems": items,
		"customer":   "ACME",
	})
	require.NoError(t, err)
	tasks, err := engine.NewTaskQuery().ProcessInstanceKey(instance.Key).List(t.Context())
	require.NoError(t, err)
	require.Len(t, tasks, len(items))

	// when
	var functions []func() error
	for _, task := range tasks {
		functions = append(functions,
			func() error {
				return engine.CompleteTask(t.Context(), task.Key, map[string]any{"lastCompleted": task.Key})
			},
			func() error {
				_, err := engine.NewTaskQuery().
					ProcessInstanceKey(instance.Key).
					ProcessVariableValueEquals("customer", "ACME").
					TaskVariableValueEquals(VariableNrOfInstances, len(items)).
					Count(t.Context())
				return err
			},
			func() error {
				_, err := engine.NewTaskQuery().TaskVariableValueEquals("orderItem", "item-3").List(t.Context())
				return err
			},
		)
	}
	errs := runConcurrently(functions...)

	// then
	for _, err := range errs {
		assert.NoError(t, err)
	}
	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	require.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)
	assert.ElementsMatch(t, items, stored.GetVariable("results"))
	remaining, err := engine.NewTaskQuery().ProcessInstanceKey(instance.Key).Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func Test_standalone_completion_races_with_queries(t *testing.T) {
	// given
	engine := newStartedEngine(t)
	task := engine.NewTask("call customer", map[string]any{"a": 1})
	require.NoError(t, engine.SaveTask(t.Context(), task))

	// when
	var completed atomic.Int32
	var functions []func() error
	for range 4 {
		functions = append(functions, func() error {
			if err := engine.CompleteTask(t.Context(), task.Key, map[string]any{"b": 2, "c": 3}); err == nil {
				completed.Add(1)
			}
			return nil
		})
	}
	for range 16 {
		functions = append(functions,
			func() error {
				_, err := engine.NewTaskQuery().TaskVariableValueEquals("a", 1).Count(t.Context())
				return err
			},
			func() error {
				_, err := engine.TaskLocalVariables(t.Context(), task.Key)
				return err
			},
		)
	}
	errs := runConcurrently(functions...)

	// then
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), completed.Load(), "a task is completed exactly once")
	stored, err := engine.FindTaskByKey(t.Context(), task.Key)
	require.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, stored.Variables)
	assert.Equal(t, map[string]any{"a": 1}, task.Variables, "the caller's map is left untouched")
}
