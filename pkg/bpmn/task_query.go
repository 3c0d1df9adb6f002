// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
)

type variableScopeKind int

const (
	processVariable variableScopeKind = iota
	taskVariable
)

type variablePredicate struct {
	kind  variableScopeKind
	name  string
	value any
}

// TaskQuery selects active tasks. Predicates are conjunctive, an empty query matches every active task.
//
// ProcessVariableValueEquals only looks at the process instance scope, variables bound inside
// multi-instance children or task scopes are invisible to it.
// TaskVariableValueEquals starts at the task's own scope and walks up to the process scope.
type TaskQuery struct {
	engine             *Engine
	processInstanceKey *int64
	taskDefinitionKey  string
	state              runtime.ActivityState
	predicates         []variablePredicate
}

func (engine *Engine) NewTaskQuery() *TaskQuery {
	return &TaskQuery{
		engine: engine,
		state:  runtime.ActivityStateActive,
	}
}

func (q *TaskQuery) ProcessInstanceKey(processInstanceKey int64) *TaskQuery {
	q.processInstanceKey = ptr.To(processInstanceKey)
	return q
}

func (q *TaskQuery) TaskDefinitionKey(taskDefinitionKey string) *TaskQuery {
	q.taskDefinitionKey = taskDefinitionKey
	return q
}

// State replaces the default ACTIVE filter, an empty state matches tasks in any state.
// Variables of finished process tasks are gone, so variable predicates never match them.
func (q *TaskQuery) State(state runtime.ActivityState) *TaskQuery {
	q.state = state
	return q
}

func (q *TaskQuery) ProcessVariableValueEquals(name string, value any) *TaskQuery {
	q.predicates = append(q.predicates, variablePredicate{kind: processVariable, name: name, value: value})
	return q
}

func (q *TaskQuery) TaskVariableValueEquals(name string, value any) *TaskQuery {
	q.predicates = append(q.predicates, variablePredicate{kind: taskVariable, name: name, value: value})
	return q
}

func (q *TaskQuery) Count(ctx context.Context) (int, error) {
	tasks, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// List returns the matching tasks ordered by task key
func (q *TaskQuery) List(ctx context.Context) ([]runtime.Task, error) {
	candidates, err := q.engine.persistence.FindTasks(ctx, storage.TaskFilter{
		ProcessInstanceKey: q.processInstanceKey,
		TaskDefinitionKey:  q.taskDefinitionKey,
		State:              q.state,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find tasks: %w", err)
	}
	if len(q.predicates) == 0 {
		return candidates, nil
	}

	instances := map[int64]*runtime.ProcessInstance{}
	res := make([]runtime.Task, 0, len(candidates))
	for _, task := range candidates {
		matches, err := q.matches(ctx, task, instances)
		if err != nil {
			return nil, err
		}
		if matches {
			res = append(res, task)
		}
	}
	return res, nil
}

// SingleResult returns nil when nothing matches and *NotUniqueResultError when more than one task matches
func (q *TaskQuery) SingleResult(ctx context.Context) (*runtime.Task, error) {
	tasks, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(tasks) {
	case 0:
		return nil, nil
	case 1:
		return &tasks[0], nil
	default:
		return nil, &NotUniqueResultError{Count: len(tasks)}
	}
}

func (q *TaskQuery) matches(ctx context.Context, task runtime.Task, instances map[int64]*runtime.ProcessInstance) (bool, error) {
	var chain []*runtime.ElementInstance
	if !task.IsStandalone() {
		instance, err := q.loadInstance(ctx, *task.ProcessInstanceKey, instances)
		if err != nil {
			return false, err
		}
		chain, err = instance.Tree.AncestorsOf(task.ElementInstanceKey)
		if err != nil {
			return q.unknownScope(ctx, task, err)
		}
	}

	for _, p := range q.predicates {
		var value any
		var found bool
		var err error
		switch p.kind {
		case processVariable:
			value, found, err = lookupProcessVariable(task, chain, p.name)
		case taskVariable:
			value, found, err = lookupTaskVariable(task, chain, p.name)
		}
		if errors.Is(err, runtime.ErrUnknownScope) {
			return q.unknownScope(ctx, task, err)
		}
		if err != nil {
			return false, err
		}
		if !found || !valuesEqual(value, p.value) {
			return false, nil
		}
	}
	return true, nil
}

// unknownScope skips a task completed while the query ran and reports a live task without scope
func (q *TaskQuery) unknownScope(ctx context.Context, task runtime.Task, err error) (bool, error) {
	live, liveErr := q.isStillActive(ctx, task)
	if liveErr != nil {
		return false, liveErr
	}
	if !live {
		return false, nil
	}
	return false, &UnknownScopeError{ElementInstanceKey: task.ElementInstanceKey, Err: err}
}

func (q *TaskQuery) loadInstance(ctx context.Context, key int64, instances map[int64]*runtime.ProcessInstance) (*runtime.ProcessInstance, error) {
	if instance, ok := instances[key]; ok {
		return instance, nil
	}
	instance, err := q.engine.persistence.FindProcessInstanceByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find process instance %d: %w", key, err)
	}
	instances[key] = &instance
	return &instance, nil
}

// isStillActive distinguishes a task completed while the query ran from a broken task to scope binding
func (q *TaskQuery) isStillActive(ctx context.Context, task runtime.Task) (bool, error) {
	current, err := q.engine.persistence.FindTaskByKey(ctx, task.Key)
	if err != nil {
		return false, fmt.Errorf("failed to re-read task %d: %w", task.Key, err)
	}
	return current.State == runtime.ActivityStateActive, nil
}

// lookupProcessVariable reads the process instance scope only, the last node of the chain.
// It never descends into multi-instance bodies or activity scopes. Standalone tasks have no process scope.
func lookupProcessVariable(task runtime.Task, chain []*runtime.ElementInstance, name string) (any, bool, error) {
	if task.IsStandalone() || len(chain) == 0 {
		return nil, false, nil
	}
	return chain[len(chain)-1].Scope().LookupLocal(name)
}

// lookupTaskVariable reads the task's own scope first and then each ancestor up to the process scope.
// Standalone tasks only have their own variables.
func lookupTaskVariable(task runtime.Task, chain []*runtime.ElementInstance, name string) (any, bool, error) {
	if task.IsStandalone() {
		v, ok := task.Variables[name]
		return v, ok, nil
	}
	for _, node := range chain {
		v, ok, err := node.Scope().LookupLocal(name)
		if err != nil || ok {
			return v, ok, err
		}
	}
	return nil, false, nil
}
