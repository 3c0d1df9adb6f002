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
	"maps"
	"time"

	"github.com/pbinitiative/zentask/pkg/bpmn/exporter"
	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zentask/pkg/otel"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// createUserTaskInstance attaches an activity instance below parentKey, binds the local variables
// into its fresh scope and stores the task bound to it. Exporting is left to the caller.
func (engine *Engine) createUserTaskInstance(
	ctx context.Context,
	batch storage.Batch,
	instance *runtime.ProcessInstance,
	parentKey int64,
	element bpmn20.UserTaskElement,
	localVariables map[string]any,
) (runtime.Task, error) {
	node, err := instance.Tree.CreateChild(parentKey, engine.generateKey(), runtime.KindActivity, element)
	if err != nil {
		return runtime.Task{}, &UnknownScopeError{ElementInstanceKey: parentKey, Err: err}
	}
	for k, v := range localVariables {
		if err := node.Scope().Put(k, v); err != nil {
			return runtime.Task{}, &UnknownScopeError{ElementInstanceKey: node.Key, Err: err}
		}
	}
	task := runtime.Task{
		Key:                  engine.generateKey(),
		Name:                 element.GetName(),
		TaskDefinitionKey:    element.GetId(),
		ProcessInstanceKey:   ptr.To(instance.Key),
		ProcessDefinitionKey: ptr.To(instance.Definition.Key),
		ElementInstanceKey:   node.Key,
		Assignee:             element.GetAssignmentAssignee(),
		State:                runtime.ActivityStateActive,
		CreatedAt:            time.Now(),
	}
	if err := batch.SaveTask(ctx, task); err != nil {
		return runtime.Task{}, fmt.Errorf("failed to save task for element %s: %w", element.GetId(), err)
	}
	if parentKey == instance.Key {
		engine.exportTaskCreated(ctx, instance, element, task)
	}
	return task, nil
}

func (engine *Engine) exportTaskCreated(ctx context.Context, instance *runtime.ProcessInstance, element bpmn20.FlowNode, task runtime.Task) {
	engine.exportElementEvent(instance, element, task.ElementInstanceKey, exporter.ElementActivated)
	engine.exportTaskEvent(task, exporter.Created)
	engine.metrics.TasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("taskDefinitionKey", task.TaskDefinitionKey)))
}

// NewTask creates an unsaved standalone task which does not belong to any process instance
func (engine *Engine) NewTask(name string, variables map[string]any) runtime.Task {
	vars := make(map[string]any, len(variables))
	maps.Copy(vars, variables)
	return runtime.Task{
		Key:       engine.generateKey(),
		Name:      name,
		State:     runtime.ActivityStateActive,
		CreatedAt: time.Now(),
		Variables: vars,
	}
}

// SaveTask stores a standalone task. Tasks of process instances are owned by the engine and rejected.
func (engine *Engine) SaveTask(ctx context.Context, task runtime.Task) error {
	if !task.IsStandalone() {
		return newEngineErrorf("task %d belongs to process instance %d and can not be saved directly", task.Key, *task.ProcessInstanceKey)
	}
	if task.Key == 0 {
		task.Key = engine.generateKey()
	}
	if task.State == "" {
		task.State = runtime.ActivityStateActive
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	_, findErr := engine.persistence.FindTaskByKey(ctx, task.Key)
	if err := engine.persistence.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task %d: %w", task.Key, err)
	}
	if errors.Is(findErr, storage.ErrNotFound) {
		engine.exportTaskEvent(task, exporter.Created)
		engine.metrics.TasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("standalone", true)))
	}
	return nil
}

func (engine *Engine) FindTaskByKey(ctx context.Context, taskKey int64) (runtime.Task, error) {
	return engine.persistence.FindTaskByKey(ctx, taskKey)
}

// TaskLocalVariables returns the variables owned by the task's own scope.
// For a completed task of a process instance *UnknownScopeError is returned.
func (engine *Engine) TaskLocalVariables(ctx context.Context, taskKey int64) (map[string]any, error) {
	task, scope, err := engine.taskScope(ctx, taskKey)
	if err != nil {
		return nil, err
	}
	if task.IsStandalone() {
		res := make(map[string]any, len(task.Variables))
		maps.Copy(res, task.Variables)
		return res, nil
	}
	return scope.LocalVariables(), nil
}

// GetTaskVariable resolves name from the task's scope upwards to the process scope
func (engine *Engine) GetTaskVariable(ctx context.Context, taskKey int64, name string) (any, bool, error) {
	task, scope, err := engine.taskScope(ctx, taskKey)
	if err != nil {
		return nil, false, err
	}
	if task.IsStandalone() {
		v, ok := task.Variables[name]
		return v, ok, nil
	}
	v, ok, err := scope.Lookup(name)
	if err != nil {
		return nil, false, &UnknownScopeError{ElementInstanceKey: task.ElementInstanceKey, Err: err}
	}
	return v, ok, nil
}

func (engine *Engine) taskScope(ctx context.Context, taskKey int64) (runtime.Task, *runtime.VariableScope, error) {
	task, err := engine.persistence.FindTaskByKey(ctx, taskKey)
	if err != nil {
		return task, nil, errors.Join(newEngineErrorf("task %d not found", taskKey), err)
	}
	if task.IsStandalone() {
		return task, nil, nil
	}
	node, err := engine.taskNode(ctx, task)
	if err != nil {
		return task, nil, err
	}
	return task, node.Scope(), nil
}

func (engine *Engine) taskNode(ctx context.Context, task runtime.Task) (*runtime.ElementInstance, error) {
	instance, err := engine.persistence.FindProcessInstanceByKey(ctx, *task.ProcessInstanceKey)
	if err != nil {
		return nil, errors.Join(newEngineErrorf("process instance %d of task %d not found", *task.ProcessInstanceKey, task.Key), err)
	}
	node, err := instance.Tree.Node(task.ElementInstanceKey)
	if err != nil {
		return nil, &UnknownScopeError{ElementInstanceKey: task.ElementInstanceKey, Err: err}
	}
	return node, nil
}

// CompleteTask completes an active task. The variables are written from the task's scope
// into the nearest scope which already defines them, new variables land in the process scope.
// Completing the last open task of an element continues the process flow.
func (engine *Engine) CompleteTask(ctx context.Context, taskKey int64, variables map[string]any) error {
	if err := engine.checkRunning(); err != nil {
		return err
	}
	task, err := engine.persistence.FindTaskByKey(ctx, taskKey)
	if err != nil {
		return errors.Join(newEngineErrorf("task %d not found", taskKey), err)
	}
	if task.IsStandalone() {
		return engine.completeStandaloneTask(ctx, task, variables)
	}

	engine.runningInstances.lockInstance(*task.ProcessInstanceKey)
	defer engine.runningInstances.unlockInstance(*task.ProcessInstanceKey)

	// re-read under the lock, a concurrent completion may have won
	task, err = engine.persistence.FindTaskByKey(ctx, taskKey)
	if err != nil {
		return errors.Join(newEngineErrorf("task %d not found", taskKey), err)
	}
	if task.State != runtime.ActivityStateActive {
		return newEngineErrorf("task %d can not be completed in state %s", task.Key, task.State)
	}
	instance, err := engine.persistence.FindProcessInstanceByKey(ctx, *task.ProcessInstanceKey)
	if err != nil {
		return errors.Join(newEngineErrorf("process instance %d of task %d not found", *task.ProcessInstanceKey, task.Key), err)
	}

	ctx, completeSpan := engine.tracer.Start(ctx, fmt.Sprintf("task:%s", task.TaskDefinitionKey), trace.WithAttributes(
		attribute.Int64(otelPkg.AttributeTaskKey, task.Key),
		attribute.Int64(otelPkg.AttributeProcessInstanceKey, instance.Key),
		attribute.String(otelPkg.AttributeProcessId, instance.Definition.BpmnProcessId),
		attribute.String(otelPkg.AttributeElementId, task.TaskDefinitionKey),
		attribute.Int64(otelPkg.AttributeElementKey, task.ElementInstanceKey),
	))
	defer func() {
		if err != nil {
			completeSpan.RecordError(err)
			completeSpan.SetStatus(codes.Error, err.Error())
		}
		completeSpan.End()
	}()

	node, err := instance.Tree.Node(task.ElementInstanceKey)
	if err != nil {
		err = &UnknownScopeError{ElementInstanceKey: task.ElementInstanceKey, Err: err}
		return err
	}
	for k, v := range variables {
		if err = node.Scope().PutGlobal(k, v); err != nil {
			err = &UnknownScopeError{ElementInstanceKey: node.Key, Err: err}
			return err
		}
	}

	// the task leaves the active set before its scope disappears, so concurrent queries never see a live task without scope
	task.State = runtime.ActivityStateCompleted
	if err = engine.persistence.SaveTask(ctx, task); err != nil {
		err = fmt.Errorf("failed to save completed task %d: %w", task.Key, err)
		return err
	}
	engine.exportTaskEvent(task, exporter.Completed)
	engine.metrics.TasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("taskDefinitionKey", task.TaskDefinitionKey)))

	batch := engine.persistence.NewBatch()
	commands, err := engine.completeActivityInstance(ctx, batch, &instance, node)
	if err == nil {
		err = engine.runProcessInstance(ctx, batch, &instance, commands)
	}
	if err != nil {
		engine.failInstance(ctx, &instance, err)
		return err
	}
	if err = batch.SaveProcessInstance(ctx, instance); err != nil {
		return err
	}
	if err = batch.Flush(ctx); err != nil {
		err = fmt.Errorf("failed to complete task %d: %w", task.Key, err)
		return err
	}
	return nil
}

// completeStandaloneTask serializes completions of the same task on its key,
// keys of tasks and process instances come from one generator and never collide
func (engine *Engine) completeStandaloneTask(ctx context.Context, task runtime.Task, variables map[string]any) error {
	taskKey := task.Key
	engine.runningInstances.lockInstance(taskKey)
	defer engine.runningInstances.unlockInstance(taskKey)

	task, err := engine.persistence.FindTaskByKey(ctx, taskKey)
	if err != nil {
		return errors.Join(newEngineErrorf("task %d not found", taskKey), err)
	}
	if task.State != runtime.ActivityStateActive {
		return newEngineErrorf("task %d can not be completed in state %s", task.Key, task.State)
	}
	merged := make(map[string]any, len(task.Variables)+len(variables))
	maps.Copy(merged, task.Variables)
	maps.Copy(merged, variables)
	task.Variables = merged
	task.State = runtime.ActivityStateCompleted
	if err := engine.persistence.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save completed task %d: %w", task.Key, err)
	}
	engine.exportTaskEvent(task, exporter.Completed)
	engine.metrics.TasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("standalone", true)))
	return nil
}

// completeActivityInstance removes the finished activity instance from the tree and returns
// the commands which continue the flow, none while a multi-instance body still waits for children
func (engine *Engine) completeActivityInstance(ctx context.Context, batch storage.Batch, instance *runtime.ProcessInstance, node *runtime.ElementInstance) ([]command, error) {
	parent := node.Parent()
	if parent != nil && parent.Kind == runtime.KindMultiInstanceBody {
		return engine.completeMultiInstanceChild(ctx, batch, instance, parent, node)
	}
	if err := instance.Tree.Remove(node.Key); err != nil {
		return nil, &UnknownScopeError{ElementInstanceKey: node.Key, Err: err}
	}
	engine.exportElementEvent(instance, node.Element, node.Key, exporter.ElementCompleted)
	return engine.outgoingTransitions(instance, node.Element), nil
}

// withdrawTasks marks the active tasks bound to the given element instances as withdrawn
func (engine *Engine) withdrawTasks(ctx context.Context, instance *runtime.ProcessInstance, elementInstanceKeys map[int64]struct{}, state runtime.ActivityState) error {
	if len(elementInstanceKeys) == 0 {
		return nil
	}
	tasks, err := engine.persistence.FindTasks(ctx, storage.TaskFilter{
		ProcessInstanceKey: ptr.To(instance.Key),
		State:              runtime.ActivityStateActive,
	})
	if err != nil {
		return fmt.Errorf("failed to find tasks of process instance %d: %w", instance.Key, err)
	}
	for _, task := range tasks {
		if _, ok := elementInstanceKeys[task.ElementInstanceKey]; !ok {
			continue
		}
		task.State = state
		if err := engine.persistence.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("failed to withdraw task %d: %w", task.Key, err)
		}
		engine.exportTaskEvent(task, exporter.Withdrawn)
		engine.metrics.TasksWithdrawn.Add(ctx, 1)
	}
	return nil
}
