// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"fmt"
	"slices"

	"github.com/pbinitiative/zentask/pkg/bpmn/exporter"
	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

// variables maintained by the engine on the multi-instance body and its children
const (
	VariableNrOfInstances          = "nrOfInstances"
	VariableNrOfActiveInstances    = "nrOfActiveInstances"
	VariableNrOfCompletedInstances = "nrOfCompletedInstances"
	VariableLoopCounter            = "loopCounter"
)

// startMultiInstance expands the activity into one body and a child per collection item.
// The collection is evaluated against the process scope. Returns completed=true when the
// collection is empty and the flow can continue right away.
func (engine *Engine) startMultiInstance(
	ctx context.Context,
	batch storage.Batch,
	instance *runtime.ProcessInstance,
	element bpmn20.UserTaskElement,
) (completed bool, err error) {
	mi := element.GetMultiInstance()
	processScope := instance.Scope()
	inputCollection, err := engine.evaluateInputCollection(mi, processScope)
	if err != nil {
		return false, err
	}

	total := len(inputCollection)
	if outCol := mi.GetOutputCollection(); outCol != "" {
		processScope.SetGlobalVariable(outCol, make([]any, total))
	}
	if total == 0 {
		engine.exportElementEvent(instance, element, instance.Key, exporter.ElementActivated)
		engine.exportElementEvent(instance, element, instance.Key, exporter.ElementCompleted)
		return true, nil
	}

	body, err := instance.Tree.CreateChild(instance.Key, engine.generateKey(), runtime.KindMultiInstanceBody, element)
	if err != nil {
		return false, &UnknownScopeError{ElementInstanceKey: instance.Key, Err: err}
	}
	active := total
	if mi.IsSequential {
		active = 1
	}
	body.Scope().SetVariables(map[string]any{
		VariableNrOfInstances:          total,
		VariableNrOfActiveInstances:    active,
		VariableNrOfCompletedInstances: 0,
	})
	engine.exportElementEvent(instance, element, body.Key, exporter.ElementActivated)

	// every child exists before the first one is announced
	tasks := make([]runtime.Task, 0, active)
	for i := range active {
		task, err := engine.createUserTaskInstance(ctx, batch, instance, body.Key, element, childVariables(mi, i, inputCollection[i]))
		if err != nil {
			return false, err
		}
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		engine.exportTaskCreated(ctx, instance, element, task)
	}
	return false, nil
}

func childVariables(mi *bpmn20.TMultiInstanceLoopCharacteristics, loopCounter int, item any) map[string]any {
	vars := map[string]any{VariableLoopCounter: loopCounter}
	if inputElement := mi.GetInputElement(); inputElement != "" {
		vars[inputElement] = item
	}
	return vars
}

func (engine *Engine) evaluateInputCollection(mi *bpmn20.TMultiInstanceLoopCharacteristics, scope *runtime.VariableScope) ([]any, error) {
	inColExpr := mi.GetInputCollection()
	inputCollectionObject, err := engine.evaluateExpression(inColExpr, scope.Variables())
	if err != nil {
		return nil, &ExpressionEvaluationError{
			Msg: fmt.Sprintf("failed to evaluate inputCollection expression: %s", inColExpr),
			Err: err,
		}
	}
	inputCollection, err := toSequence(inputCollectionObject)
	if err != nil {
		return nil, &ExpressionEvaluationError{
			Msg: fmt.Sprintf("inputCollection expression %s did not resolve to a collection", inColExpr),
			Err: err,
		}
	}
	return inputCollection, nil
}

// completeMultiInstanceChild removes the completed child and updates the body counters.
// Once all children completed, or the completion condition holds, the remaining children are
// withdrawn, the body is removed and the flow continues after the activity.
func (engine *Engine) completeMultiInstanceChild(
	ctx context.Context,
	batch storage.Batch,
	instance *runtime.ProcessInstance,
	body *runtime.ElementInstance,
	child *runtime.ElementInstance,
) ([]command, error) {
	element, ok := body.Element.(bpmn20.UserTaskElement)
	if !ok || element.GetMultiInstance() == nil {
		return nil, newEngineErrorf("element %s of multi-instance body %d is not a multi-instance user task", body.ElementId, body.Key)
	}
	mi := element.GetMultiInstance()
	bodyScope := body.Scope()

	if outCol := mi.GetOutputCollection(); outCol != "" && mi.GetOutputElement() != "" {
		outVal, err := engine.evaluateExpression(mi.GetOutputElement(), child.Scope().Variables())
		if err != nil {
			return nil, &ExpressionEvaluationError{Msg: fmt.Sprintf("failed to evaluate outputElement expression: %s", mi.GetOutputElement()), Err: err}
		}
		loopCounter := toInt(child.Scope().GetLocalVariable(VariableLoopCounter))
		storeOutputElement(instance.Scope(), outCol, loopCounter, outVal)
	}

	total := toInt(bodyScope.GetLocalVariable(VariableNrOfInstances))
	completedCount := toInt(bodyScope.GetLocalVariable(VariableNrOfCompletedInstances)) + 1
	activeCount := toInt(bodyScope.GetLocalVariable(VariableNrOfActiveInstances)) - 1
	bodyScope.SetVariables(map[string]any{
		VariableNrOfCompletedInstances: completedCount,
		VariableNrOfActiveInstances:    activeCount,
	})
	if err := instance.Tree.Remove(child.Key); err != nil {
		return nil, &UnknownScopeError{ElementInstanceKey: child.Key, Err: err}
	}
	engine.exportElementEvent(instance, element, child.Key, exporter.ElementCompleted)

	done := completedCount >= total
	if !done && mi.GetCompletionCondition() != "" {
		var err error
		done, err = engine.evaluateCompletionCondition(mi.GetCompletionCondition(), bodyScope)
		if err != nil {
			return nil, err
		}
	}

	if !done {
		if mi.IsSequential && activeCount == 0 {
			return nil, engine.startNextSequentialChild(ctx, batch, instance, body, element, completedCount)
		}
		return nil, nil
	}

	remaining, err := instance.Tree.Children(body.Key)
	if err != nil {
		return nil, &UnknownScopeError{ElementInstanceKey: body.Key, Err: err}
	}
	withdrawn := make(map[int64]struct{}, len(remaining))
	for _, r := range remaining {
		withdrawn[r.Key] = struct{}{}
	}
	if err := engine.withdrawTasks(ctx, instance, withdrawn, runtime.ActivityStateWithdrawn); err != nil {
		return nil, err
	}
	for _, r := range remaining {
		engine.exportElementEvent(instance, element, r.Key, exporter.ElementWithdrawn)
	}
	if err := instance.Tree.Remove(body.Key); err != nil {
		return nil, &UnknownScopeError{ElementInstanceKey: body.Key, Err: err}
	}
	engine.exportElementEvent(instance, element, body.Key, exporter.ElementCompleted)
	return engine.outgoingTransitions(instance, element), nil
}

func (engine *Engine) evaluateCompletionCondition(condition string, bodyScope *runtime.VariableScope) (bool, error) {
	res, err := engine.evaluateExpression(condition, bodyScope.Variables())
	if err != nil {
		return false, &ExpressionEvaluationError{Msg: fmt.Sprintf("failed to evaluate completionCondition expression: %s", condition), Err: err}
	}
	done, ok := res.(bool)
	if !ok {
		return false, &ExpressionEvaluationError{Msg: fmt.Sprintf("completionCondition expression %s did not resolve to a boolean but %T", condition, res)}
	}
	return done, nil
}

func (engine *Engine) startNextSequentialChild(
	ctx context.Context,
	batch storage.Batch,
	instance *runtime.ProcessInstance,
	body *runtime.ElementInstance,
	element bpmn20.UserTaskElement,
	loopCounter int,
) error {
	mi := element.GetMultiInstance()
	inputCollection, err := engine.evaluateInputCollection(mi, instance.Scope())
	if err != nil {
		return err
	}
	if loopCounter >= len(inputCollection) {
		return &ExpressionEvaluationError{Msg: fmt.Sprintf("inputCollection %s shrank to %d items while the sequential loop is at item %d", mi.GetInputCollection(), len(inputCollection), loopCounter)}
	}
	task, err := engine.createUserTaskInstance(ctx, batch, instance, body.Key, element, childVariables(mi, loopCounter, inputCollection[loopCounter]))
	if err != nil {
		return err
	}
	body.Scope().SetVariable(VariableNrOfActiveInstances, 1)
	engine.exportTaskCreated(ctx, instance, element, task)
	return nil
}

// storeOutputElement writes the value at the child's position, so the output order follows the input order
func storeOutputElement(processScope *runtime.VariableScope, outputCollection string, loopCounter int, value any) {
	current, _ := toSequence(processScope.GetVariable(outputCollection))
	out := slices.Clone(current)
	if loopCounter >= len(out) {
		out = append(out, make([]any, loopCounter-len(out)+1)...)
	}
	out[loopCounter] = value
	processScope.SetGlobalVariable(outputCollection, out)
}
