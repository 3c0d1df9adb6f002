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

	"github.com/pbinitiative/zentask/pkg/bpmn/exporter"
	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

// runProcessInstance drains the command queue. User tasks park the flow,
// it is resumed by CompleteTask with the commands returned by the completed activity.
// The caller holds the instance lock.
func (engine *Engine) runProcessInstance(ctx context.Context, batch storage.Batch, instance *runtime.ProcessInstance, commands []command) error {
	process := &instance.Definition.Definitions.Process
	for len(commands) > 0 {
		if instance.State != runtime.ActivityStateActive {
			return nil
		}
		cmd := commands[0]
		commands = commands[1:]

		switch cmd := cmd.(type) {
		case flowTransitionCommand:
			flow, ok := process.FindSequenceFlowById(cmd.sequenceFlowId)
			if !ok {
				return newEngineErrorf("sequence flow %s of element %s not found in process %s", cmd.sequenceFlowId, cmd.sourceId, process.Id)
			}
			engine.exportSequenceFlowEvent(instance, flow)
			target := process.GetFlowNodeById(flow.TargetRef)
			if target == nil {
				return newEngineErrorf("target element %s of sequence flow %s not found in process %s", flow.TargetRef, flow.Id, process.Id)
			}
			commands = append(commands, activityCommand{sourceId: flow.Id, element: target})
		case activityCommand:
			next, err := engine.executeFlowNode(ctx, batch, instance, cmd.element)
			if err != nil {
				return err
			}
			commands = append(commands, next...)
		default:
			return fmt.Errorf("unsupported command %T", cmd)
		}
	}
	return nil
}

func (engine *Engine) executeFlowNode(ctx context.Context, batch storage.Batch, instance *runtime.ProcessInstance, element bpmn20.FlowNode) ([]command, error) {
	switch element := element.(type) {
	case *bpmn20.TStartEvent:
		engine.exportElementEvent(instance, element, instance.Key, exporter.ElementCompleted)
		return engine.outgoingTransitions(instance, element), nil
	case *bpmn20.TTask:
		engine.exportElementEvent(instance, element, instance.Key, exporter.ElementActivated)
		engine.exportElementEvent(instance, element, instance.Key, exporter.ElementCompleted)
		return engine.outgoingTransitions(instance, element), nil
	case *bpmn20.TUserTask:
		if element.GetMultiInstance() != nil {
			completed, err := engine.startMultiInstance(ctx, batch, instance, element)
			if err != nil {
				return nil, err
			}
			if completed {
				return engine.outgoingTransitions(instance, element), nil
			}
			return nil, nil
		}
		_, err := engine.createUserTaskInstance(ctx, batch, instance, instance.Key, element, nil)
		if err != nil {
			return nil, err
		}
		return nil, nil
	case *bpmn20.TEndEvent:
		engine.exportElementEvent(instance, element, instance.Key, exporter.ElementCompleted)
		return nil, engine.completeInstanceIfIdle(ctx, batch, instance)
	default:
		return nil, newEngineErrorf("unsupported element %s of type %s", element.GetId(), element.GetType())
	}
}

func (engine *Engine) outgoingTransitions(instance *runtime.ProcessInstance, element bpmn20.FlowNode) []command {
	flows := instance.Definition.Definitions.Process.FindSequenceFlowsBySource(element.GetId())
	res := make([]command, 0, len(flows))
	for _, flow := range flows {
		res = append(res, flowTransitionCommand{sourceId: element.GetId(), sequenceFlowId: flow.Id})
	}
	return res
}

// completeInstanceIfIdle completes the instance once no element instance is waiting anymore
func (engine *Engine) completeInstanceIfIdle(ctx context.Context, batch storage.Batch, instance *runtime.ProcessInstance) error {
	children, err := instance.Tree.Children(instance.Key)
	if err != nil {
		return &UnknownScopeError{ElementInstanceKey: instance.Key, Err: err}
	}
	if len(children) > 0 {
		return nil
	}
	instance.State = runtime.ActivityStateCompleted
	instance.Tree.Clear()
	if err := batch.SaveProcessInstance(ctx, *instance); err != nil {
		return fmt.Errorf("failed to save completed process instance %d: %w", instance.Key, err)
	}
	engine.metrics.ProcessesEnded.Add(ctx, 1)
	engine.metrics.ProcessesRunning.Add(ctx, -1)
	engine.exportEndProcessEvent(instance)
	engine.logger.Debug("process instance completed", "processInstanceKey", instance.Key)
	return nil
}
