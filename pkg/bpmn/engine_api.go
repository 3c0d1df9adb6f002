package bpmn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zentask/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CreateInstanceById creates and runs a new instance of the latest version of the process with given BPMN process id.
// Might return BpmnEngineError, when no process with given ID was found
func (engine *Engine) CreateInstanceById(ctx context.Context, processId string, variableContext map[string]any) (*runtime.ProcessInstance, error) {
	processDefinition, err := engine.FindLatestProcessDefinitionById(ctx, processId)
	if err != nil {
		return nil, errors.Join(newEngineErrorf("no process with id=%s was found (prior loaded into the engine)", processId), err)
	}
	return engine.StartProcessInstance(ctx, &processDefinition, variableContext)
}

// CreateInstanceByKey creates and runs a new instance of the process definition with given key.
func (engine *Engine) CreateInstanceByKey(ctx context.Context, processDefinitionKey int64, variableContext map[string]any) (*runtime.ProcessInstance, error) {
	processDefinition, err := engine.persistence.FindProcessDefinitionByKey(ctx, processDefinitionKey)
	if err != nil {
		return nil, errors.Join(newEngineErrorf("no process definition with key %d was found (prior loaded into the engine)", processDefinitionKey), err)
	}
	return engine.StartProcessInstance(ctx, &processDefinition, variableContext)
}

// StartProcessInstance creates a new instance whose process scope holds a copy of variableContext
// and runs it until every path waits at a user task or ended.
// When the run fails the instance is returned in FAILED state together with the error,
// an input collection that is not a sequence yields *ExpressionEvaluationError.
func (engine *Engine) StartProcessInstance(ctx context.Context, process *runtime.ProcessDefinition, variableContext map[string]any) (*runtime.ProcessInstance, error) {
	if err := engine.checkRunning(); err != nil {
		return nil, err
	}
	startEvents := process.Definitions.Process.StartEvents
	if len(startEvents) == 0 {
		return nil, newEngineErrorf("process %s has no start event", process.BpmnProcessId)
	}

	key := engine.generateKey()
	instance := runtime.ProcessInstance{
		Definition: process,
		Key:        key,
		CreatedAt:  time.Now(),
		State:      runtime.ActivityStateReady,
		Tree:       runtime.NewExecutionTree(key, variableContext),
	}

	engine.runningInstances.lockInstance(instance.Key)
	defer engine.runningInstances.unlockInstance(instance.Key)

	ctx, createSpan := engine.tracer.Start(ctx, fmt.Sprintf("create-instance:%s", process.BpmnProcessId), trace.WithAttributes(
		attribute.Int64(otelPkg.AttributeProcessInstanceKey, instance.Key),
		attribute.String(otelPkg.AttributeProcessId, process.BpmnProcessId),
		attribute.Int64(otelPkg.AttributeProcessDefinitionKey, process.Key),
	))
	defer createSpan.End()

	batch := engine.persistence.NewBatch()
	instance.State = runtime.ActivityStateActive
	if err := batch.SaveProcessInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save process instance %d: %w", instance.Key, err)
	}
	engine.exportProcessInstanceEvent(&instance)
	engine.metrics.ProcessesStarted.Add(ctx, 1)
	engine.metrics.ProcessesRunning.Add(ctx, 1)

	commands := make([]command, 0, len(startEvents))
	for i := range startEvents {
		commands = append(commands, activityCommand{element: &startEvents[i]})
	}
	err := engine.runProcessInstance(ctx, batch, &instance, commands)
	if err != nil {
		createSpan.RecordError(err)
		createSpan.SetStatus(codes.Error, err.Error())
		engine.failInstance(ctx, &instance, err)
		return &instance, err
	}
	if err := batch.SaveProcessInstance(ctx, instance); err != nil {
		return &instance, err
	}
	if err := batch.Flush(ctx); err != nil {
		return &instance, fmt.Errorf("failed to start process instance %d: %w", instance.Key, err)
	}
	createSpan.SetAttributes(attribute.String(otelPkg.SpanStatusInstance, string(instance.State)))
	return &instance, nil
}

// failInstance marks the instance FAILED and terminates its stored waiting tasks.
// Writes collected in the batch of the failed run are dropped by not flushing it.
func (engine *Engine) failInstance(ctx context.Context, instance *runtime.ProcessInstance, cause error) {
	engine.logger.Error("process instance failed", "processInstanceKey", instance.Key, "processId", instance.Definition.BpmnProcessId, "err", cause)
	if err := engine.terminateWaitingTasks(ctx, instance); err != nil {
		engine.logger.Error("failed to terminate tasks of failed process instance", "processInstanceKey", instance.Key, "err", err)
	}
	instance.State = runtime.ActivityStateFailed
	instance.Tree.Clear()
	if err := engine.persistence.SaveProcessInstance(ctx, *instance); err != nil {
		engine.logger.Error("failed to save failed process instance", "processInstanceKey", instance.Key, "err", err)
	}
	engine.metrics.ProcessesRunning.Add(ctx, -1)
}

// terminateWaitingTasks terminates every active task bound to a live element instance of the instance
func (engine *Engine) terminateWaitingTasks(ctx context.Context, instance *runtime.ProcessInstance) error {
	keys := map[int64]struct{}{}
	var collect func(key int64) error
	collect = func(key int64) error {
		children, err := instance.Tree.Children(key)
		if err != nil {
			return err
		}
		for _, c := range children {
			keys[c.Key] = struct{}{}
			if err := collect(c.Key); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(instance.Key); err != nil {
		return &UnknownScopeError{ElementInstanceKey: instance.Key, Err: err}
	}
	return engine.withdrawTasks(ctx, instance, keys, runtime.ActivityStateTerminated)
}

// CancelInstanceByKey terminates an active process instance together with its waiting tasks
func (engine *Engine) CancelInstanceByKey(ctx context.Context, processInstanceKey int64) error {
	engine.runningInstances.lockInstance(processInstanceKey)
	defer engine.runningInstances.unlockInstance(processInstanceKey)

	instance, err := engine.persistence.FindProcessInstanceByKey(ctx, processInstanceKey)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to find process instance with key: %d", processInstanceKey), err)
	}
	if instance.State != runtime.ActivityStateActive && instance.State != runtime.ActivityStateReady {
		return newEngineErrorf("process instance %d can not be cancelled in state %s", processInstanceKey, instance.State)
	}
	if err := engine.terminateWaitingTasks(ctx, &instance); err != nil {
		return err
	}
	instance.State = runtime.ActivityStateTerminated
	instance.Tree.Clear()
	if err := engine.persistence.SaveProcessInstance(ctx, instance); err != nil {
		return fmt.Errorf("failed to save cancelled process instance %d: %w", processInstanceKey, err)
	}
	engine.metrics.ProcessesRunning.Add(ctx, -1)
	engine.exportEndProcessEvent(&instance)
	return nil
}

// FindProcessInstance searches for a given processInstanceKey
// and returns the corresponding process instance or storage.ErrNotFound
func (engine *Engine) FindProcessInstance(ctx context.Context, processInstanceKey int64) (runtime.ProcessInstance, error) {
	return engine.persistence.FindProcessInstanceByKey(ctx, processInstanceKey)
}

// FindActiveProcessInstances returns the instances which still wait for tasks
func (engine *Engine) FindActiveProcessInstances(ctx context.Context) ([]runtime.ProcessInstance, error) {
	return engine.persistence.FindProcessInstancesByState(ctx, runtime.ActivityStateActive)
}

// IsWaitingAt returns true when a live activity instance of the element exists in the instance
func (engine *Engine) IsWaitingAt(ctx context.Context, processInstanceKey int64, elementId string) (bool, error) {
	instance, err := engine.persistence.FindProcessInstanceByKey(ctx, processInstanceKey)
	if err != nil {
		return false, errors.Join(newEngineErrorf("failed to find process instance with key: %d", processInstanceKey), err)
	}
	pending := []int64{instance.Key}
	for len(pending) > 0 {
		children, err := instance.Tree.Children(pending[0])
		pending = pending[1:]
		if err != nil {
			continue
		}
		for _, c := range children {
			if c.Kind == runtime.KindActivity && c.ElementId == elementId {
				return true, nil
			}
			pending = append(pending, c.Key)
		}
	}
	return false, nil
}
