package bpmn

import (
	"github.com/pbinitiative/zentask/pkg/bpmn/exporter"
	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/ptr"
)

// AddEventExporter registers an EventExporter instance
func (engine *Engine) AddEventExporter(exporter exporter.EventExporter) {
	engine.exporters = append(engine.exporters, exporter)
}

func (engine *Engine) exportNewProcessEvent(processInfo runtime.ProcessDefinition, xmlData []byte, resourceName string, checksum string) {
	event := exporter.ProcessEvent{
		ProcessId:    processInfo.BpmnProcessId,
		ProcessKey:   processInfo.Key,
		Version:      processInfo.Version,
		XmlData:      xmlData,
		ResourceName: resourceName,
		Checksum:     checksum,
	}
	for _, exp := range engine.exporters {
		exp.NewProcessEvent(&event)
	}
}

func newProcessInstanceEvent(processInstance *runtime.ProcessInstance) exporter.ProcessInstanceEvent {
	process := processInstance.Definition
	return exporter.ProcessInstanceEvent{
		ProcessId:          process.BpmnProcessId,
		ProcessKey:         process.Key,
		Version:            process.Version,
		ProcessInstanceKey: processInstance.Key,
	}
}

func (engine *Engine) exportEndProcessEvent(processInstance *runtime.ProcessInstance) {
	event := newProcessInstanceEvent(processInstance)
	for _, exp := range engine.exporters {
		exp.EndProcessEvent(&event)
	}
}

func (engine *Engine) exportProcessInstanceEvent(processInstance *runtime.ProcessInstance) {
	event := newProcessInstanceEvent(processInstance)
	for _, exp := range engine.exporters {
		exp.NewProcessInstanceEvent(&event)
	}
}

func (engine *Engine) exportElementEvent(processInstance *runtime.ProcessInstance, element bpmn20.FlowNode, elementKey int64, intent exporter.Intent) {
	if len(engine.exporters) == 0 {
		return
	}
	event := newProcessInstanceEvent(processInstance)
	info := exporter.ElementInfo{
		BpmnElementType: string(element.GetType()),
		ElementId:       element.GetId(),
		ElementKey:      elementKey,
		Intent:          string(intent),
	}
	for _, exp := range engine.exporters {
		exp.NewElementEvent(&event, &info)
	}
}

func (engine *Engine) exportSequenceFlowEvent(processInstance *runtime.ProcessInstance, flow bpmn20.TSequenceFlow) {
	if len(engine.exporters) == 0 {
		return
	}
	event := newProcessInstanceEvent(processInstance)
	info := exporter.ElementInfo{
		BpmnElementType: string(bpmn20.ElementTypeSequenceFlow),
		ElementId:       flow.Id,
		Intent:          string(exporter.SequenceFlowTaken),
	}
	for _, exp := range engine.exporters {
		exp.NewElementEvent(&event, &info)
	}
}

func (engine *Engine) exportTaskEvent(task runtime.Task, intent exporter.Intent) {
	event := exporter.TaskEvent{
		TaskKey:            task.Key,
		TaskDefinitionKey:  task.TaskDefinitionKey,
		ProcessInstanceKey: ptr.Deref(task.ProcessInstanceKey, 0),
		ElementInstanceKey: task.ElementInstanceKey,
		Intent:             intent,
	}
	for _, exp := range engine.exporters {
		exp.NewTaskEvent(&event)
	}
}
