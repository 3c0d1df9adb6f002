package logexporter

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/exporter"
)

// Exporter writes every engine event as one structured debug line
type Exporter struct {
	logger hclog.Logger
}

var _ exporter.EventExporter = &Exporter{}

func New(logger hclog.Logger) *Exporter {
	if logger == nil {
		logger = hclog.Default()
	}
	return &Exporter{logger: logger.Named("event-exporter")}
}

func (e *Exporter) NewProcessEvent(event *exporter.ProcessEvent) {
	e.logger.Debug("process deployed",
		"processId", event.ProcessId,
		"processKey", event.ProcessKey,
		"version", event.Version,
		"resource", event.ResourceName,
		"checksum", event.Checksum,
	)
}

func (e *Exporter) EndProcessEvent(event *exporter.ProcessInstanceEvent) {
	e.logger.Debug("process instance ended", "processId", event.ProcessId, "processInstanceKey", event.ProcessInstanceKey)
}

func (e *Exporter) NewProcessInstanceEvent(event *exporter.ProcessInstanceEvent) {
	e.logger.Debug("process instance created", "processId", event.ProcessId, "processInstanceKey", event.ProcessInstanceKey)
}

func (e *Exporter) NewElementEvent(event *exporter.ProcessInstanceEvent, elementInfo *exporter.ElementInfo) {
	e.logger.Trace("element event",
		"processInstanceKey", event.ProcessInstanceKey,
		"elementId", elementInfo.ElementId,
		"elementKey", elementInfo.ElementKey,
		"type", elementInfo.BpmnElementType,
		"intent", elementInfo.Intent,
	)
}

func (e *Exporter) NewTaskEvent(event *exporter.TaskEvent) {
	e.logger.Debug("task event",
		"taskKey", event.TaskKey,
		"taskDefinitionKey", event.TaskDefinitionKey,
		"processInstanceKey", event.ProcessInstanceKey,
		"intent", event.Intent,
	)
}
