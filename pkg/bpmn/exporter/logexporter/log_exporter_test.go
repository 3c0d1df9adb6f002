package logexporter

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/exporter"
	"github.com/stretchr/testify/assert"
)

func TestTaskEventsAreLogged(t *testing.T) {
	// given
	var out bytes.Buffer
	e := New(hclog.New(&hclog.LoggerOptions{Output: &out, Level: hclog.Debug}))

	// when
	e.NewTaskEvent(&exporter.TaskEvent{
		TaskKey:            7,
		TaskDefinitionKey:  "ProcessCollectionItemTask",
		ProcessInstanceKey: 3,
		Intent:             exporter.Created,
	})
	e.NewElementEvent(&exporter.ProcessInstanceEvent{ProcessInstanceKey: 3}, &exporter.ElementInfo{ElementId: "hidden"})

	// then
	assert.Contains(t, out.String(), "event-exporter: task event")
	assert.Contains(t, out.String(), "taskDefinitionKey=ProcessCollectionItemTask")
	assert.Contains(t, out.String(), "intent=CREATED")
	assert.NotContains(t, out.String(), "hidden", "element events are logged at trace level")
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil).EndProcessEvent(&exporter.ProcessInstanceEvent{ProcessId: "p", ProcessInstanceKey: 1})
	})
}
