// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package exporter

// EventExporter receives engine events synchronously, implementations must not block
type EventExporter interface {
	NewProcessEvent(event *ProcessEvent)
	EndProcessEvent(event *ProcessInstanceEvent)
	NewProcessInstanceEvent(event *ProcessInstanceEvent)
	NewElementEvent(event *ProcessInstanceEvent, elementInfo *ElementInfo)
	NewTaskEvent(event *TaskEvent)
}

type Intent string

const (
	ElementActivating Intent = "ELEMENT_ACTIVATING"
	ElementActivated  Intent = "ELEMENT_ACTIVATED"
	ElementCompleting Intent = "ELEMENT_COMPLETING"
	ElementCompleted  Intent = "ELEMENT_COMPLETED"
	ElementWithdrawn  Intent = "ELEMENT_WITHDRAWN"
	SequenceFlowTaken Intent = "SEQUENCE_FLOW_TAKEN"
	Created           Intent = "CREATED"
	Completed         Intent = "COMPLETED"
	Withdrawn         Intent = "WITHDRAWN"
)

type ProcessEvent struct {
	ProcessId    string
	ProcessKey   int64
	Version      int32
	XmlData      []byte
	ResourceName string
	Checksum     string
}

type ProcessInstanceEvent struct {
	ProcessId          string
	ProcessKey         int64
	Version            int32
	ProcessInstanceKey int64
}

type ElementInfo struct {
	BpmnElementType string
	ElementId       string
	ElementKey      int64
	Intent          string // ELEMENT_ACTIVATING || ELEMENT_ACTIVATED || ELEMENT_COMPLETING || ELEMENT_COMPLETED || ELEMENT_WITHDRAWN
}

// TaskEvent describes a user task state change, ProcessInstanceKey is 0 for standalone tasks
type TaskEvent struct {
	TaskKey            int64
	TaskDefinitionKey  string
	ProcessInstanceKey int64
	ElementInstanceKey int64
	Intent             Intent
}
