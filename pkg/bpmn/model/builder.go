// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package model builds process definitions in code, as an alternative to loading BPMN XML.
// The builder only produces straight-through processes: every new element is connected
// to the previously added one by a sequence flow.
package model

import (
	"fmt"

	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
)

type ProcessBuilder struct {
	definitions bpmn20.TDefinitions
	lastId      string
	counter     int
}

// NewProcess starts a new executable process with the given BPMN process id
func NewProcess(bpmnProcessId string) *ProcessBuilder {
	b := &ProcessBuilder{}
	b.definitions.Id = "Definitions_" + bpmnProcessId
	b.definitions.Process.Id = bpmnProcessId
	b.definitions.Process.IsExecutable = true
	return b
}

func (b *ProcessBuilder) Name(name string) *ProcessBuilder {
	b.definitions.Process.Name = name
	return b
}

func (b *ProcessBuilder) nextId(prefix string) string {
	b.counter++
	return fmt.Sprintf("%s_%d", prefix, b.counter)
}

func (b *ProcessBuilder) StartEvent() *ProcessBuilder {
	e := bpmn20.TStartEvent{}
	e.Id = b.nextId("StartEvent")
	b.definitions.Process.StartEvents = append(b.definitions.Process.StartEvents, e)
	b.connect(e.Id)
	return b
}

// EndEvent adds an end event, the name is optional
func (b *ProcessBuilder) EndEvent(name string) *ProcessBuilder {
	e := bpmn20.TEndEvent{}
	e.Id = b.nextId("EndEvent")
	e.Name = name
	b.definitions.Process.EndEvents = append(b.definitions.Process.EndEvents, e)
	b.connect(e.Id)
	return b
}

func (b *ProcessBuilder) Task(id string) *ProcessBuilder {
	t := bpmn20.TTask{}
	t.Id = id
	b.definitions.Process.Tasks = append(b.definitions.Process.Tasks, t)
	b.connect(id)
	return b
}

func (b *ProcessBuilder) UserTask(id string) *ProcessBuilder {
	t := bpmn20.TUserTask{}
	t.Id = id
	b.definitions.Process.UserTasks = append(b.definitions.Process.UserTasks, t)
	b.connect(id)
	return b
}

// Assignee sets the assignee of the last added user task
func (b *ProcessBuilder) Assignee(assignee string) *ProcessBuilder {
	if ut := b.lastUserTask(); ut != nil {
		ut.AssignmentDefinition.Assignee = assignee
	}
	return b
}

// MultiInstance turns the last added user task into a multi-instance activity
func (b *ProcessBuilder) MultiInstance() *MultiInstanceBuilder {
	ut := b.lastUserTask()
	if ut == nil {
		panic("[invariant check] MultiInstance() must follow UserTask()")
	}
	ut.MultiInstanceLoopCharacteristics = &bpmn20.TMultiInstanceLoopCharacteristics{}
	return &MultiInstanceBuilder{parent: b, mi: ut.MultiInstanceLoopCharacteristics}
}

// Done returns the built definitions, the builder must not be used afterwards
func (b *ProcessBuilder) Done() *bpmn20.TDefinitions {
	d := b.definitions
	return &d
}

func (b *ProcessBuilder) lastUserTask() *bpmn20.TUserTask {
	tasks := b.definitions.Process.UserTasks
	if len(tasks) == 0 || tasks[len(tasks)-1].Id != b.lastId {
		return nil
	}
	return &b.definitions.Process.UserTasks[len(tasks)-1]
}

func (b *ProcessBuilder) connect(targetId string) {
	if b.lastId != "" {
		flowId := b.nextId("Flow")
		flow := bpmn20.TSequenceFlow{SourceRef: b.lastId, TargetRef: targetId}
		flow.Id = flowId
		b.definitions.Process.SequenceFlows = append(b.definitions.Process.SequenceFlows, flow)
		b.addAssociation(b.lastId, flowId, false)
		b.addAssociation(targetId, flowId, true)
	}
	b.lastId = targetId
}

func (b *ProcessBuilder) addAssociation(elementId string, flowId string, incoming bool) {
	add := func(node *bpmn20.TFlowNode) {
		if incoming {
			node.IncomingAssociation = append(node.IncomingAssociation, flowId)
		} else {
			node.OutgoingAssociation = append(node.OutgoingAssociation, flowId)
		}
	}
	p := &b.definitions.Process
	for i := range p.StartEvents {
		if p.StartEvents[i].Id == elementId {
			add(&p.StartEvents[i].TFlowNode)
		}
	}
	for i := range p.EndEvents {
		if p.EndEvents[i].Id == elementId {
			add(&p.EndEvents[i].TFlowNode)
		}
	}
	for i := range p.Tasks {
		if p.Tasks[i].Id == elementId {
			add(&p.Tasks[i].TFlowNode)
		}
	}
	for i := range p.UserTasks {
		if p.UserTasks[i].Id == elementId {
			add(&p.UserTasks[i].TFlowNode)
		}
	}
}

type MultiInstanceBuilder struct {
	parent *ProcessBuilder
	mi     *bpmn20.TMultiInstanceLoopCharacteristics
}

func (m *MultiInstanceBuilder) Parallel() *MultiInstanceBuilder {
	m.mi.IsSequential = false
	return m
}

func (m *MultiInstanceBuilder) Sequential() *MultiInstanceBuilder {
	m.mi.IsSequential = true
	return m
}

// Collection sets the expression which resolves to the input collection
func (m *MultiInstanceBuilder) Collection(expression string) *MultiInstanceBuilder {
	m.mi.Collection = expression
	return m
}

func (m *MultiInstanceBuilder) ElementVariable(name string) *MultiInstanceBuilder {
	m.mi.ElementVariable = name
	return m
}

func (m *MultiInstanceBuilder) OutputCollection(name string) *MultiInstanceBuilder {
	m.mi.LoopCharacteristics.OutputCollection = name
	return m
}

func (m *MultiInstanceBuilder) OutputElement(expression string) *MultiInstanceBuilder {
	m.mi.LoopCharacteristics.OutputElement = expression
	return m
}

func (m *MultiInstanceBuilder) CompletionCondition(expression string) *MultiInstanceBuilder {
	m.mi.CompletionCondition = &bpmn20.TExpression{Text: expression}
	return m
}

func (m *MultiInstanceBuilder) MultiInstanceDone() *ProcessBuilder {
	return m.parent
}
