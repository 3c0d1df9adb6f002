package bpmn

import (
	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
)

// command is one step of the process run queue, see runProcessInstance
type command interface {
	isCommand()
}

// flowTransitionCommand follows a sequence flow to its target
type flowTransitionCommand struct {
	sourceId       string
	sequenceFlowId string
}

func (flowTransitionCommand) isCommand() {}

// activityCommand executes element, sourceId is the sequence flow that led to it
type activityCommand struct {
	sourceId string
	element  bpmn20.FlowNode
}

func (activityCommand) isCommand() {}
