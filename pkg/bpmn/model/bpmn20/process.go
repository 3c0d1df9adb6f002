// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn20

type TFlowElementsContainer struct {
	StartEvents   []TStartEvent   `xml:"startEvent"`
	EndEvents     []TEndEvent     `xml:"endEvent"`
	Tasks         []TTask         `xml:"task"`
	UserTasks     []TUserTask     `xml:"userTask"`
	SequenceFlows []TSequenceFlow `xml:"sequenceFlow"`
}

type TProcess struct {
	TCallableElement
	TFlowElementsContainer
	IsExecutable bool `xml:"isExecutable,attr"`
}

func (p *TProcess) GetFlowNodeById(id string) FlowNode {
	for i := range p.StartEvents {
		if p.StartEvents[i].GetId() == id {
			return &p.StartEvents[i]
		}
	}
	for i := range p.EndEvents {
		if p.EndEvents[i].GetId() == id {
			return &p.EndEvents[i]
		}
	}
	for i := range p.Tasks {
		if p.Tasks[i].GetId() == id {
			return &p.Tasks[i]
		}
	}
	for i := range p.UserTasks {
		if p.UserTasks[i].GetId() == id {
			return &p.UserTasks[i]
		}
	}
	return nil
}

// FindSequenceFlowsBySource returns the outgoing sequence flows of the element, in document order
func (p *TProcess) FindSequenceFlowsBySource(sourceId string) []TSequenceFlow {
	ret := make([]TSequenceFlow, 0, 1)
	for _, flow := range p.SequenceFlows {
		if flow.SourceRef == sourceId {
			ret = append(ret, flow)
		}
	}
	return ret
}

func (p *TProcess) FindSequenceFlowById(id string) (TSequenceFlow, bool) {
	for _, flow := range p.SequenceFlows {
		if flow.Id == id {
			return flow, true
		}
	}
	return TSequenceFlow{}, false
}
