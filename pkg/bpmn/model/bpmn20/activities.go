// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn20

import (
	"strings"

	"github.com/pbinitiative/zentask/pkg/bpmn/model/extensions"
)

type TActivity struct {
	TFlowNode
	MultiInstanceLoopCharacteristics *TMultiInstanceLoopCharacteristics `xml:"multiInstanceLoopCharacteristics,omitempty"`
}

func (a TActivity) GetMultiInstance() *TMultiInstanceLoopCharacteristics {
	if a.MultiInstanceLoopCharacteristics == nil || !a.MultiInstanceLoopCharacteristics.IsMultiInstance() {
		return nil
	}
	return a.MultiInstanceLoopCharacteristics
}

// TTask is an atomic activity without any engine side behaviour, the token passes through.
type TTask struct {
	TActivity
}

func (task TTask) GetType() ElementType {
	return ElementTypeTask
}

type TUserTask struct {
	TActivity
	// BPMN 2.0 Unorthodox elements. Part of the extensions elements
	AssignmentDefinition extensions.TAssignmentDefinition `xml:"extensionElements>assignmentDefinition"`
}

func (userTask TUserTask) GetType() ElementType {
	return ElementTypeUserTask
}

func (userTask TUserTask) GetAssignmentAssignee() string {
	return userTask.AssignmentDefinition.Assignee
}

func (userTask TUserTask) GetAssignmentCandidateGroups() []string {
	return userTask.AssignmentDefinition.GetCandidateGroups()
}

// TMultiInstanceLoopCharacteristics understands both dialects seen in the wild:
// zeebe keeps the loop attributes in extensionElements>loopCharacteristics,
// camunda 7 uses the camunda:collection and camunda:elementVariable attributes.
type TMultiInstanceLoopCharacteristics struct {
	IsSequential        bool                            `xml:"isSequential,attr"`
	Collection          string                          `xml:"collection,attr,omitempty"`
	ElementVariable     string                          `xml:"elementVariable,attr,omitempty"`
	LoopCharacteristics extensions.TLoopCharacteristics `xml:"extensionElements>loopCharacteristics"`
	CompletionCondition *TExpression                    `xml:"completionCondition,omitempty"`
}

func (mi TMultiInstanceLoopCharacteristics) IsMultiInstance() bool {
	return mi.GetInputCollection() != ""
}

func (mi TMultiInstanceLoopCharacteristics) GetInputCollection() string {
	if c := strings.TrimSpace(mi.LoopCharacteristics.InputCollection); c != "" {
		return c
	}
	return strings.TrimSpace(mi.Collection)
}

func (mi TMultiInstanceLoopCharacteristics) GetInputElement() string {
	if e := strings.TrimSpace(mi.LoopCharacteristics.InputElement); e != "" {
		return e
	}
	return strings.TrimSpace(mi.ElementVariable)
}

func (mi TMultiInstanceLoopCharacteristics) GetOutputCollection() string {
	return strings.TrimSpace(mi.LoopCharacteristics.OutputCollection)
}

func (mi TMultiInstanceLoopCharacteristics) GetOutputElement() string {
	return strings.TrimSpace(mi.LoopCharacteristics.OutputElement)
}

func (mi TMultiInstanceLoopCharacteristics) GetCompletionCondition() string {
	if mi.CompletionCondition == nil {
		return ""
	}
	return mi.CompletionCondition.GetExpression()
}
