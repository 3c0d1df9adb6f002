// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn20

import (
	"encoding/xml"
	"strings"
)

type TBaseElement struct {
	// This attribute is used to uniquely identify BPMN elements. The id is
	// REQUIRED if this element is referenced or intended to be referenced by
	// something else.
	Id string `xml:"id,attr"`
}

func (t TBaseElement) GetId() string {
	return t.Id
}

type BaseElement interface {
	GetId() string
}

type TDefinitions struct {
	XMLName         xml.Name `xml:"definitions"`
	Id              string   `xml:"id,attr,omitempty"`
	Name            string   `xml:"name,attr,omitempty"`
	TargetNamespace string   `xml:"targetNamespace,attr,omitempty"`
	Exporter        string   `xml:"exporter,attr,omitempty"`
	ExporterVersion string   `xml:"exporterVersion,attr,omitempty"`
	Process         TProcess `xml:"process"`
}

type TCallableElement struct {
	TBaseElement
	Name string `xml:"name,attr,omitempty"`
}

type FlowElement interface {
	BaseElement
	GetName() string
	GetType() ElementType
}

type TFlowElement struct {
	TBaseElement
	Name string `xml:"name,attr,omitempty"`
}

func (fe TFlowElement) GetName() string {
	return fe.Name
}

type TSequenceFlow struct {
	TFlowElement
	SourceRef string `xml:"sourceRef,attr"`
	TargetRef string `xml:"targetRef,attr"`
}

func (sf TSequenceFlow) GetType() ElementType {
	return ElementTypeSequenceFlow
}

type FlowNode interface {
	FlowElement
	GetIncomingAssociation() []string
	GetOutgoingAssociation() []string
}

type TFlowNode struct {
	TFlowElement
	IncomingAssociation []string `xml:"incoming"`
	OutgoingAssociation []string `xml:"outgoing"`
}

func (fn TFlowNode) GetIncomingAssociation() []string {
	return fn.IncomingAssociation
}

func (fn TFlowNode) GetOutgoingAssociation() []string {
	return fn.OutgoingAssociation
}

type TExpression struct {
	Text string `xml:",chardata"`
}

// GetExpression returns the trimmed expression text, empty when only blanks are present
func (e TExpression) GetExpression() string {
	return strings.TrimSpace(e.Text)
}
