// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

type BpmnEngineError struct {
	Msg string
}

func (e *BpmnEngineError) Error() string {
	return e.Msg
}

// newEngineErrorf uses fmt.Sprintf(format, a...) to format the message
func newEngineErrorf(format string, a ...interface{}) error {
	return &BpmnEngineError{
		Msg: fmt.Sprintf(format, a...),
	}
}

type BpmnEngineUnmarshallingError struct {
	Msg string
	Err error
}

func (e *BpmnEngineUnmarshallingError) Error() string {
	if len(e.Msg) > 0 {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *BpmnEngineUnmarshallingError) Unwrap() error {
	return e.Err
}

// ExpressionEvaluationError is returned when an expression can not be evaluated
// or its result has an unexpected type, e.g. an input collection which is not a sequence
type ExpressionEvaluationError struct {
	Msg string
	Err error
}

func (e *ExpressionEvaluationError) Error() string {
	if e.Err != nil {
		return e.Msg + "\nerror: " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExpressionEvaluationError) Unwrap() error {
	return e.Err
}

// NotUniqueResultError is returned by TaskQuery.SingleResult when more than one task matches
type NotUniqueResultError struct {
	Count int
}

func (e *NotUniqueResultError) Error() string {
	return fmt.Sprintf("query was expected to return a single result but returned %d", e.Count)
}

// UnknownScopeError is returned when a variable scope of an element instance is accessed
// after the element instance was removed from its execution tree
type UnknownScopeError struct {
	ElementInstanceKey int64
	Err                error
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("scope of element instance %d is not available: %s", e.ElementInstanceKey, e.Err)
}

func (e *UnknownScopeError) Unwrap() error {
	if e.Err == nil {
		return runtime.ErrUnknownScope
	}
	return e.Err
}
