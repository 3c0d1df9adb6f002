// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
)

type ElementInstanceKind string

const (
	KindProcessInstance   ElementInstanceKind = "PROCESS_INSTANCE"
	KindMultiInstanceBody ElementInstanceKind = "MULTI_INSTANCE_BODY"
	KindActivity          ElementInstanceKind = "ACTIVITY"
)

// ElementInstance is a node of the ExecutionTree. Every node owns exactly one VariableScope
// whose parent is the scope of the parent node.
type ElementInstance struct {
	Key       int64
	Kind      ElementInstanceKind
	ElementId string
	Element   bpmn20.FlowNode
	State     ActivityState

	parent   *ElementInstance
	children []*ElementInstance
	scope    *VariableScope
}

func (ei *ElementInstance) Scope() *VariableScope {
	return ei.scope
}

// Parent returns nil for the process instance node
func (ei *ElementInstance) Parent() *ElementInstance {
	return ei.parent
}

// ExecutionTree is the runtime hierarchy process instance -> multi-instance body -> activity instance.
type ExecutionTree struct {
	mu    sync.RWMutex
	root  *ElementInstance
	nodes map[int64]*ElementInstance
}

// NewExecutionTree creates the tree with its process instance node,
// the variables become the process scope.
func NewExecutionTree(processInstanceKey int64, variables map[string]any) *ExecutionTree {
	root := &ElementInstance{
		Key:   processInstanceKey,
		Kind:  KindProcessInstance,
		State: ActivityStateActive,
		scope: NewVariableScope(nil, variables),
	}
	return &ExecutionTree{
		root:  root,
		nodes: map[int64]*ElementInstance{processInstanceKey: root},
	}
}

func (t *ExecutionTree) Root() *ElementInstance {
	return t.root
}

// Node returns the live node with given key or ErrUnknownScope
func (t *ExecutionTree) Node(key int64) (*ElementInstance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[key]
	if !ok {
		return nil, fmt.Errorf("element instance %d: %w", key, ErrUnknownScope)
	}
	return n, nil
}

// CreateChild attaches a fresh node with a fresh child scope under the parent node
func (t *ExecutionTree) CreateChild(parentKey int64, key int64, kind ElementInstanceKind, element bpmn20.FlowNode) (*ElementInstance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent, ok := t.nodes[parentKey]
	if !ok {
		return nil, fmt.Errorf("parent element instance %d: %w", parentKey, ErrUnknownScope)
	}
	if _, exists := t.nodes[key]; exists {
		return nil, fmt.Errorf("element instance %d already exists in the tree", key)
	}
	child := &ElementInstance{
		Key:     key,
		Kind:    kind,
		Element: element,
		State:   ActivityStateActive,
		parent:  parent,
		scope:   NewVariableScope(parent.scope, nil),
	}
	if element != nil {
		child.ElementId = element.GetId()
	}
	parent.children = append(parent.children, child)
	t.nodes[key] = child
	return child, nil
}

// Remove removes the node together with its whole subtree and detaches their scopes.
// The process instance node can not be removed, use Clear instead.
func (t *ExecutionTree) Remove(key int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[key]
	if !ok {
		return fmt.Errorf("element instance %d: %w", key, ErrUnknownScope)
	}
	if n == t.root {
		return fmt.Errorf("process instance node %d can not be removed from its own tree", key)
	}
	n.parent.children = slices.DeleteFunc(n.parent.children, func(c *ElementInstance) bool {
		return c == n
	})
	t.removeSubtree(n)
	return nil
}

func (t *ExecutionTree) removeSubtree(n *ElementInstance) {
	for _, c := range n.children {
		t.removeSubtree(c)
	}
	n.children = nil
	n.scope.detach()
	delete(t.nodes, n.Key)
}

// Clear removes every node below the process instance node, used when the instance ends.
// The process scope stays readable.
func (t *ExecutionTree) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.root.children {
		t.removeSubtree(c)
	}
	t.root.children = nil
}

// AncestorsOf returns the path from the node up to the process instance node, node first.
func (t *ExecutionTree) AncestorsOf(key int64) ([]*ElementInstance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[key]
	if !ok {
		return nil, fmt.Errorf("element instance %d: %w", key, ErrUnknownScope)
	}
	res := make([]*ElementInstance, 0, 3)
	for ; n != nil; n = n.parent {
		res = append(res, n)
	}
	return res, nil
}

// Children returns a copy of the direct children in creation order
func (t *ExecutionTree) Children(key int64) ([]*ElementInstance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[key]
	if !ok {
		return nil, fmt.Errorf("element instance %d: %w", key, ErrUnknownScope)
	}
	return slices.Clone(n.children), nil
}

// Size returns the number of live nodes, the process instance node included
func (t *ExecutionTree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
