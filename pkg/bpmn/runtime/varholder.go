// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"errors"
	"maps"
	"sync"
)

// ErrUnknownScope is returned when a scope is accessed after its element instance was removed
var ErrUnknownScope = errors.New("variable scope does not belong to a live element instance")

// VariableScope holds the variables of exactly one element instance.
// Reads fall through to the parent chain, writes stay local unless SetGlobalVariable is used.
// The parent is a back reference only, scopes are owned by the ExecutionTree.
type VariableScope struct {
	mu        sync.RWMutex
	parent    *VariableScope
	variables map[string]any
	detached  bool
}

// NewVariableScope creates a new scope below parent.
// The given variables are copied, nil is allowed.
func NewVariableScope(parent *VariableScope, variables map[string]any) *VariableScope {
	local := make(map[string]any, len(variables))
	maps.Copy(local, variables)
	return &VariableScope{
		parent:    parent,
		variables: local,
	}
}

func (vs *VariableScope) Parent() *VariableScope {
	return vs.parent
}

func (vs *VariableScope) Root() *VariableScope {
	s := vs
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// Lookup resolves name in this scope and then in the ancestors, nearest binding wins.
func (vs *VariableScope) Lookup(name string) (any, bool, error) {
	for s := vs; s != nil; s = s.parent {
		s.mu.RLock()
		if s.detached {
			s.mu.RUnlock()
			return nil, false, ErrUnknownScope
		}
		v, ok := s.variables[name]
		s.mu.RUnlock()
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// LookupLocal resolves name in this scope only.
func (vs *VariableScope) LookupLocal(name string) (any, bool, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	if vs.detached {
		return nil, false, ErrUnknownScope
	}
	v, ok := vs.variables[name]
	return v, ok, nil
}

// Put writes name into this scope, ancestor bindings are shadowed, never modified.
func (vs *VariableScope) Put(name string, value any) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.detached {
		return ErrUnknownScope
	}
	vs.variables[name] = value
	return nil
}

// PutGlobal updates the nearest scope (this one included) which already defines name,
// when there is none the value is written into the root scope.
func (vs *VariableScope) PutGlobal(name string, value any) error {
	for s := vs; s != nil; s = s.parent {
		s.mu.Lock()
		if s.detached {
			s.mu.Unlock()
			return ErrUnknownScope
		}
		_, defined := s.variables[name]
		if defined || s.parent == nil {
			s.variables[name] = value
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}
	return nil
}

// GetVariable returns the value visible from this scope or nil
func (vs *VariableScope) GetVariable(name string) any {
	v, _, _ := vs.Lookup(name)
	return v
}

// GetLocalVariable returns the value of this scope only or nil
func (vs *VariableScope) GetLocalVariable(name string) any {
	v, _, _ := vs.LookupLocal(name)
	return v
}

// SetVariable is Put without the error, writes into a removed scope are dropped
func (vs *VariableScope) SetVariable(name string, value any) {
	_ = vs.Put(name, value)
}

// SetGlobalVariable is PutGlobal without the error
func (vs *VariableScope) SetGlobalVariable(name string, value any) {
	_ = vs.PutGlobal(name, value)
}

func (vs *VariableScope) SetVariables(variables map[string]any) {
	for k, v := range variables {
		vs.SetVariable(k, v)
	}
}

// LocalVariables returns a copy of the variables owned by this scope
func (vs *VariableScope) LocalVariables() map[string]any {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	res := make(map[string]any, len(vs.variables))
	if vs.detached {
		return res
	}
	maps.Copy(res, vs.variables)
	return res
}

// Variables returns every variable visible from this scope, nearer scopes shadow farther ones.
// The result is a copy and is meant to be used as an expression context.
func (vs *VariableScope) Variables() map[string]any {
	chain := make([]*VariableScope, 0, 4)
	for s := vs; s != nil; s = s.parent {
		chain = append(chain, s)
	}
	res := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(res, chain[i].LocalVariables())
	}
	return res
}

func (vs *VariableScope) detach() {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.detached = true
	vs.variables = map[string]any{}
}
