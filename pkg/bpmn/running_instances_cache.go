// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"sync"
)

// RunningInstance guards the execution tree of one process instance
type RunningInstance struct {
	mu      sync.Mutex
	waiters int
}

// RunningInstancesCache serialises all mutations of one process instance.
// Entries only live while somebody holds or waits for the lock.
type RunningInstancesCache struct {
	processInstances map[int64]*RunningInstance
	mu               sync.Mutex
}

func newRunningInstancesCache() *RunningInstancesCache {
	return &RunningInstancesCache{
		processInstances: map[int64]*RunningInstance{},
	}
}

func (c *RunningInstancesCache) lockInstance(processInstanceKey int64) {
	c.mu.Lock()
	ins, ok := c.processInstances[processInstanceKey]
	if !ok {
		ins = &RunningInstance{}
		c.processInstances[processInstanceKey] = ins
	}
	ins.waiters++
	c.mu.Unlock()

	ins.mu.Lock()
}

func (c *RunningInstancesCache) unlockInstance(processInstanceKey int64) {
	c.mu.Lock()
	ins, ok := c.processInstances[processInstanceKey]
	if !ok {
		c.mu.Unlock()
		return
	}
	ins.waiters--
	if ins.waiters == 0 {
		delete(c.processInstances, processInstanceKey)
	}
	c.mu.Unlock()

	ins.mu.Unlock()
}

func (c *RunningInstancesCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processInstances)
}
