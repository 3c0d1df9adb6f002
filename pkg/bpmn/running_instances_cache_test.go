// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunningInstancesCacheSerializesOneInstance(t *testing.T) {
	cache := newRunningInstancesCache()
	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.lockInstance(1)
			defer cache.unlockInstance(1)
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, cache.size(), "released locks are forgotten")
}

func TestRunningInstancesCacheKeepsInstancesIndependent(t *testing.T) {
	cache := newRunningInstancesCache()
	cache.lockInstance(1)

	done := make(chan struct{})
	go func() {
		cache.lockInstance(2)
		cache.unlockInstance(2)
		close(done)
	}()
	<-done

	assert.Equal(t, 1, cache.size())
	cache.unlockInstance(1)
	assert.Zero(t, cache.size())
}
