// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package zenflake

import (
	"fmt"
	"hash/adler32"
	"os"

	"github.com/bwmarrin/snowflake"
)

var (
	// NodeBits holds the number of bits to use for Node
	// Remember, you have a total 22 bits to share between Node/Step
	NodeBits uint8 = 10

	// StepBits holds the number of bits to use for Step
	// Remember, you have a total 22 bits to share between Node/Step
	StepBits uint8 = 12

	// internal values of bwmarrin/snowflake
	nodeMax   int64 = -1 ^ (-1 << NodeBits)
	nodeMask        = nodeMax << StepBits
	timeShift       = NodeBits + StepBits
	nodeShift       = StepBits
)

// Generator hands out unique int64 keys for definitions, instances, element instances and tasks
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a generator for given node id, ids outside of 0..1023 are rejected
func NewGenerator(nodeId int64) (*Generator, error) {
	snowflake.NodeBits = NodeBits
	snowflake.StepBits = StepBits
	node, err := snowflake.NewNode(nodeId)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeId, err)
	}
	return &Generator{node: node}, nil
}

// NewEnvironmentGenerator derives the node id from the process environment.
// Two generators created within a few microseconds on the same host will share a seed.
func NewEnvironmentGenerator() *Generator {
	hash32 := adler32.New()
	for _, e := range os.Environ() {
		_, _ = hash32.Write([]byte(e))
	}
	g, err := NewGenerator(int64(hash32.Sum32()) & nodeMax)
	if err != nil {
		panic("can't initialize snowflake ID generator. Message: " + err.Error())
	}
	return g
}

func (g *Generator) NextKey() int64 {
	return g.node.Generate().Int64()
}

func GetNodeMask() int64 {
	return nodeMask
}

// GetNodeId returns the node id encoded in the key
func GetNodeId(key int64) int64 {
	return (key & nodeMask) >> int64(nodeShift)
}

// GetTimestamp returns the milliseconds since snowflake epoch encoded in the key
func GetTimestamp(key int64) int64 {
	return key >> int64(timeShift)
}
