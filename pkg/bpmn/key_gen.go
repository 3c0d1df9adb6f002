package bpmn

import (
	"sync"

	"github.com/pbinitiative/zentask/pkg/zenflake"
)

var (
	globalIdGenerator     *zenflake.Generator
	globalIdGeneratorOnce sync.Once
)

func (engine *Engine) generateKey() int64 {
	return engine.keyGenerator.NextKey()
}

// getGlobalSnowflakeIdGenerator the global ID generator shared by engines which were not given their own
func getGlobalSnowflakeIdGenerator() *zenflake.Generator {
	globalIdGeneratorOnce.Do(func() {
		globalIdGenerator = zenflake.NewEnvironmentGenerator()
	})
	return globalIdGenerator
}
