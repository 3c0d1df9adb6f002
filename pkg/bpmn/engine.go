// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pbinitiative/zentask/pkg/bpmn/exporter"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zentask/pkg/otel"
	"github.com/pbinitiative/zentask/pkg/script"
	"github.com/pbinitiative/zentask/pkg/script/js"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/pbinitiative/zentask/pkg/storage/inmemory"
	"github.com/pbinitiative/zentask/pkg/zenflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultDefinitionCacheSize = 100
	DefaultDefinitionCacheTTL  = 10 * time.Minute
	DefaultScriptPoolMax       = 8
	DefaultScriptPoolMin       = 1
)

type Engine struct {
	name             string
	exporters        []exporter.EventExporter
	keyGenerator     *zenflake.Generator
	persistence      storage.Storage
	runningInstances *RunningInstancesCache
	definitionCache  *expirable.LRU[string, runtime.ProcessDefinition]
	definitionLock   *sync.Mutex
	cacheSize        int
	cacheTTL         time.Duration
	scriptPoolMax    int
	scriptPoolMin    int
	jsRuntime        script.ExpressionRuntime
	logger           hclog.Logger
	tracer           trace.Tracer
	metrics          *otelPkg.EngineMetrics
	lifecycle        *engineLifecycle
}

type engineLifecycle struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

type EngineOption = func(*Engine)

// NewEngine creates a new instance of the BPMN Engine;
// without EngineWithStorage the engine keeps its state in memory.
func NewEngine(options ...EngineOption) Engine {
	keyGenerator := getGlobalSnowflakeIdGenerator()
	engine := Engine{
		name:             fmt.Sprintf("Bpmn-Engine-%d", keyGenerator.NextKey()),
		exporters:        []exporter.EventExporter{},
		keyGenerator:     keyGenerator,
		runningInstances: newRunningInstancesCache(),
		cacheSize:        DefaultDefinitionCacheSize,
		cacheTTL:         DefaultDefinitionCacheTTL,
		scriptPoolMax:    DefaultScriptPoolMax,
		scriptPoolMin:    DefaultScriptPoolMin,
		logger:           hclog.Default().Named("bpmn-engine"),
		tracer:           otel.GetTracerProvider().Tracer("bpmn-engine"),
		definitionLock:   &sync.Mutex{},
		lifecycle:        &engineLifecycle{},
	}

	for _, option := range options {
		option(&engine)
	}

	if engine.persistence == nil {
		engine.persistence = inmemory.NewStorage()
	}
	engine.definitionCache = expirable.NewLRU[string, runtime.ProcessDefinition](engine.cacheSize, nil, engine.cacheTTL)

	metrics, err := otelPkg.NewMetrics(otel.GetMeterProvider().Meter("bpmn-engine"))
	if err != nil {
		engine.logger.Error("failed to create engine metrics", "err", err)
	}
	engine.metrics = metrics

	return engine
}

func EngineWithExporter(exporter exporter.EventExporter) EngineOption {
	return func(engine *Engine) { engine.AddEventExporter(exporter) }
}

func EngineWithStorage(persistence storage.Storage) EngineOption {
	return func(engine *Engine) {
		engine.persistence = persistence
	}
}

func EngineWithName(name string) EngineOption {
	return func(engine *Engine) {
		engine.name = name
	}
}

func EngineWithLogger(logger hclog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger.Named("bpmn-engine")
	}
}

// EngineWithKeyGenerator replaces the process wide key generator, useful when several nodes share a storage
func EngineWithKeyGenerator(generator *zenflake.Generator) EngineOption {
	return func(engine *Engine) {
		engine.keyGenerator = generator
	}
}

// EngineWithDefinitionCache sizes the cache used by FindLatestProcessDefinitionById
func EngineWithDefinitionCache(size int, ttl time.Duration) EngineOption {
	return func(engine *Engine) {
		engine.cacheSize = size
		engine.cacheTTL = ttl
	}
}

func EngineWithScriptPool(maxVmPoolSize int, minVmPoolSize int) EngineOption {
	return func(engine *Engine) {
		engine.scriptPoolMax = maxVmPoolSize
		engine.scriptPoolMin = minVmPoolSize
	}
}

// Start prepares the expression runtime, the engine refuses to run process instances before Start
func (engine *Engine) Start() {
	engine.lifecycle.mu.Lock()
	defer engine.lifecycle.mu.Unlock()
	if engine.lifecycle.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	engine.lifecycle.cancel = cancel
	engine.jsRuntime = js.NewJsRuntime(ctx, engine.scriptPoolMax, engine.scriptPoolMin)
	engine.lifecycle.running = true
	engine.logger.Info(fmt.Sprintf("engine %s started", engine.name))
}

// Stop releases the expression runtime and clears all process instances and tasks.
// Deployed definitions survive, the engine can be started again.
func (engine *Engine) Stop() {
	engine.lifecycle.mu.Lock()
	defer engine.lifecycle.mu.Unlock()
	if !engine.lifecycle.running {
		return
	}
	engine.lifecycle.cancel()
	engine.lifecycle.running = false
	if err := engine.persistence.Clear(context.Background()); err != nil {
		engine.logger.Error("failed to clear engine storage", "err", err)
	}
	engine.definitionCache.Purge()
	engine.logger.Info(fmt.Sprintf("engine %s stopped", engine.name))
}

func (engine *Engine) IsRunning() bool {
	engine.lifecycle.mu.Lock()
	defer engine.lifecycle.mu.Unlock()
	return engine.lifecycle.running
}

func (engine *Engine) checkRunning() error {
	if !engine.IsRunning() {
		return newEngineErrorf("engine %s is not running", engine.name)
	}
	return nil
}

// Name returns the name of the engine, only useful in case you control multiple ones
func (engine *Engine) Name() string {
	return engine.name
}

// GetPersistence returns the storage the engine reads and writes
func (engine *Engine) GetPersistence() storage.Storage {
	return engine.persistence
}
