package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/internal/log"
	"github.com/pbinitiative/zentask/internal/otel"
	"github.com/pbinitiative/zentask/internal/profile"
	"github.com/pbinitiative/zentask/internal/rest"
	"github.com/pbinitiative/zentask/pkg/bpmn"
	"github.com/pbinitiative/zentask/pkg/bpmn/exporter/logexporter"
	"github.com/pbinitiative/zentask/pkg/zenflake"
)

func main() {
	profile.InitProfile()

	appContext, ctxCancel := context.WithCancel(context.Background())

	conf := config.InitConfig()
	log.Init(conf.Log.Level)

	openTelemetry, err := otel.SetupOtel(conf.Tracing)
	if err != nil {
		log.Error("Failed to set up OTEL: %s", err)
		os.Exit(1)
	}

	cacheTTL, err := conf.Engine.CacheTTL()
	if err != nil {
		log.Error("Invalid engine configuration: %s", err)
		os.Exit(1)
	}
	engine := bpmn.NewEngine(
		bpmn.EngineWithName(conf.Name),
		bpmn.EngineWithLogger(log.Logger()),
		bpmn.EngineWithExporter(logexporter.New(log.Logger().Named("events"))),
		bpmn.EngineWithKeyGenerator(zenflake.NewEnvironmentGenerator()),
		bpmn.EngineWithDefinitionCache(conf.Engine.DefinitionCacheSize, cacheTTL),
		bpmn.EngineWithScriptPool(conf.Engine.ScriptPoolMax, conf.Engine.ScriptPoolMin),
	)
	engine.Start()

	// Start the public API
	svr := rest.NewServer(&engine, conf)
	if _, err := svr.Start(); err != nil {
		log.Error("Failed to start REST server: %s", err)
		engine.Stop()
		os.Exit(1)
	}

	appStop := make(chan os.Signal, 2)
	handleSigterm(appStop, appContext)

	ctxCancel()
	// cleanup
	svr.Stop(context.Background())
	engine.Stop()
	openTelemetry.Stop(context.Background())
}

func handleSigterm(appStop chan os.Signal, ctx context.Context) {
	signal.Notify(appStop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-appStop
	log.Infof(ctx, "Received %s. Shutting down", sig.String())
}
