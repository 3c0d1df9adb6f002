// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/senseyeio/duration"
)

type Config struct {
	HttpServer HttpServer `yaml:"httpServer" json:"httpServer"` // configuration of the public REST server
	Name       string     `yaml:"name" json:"name" env:"APP_NAME" env-default:"zentask"` // used for OTEL as an application identifier
	Tracing    Tracing    `yaml:"tracing" json:"tracing"`
	Engine     Engine     `yaml:"engine" json:"engine"`
	Log        Log        `yaml:"log" json:"log"`
}

type HttpServer struct {
	Context string `yaml:"context" json:"context" env:"REST_API_CONTEXT" env-default:"/"`
	Addr    string `yaml:"addr" json:"addr" env:"REST_API_ADDR" env-default:":8080"`
}

type Tracing struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Name     string `yaml:"name" json:"name" env:"OTEL_NAME" env-default:"zentask"`
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"OTEL_ENDPOINT" env-default:"localhost:4318"`
	// TransferHeaders are copied from incoming requests into span attributes and the request context
	TransferHeaders []string `yaml:"transferHeaders" json:"transferHeaders" env:"OTEL_TRANSFER_HEADERS" env-separator:","`
}

type Engine struct {
	DefinitionCacheSize int `yaml:"definitionCacheSize" json:"definitionCacheSize" env:"ENGINE_DEFINITION_CACHE_SIZE" env-default:"100"`
	// DefinitionCacheTTL is an ISO-8601 duration, e.g. PT10M
	DefinitionCacheTTL string `yaml:"definitionCacheTTL" json:"definitionCacheTTL" env:"ENGINE_DEFINITION_CACHE_TTL" env-default:"PT10M"`
	ScriptPoolMax      int    `yaml:"scriptPoolMax" json:"scriptPoolMax" env:"ENGINE_SCRIPT_POOL_MAX" env-default:"8"`
	ScriptPoolMin      int    `yaml:"scriptPoolMin" json:"scriptPoolMin" env:"ENGINE_SCRIPT_POOL_MIN" env-default:"1"`
}

type Log struct {
	// Level is one of trace, debug, info, warn, error. Empty keeps the profile default.
	Level string `yaml:"level" json:"level" env:"LOG_LEVEL"`
}

// CacheTTL converts the ISO-8601 DefinitionCacheTTL into a time.Duration
func (e Engine) CacheTTL() (time.Duration, error) {
	d, err := duration.ParseISO8601(e.DefinitionCacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid engine definitionCacheTTL %q: %w", e.DefinitionCacheTTL, err)
	}
	now := time.Now()
	ttl := d.Shift(now).Sub(now)
	if ttl <= 0 {
		return 0, fmt.Errorf("engine definitionCacheTTL %q must be positive", e.DefinitionCacheTTL)
	}
	return ttl, nil
}

func (c Config) validate() error {
	var err error
	if c.Engine.ScriptPoolMin < 0 || c.Engine.ScriptPoolMax < 1 || c.Engine.ScriptPoolMin > c.Engine.ScriptPoolMax {
		err = errors.Join(err, fmt.Errorf("invalid engine script pool bounds min=%d max=%d", c.Engine.ScriptPoolMin, c.Engine.ScriptPoolMax))
	}
	if c.Engine.DefinitionCacheSize < 1 {
		err = errors.Join(err, fmt.Errorf("engine definitionCacheSize must be positive, got %d", c.Engine.DefinitionCacheSize))
	}
	if _, ttlErr := c.Engine.CacheTTL(); ttlErr != nil {
		err = errors.Join(err, ttlErr)
	}
	return err
}

// ReadConfig reads the YAML file when it exists, otherwise only the ENV. Defaults come from env-default tags.
func ReadConfig(fileName string) (Config, error) {
	c := Config{}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		return c, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

// InitConfig reads the file named by CONFIG_FILE, or conf.yaml in the working directory, and panics on failure
func InitConfig() Config {
	var fileName string
	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		fileName = fmt.Sprintf("%s/conf.yaml", wd)
	} else {
		fileName = confFile
	}
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	}
	c, err := ReadConfig(fileName)
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	return c
}
