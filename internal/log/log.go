// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package log is the application logger used by cmd and the HTTP layer.
// Library packages log through their own named hclog loggers.
package log

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/internal/appcontext"
	"github.com/pbinitiative/zentask/internal/profile"
)

var logger hclog.Logger = hclog.Default()

// Init configures the default hclog logger, PROD logs JSON, other profiles log human readable lines.
// An empty level keeps the profile default.
func Init(level string) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Debug
		if profile.IsProd() {
			lvl = hclog.Info
		}
	}
	logger = hclog.New(&hclog.LoggerOptions{
		Name:       "zentask",
		Level:      lvl,
		Output:     os.Stderr,
		JSONFormat: profile.IsProd(),
	})
	hclog.SetDefault(logger)
}

// Logger returns the application logger, use it to hand a named logger to library code
func Logger() hclog.Logger {
	return logger
}

func Info(format string, args ...any) {
	logger.Info(fmt.Sprintf(format, args...))
}

// Infof logs with the request id found in the context
func Infof(ctx context.Context, format string, args ...any) {
	logger.Info(fmt.Sprintf(format, args...), contextArgs(ctx)...)
}

func Debug(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func Error(format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...))
}

// Errorf logs with the request id found in the context
func Errorf(ctx context.Context, format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...), contextArgs(ctx)...)
}

func contextArgs(ctx context.Context) []any {
	if id, ok := appcontext.RequestIdFromContext(ctx); ok {
		return []any{"requestId", id}
	}
	return nil
}
