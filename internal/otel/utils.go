// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

import (
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// request span attributes, the byte counters share their keys with otelhttp instrumented handlers
const (
	ReadBytesKey  = otelhttp.ReadBytesKey             // if anything was read from the request body, the total number of bytes read
	WroteBytesKey = otelhttp.WroteBytesKey            // if anything was written to the response writer, the total number of bytes written
	ReadErrorKey  = attribute.Key("http.read_error")  // an error other than io.EOF while reading the request body
	WriteErrorKey = attribute.Key("http.write_error") // an error other than io.EOF while writing the response

	RequestIdKey = attribute.Key("zentask.request_id")
)

// used by middleware to create context key for configured transfer headers
type TransferHeaderKey string
