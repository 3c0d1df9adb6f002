// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/internal/appcontext"
)

const RequestIdHeader = "X-Request-Id"

// RequestId keeps the caller's X-Request-Id or generates one, stores it in the request context
// and echoes it in the response.
func RequestId() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIdHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIdHeader, id)
			next.ServeHTTP(w, r.WithContext(appcontext.WithRequestId(r.Context(), id)))
		})
	}
}
