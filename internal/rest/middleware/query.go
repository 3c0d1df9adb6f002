// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// StripEmptyQueryParams removes blank query parameter values, a parameter left without values is dropped.
// Task filters treat a missing parameter as "no filter", so ?processInstanceKey= must not reach the handler.
func StripEmptyQueryParams() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			filtered := make(url.Values, len(q))
			for k, vs := range q {
				var kept []string
				for _, v := range vs {
					if strings.TrimSpace(v) != "" {
						kept = append(kept, v)
					}
				}
				if len(kept) > 0 {
					filtered[k] = kept
				}
			}
			r.URL.RawQuery = filtered.Encode()
			next.ServeHTTP(w, r)
		})
	}
}
