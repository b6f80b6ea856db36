/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/logbuffer"
)

// handleSystemLogs returns recent log entries from the in-memory buffer.
func (a *API) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_not_available")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		StationID:  r.URL.Query().Get("station_id"),
		Search:     r.URL.Query().Get("search"),
		Descending: true, // newest first
	}

	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	} else {
		params.Limit = 500
	}

	if order := r.URL.Query().Get("order"); order == "asc" {
		params.Descending = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  a.logBuffer.Query(params),
		"stats": a.logBuffer.Stats(),
	})
}
