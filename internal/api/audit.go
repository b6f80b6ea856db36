/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/audit"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

// auditLogResponse is the JSON response for an audit log entry.
type auditLogResponse struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	StationID    string         `json:"station_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// handleAuditList returns a paginated list of the station's audit logs.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.auditSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_not_available")
		return
	}

	filters := parseAuditFilters(r)
	filters.StationID = a.station.StationID()

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit logs")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}

	response := make([]auditLogResponse, len(logs))
	for i, log := range logs {
		response[i] = toAuditLogResponse(log)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit_logs": response,
		"total":      total,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}

// parseAuditFilters extracts query filters from the request.
func parseAuditFilters(r *http.Request) audit.QueryFilters {
	filters := audit.QueryFilters{
		Limit:  100,
		Offset: 0,
	}

	if action := r.URL.Query().Get("action"); action != "" {
		filters.Action = models.AuditAction(action)
	}

	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filters.Since = t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 1000 {
			filters.Limit = n
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	return filters
}

// toAuditLogResponse converts an AuditLog model to a response struct.
func toAuditLogResponse(log models.AuditLog) auditLogResponse {
	return auditLogResponse{
		ID:           log.ID,
		Timestamp:    log.Timestamp,
		StationID:    log.StationID,
		Action:       string(log.Action),
		ResourceType: log.ResourceType,
		ResourceID:   log.ResourceID,
		Details:      log.Details,
	}
}
