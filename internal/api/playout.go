/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/ordering"
	"github.com/friendsincode/grimnir_playout/internal/playout"
)

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

// historyResponse is the JSON form of a play history row.
type historyResponse struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	SourceID  string     `json:"source_id"`
	Title     string     `json:"title,omitempty"`
	Host      string     `json:"host,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	OnAir     bool       `json:"on_air"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.station.Status()
	if err != nil {
		a.commandError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": ordering.Kinds()})
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	d, err := a.station.Skip(r.Context())
	if err != nil {
		a.commandError(w, "skip", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	a.writeDecision(w, "reload_catalog", func() (playout.Decision, error) {
		return a.station.ReloadCatalog(r.Context())
	})
}

func (a *API) handleReloadSchedule(w http.ResponseWriter, r *http.Request) {
	a.writeDecision(w, "reload_schedule", func() (playout.Decision, error) {
		return a.station.ReloadSchedule(r.Context())
	})
}

func (a *API) handleStopLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "live_entry_required")
		return
	}
	a.writeDecision(w, "stop_live", func() (playout.Decision, error) {
		return a.station.StopLive(r.Context(), id)
	})
}

func (a *API) handleSetStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	kind, err := ordering.ParseKind(req.Strategy)
	if err != nil {
		a.commandError(w, "set_strategy", err)
		return
	}
	if err := a.station.SetStrategy(r.Context(), kind); err != nil {
		a.commandError(w, "set_strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"strategy": string(kind)})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = min(n, 500)
	}

	rows, err := a.station.History(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	out := make([]historyResponse, len(rows))
	for i, row := range rows {
		out[i] = toHistoryResponse(row)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"station_id": a.station.StationID(),
		"history":    out,
	})
}

// writeDecision runs a command and writes the resulting decision.
func (a *API) writeDecision(w http.ResponseWriter, op string, fn func() (playout.Decision, error)) {
	d, err := fn()
	if err != nil {
		a.commandError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func toHistoryResponse(row models.PlayHistory) historyResponse {
	return historyResponse{
		ID:        row.ID,
		Kind:      row.Kind,
		SourceID:  row.SourceID,
		Title:     row.Title,
		Host:      row.Host,
		Reason:    row.Reason,
		Outcome:   row.Outcome,
		StartedAt: row.StartedAt,
		EndedAt:   row.EndedAt,
		OnAir:     row.OnAir(),
	}
}
