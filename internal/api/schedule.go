/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

type scheduleEntryResponse struct {
	schedule.LiveEntry
	EffectiveStart time.Time  `json:"effective_start"`
	EffectiveEnd   *time.Time `json:"effective_end,omitempty"`
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	entries := a.station.Schedule()
	out := make([]scheduleEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := scheduleEntryResponse{LiveEntry: e, EffectiveStart: e.EffectiveStart()}
		if end, ok := e.EffectiveEnd(); ok {
			resp.EffectiveEnd = &end
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (a *API) handleScheduleICal(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("%s-live.ics", slugify(a.station.StationID()))
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := schedule.WriteICal(w, a.station.Name(), a.station.Schedule(), time.Now()); err != nil {
		a.logger.Warn().Err(err).Msg("write calendar")
	}
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "station"
	}
	return b.String()
}
