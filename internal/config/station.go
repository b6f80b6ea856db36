/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_playout/internal/ordering"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

// Station is the per-station playout definition read from YAML.
type Station struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Strategy        string        `yaml:"strategy"`
	RequireRecorded bool          `yaml:"require_recorded"`
	Purge           bool          `yaml:"purge"`
	PrimeNext       *bool         `yaml:"prime_next"`
	Prefetch        time.Duration `yaml:"prefetch_lookahead"`
	SkipCooldown    time.Duration `yaml:"skip_cooldown"`
	ScheduleHorizon time.Duration `yaml:"schedule_horizon"`
	ScheduleRefresh time.Duration `yaml:"schedule_refresh"`
	Library         Library       `yaml:"library"`
	Live            []LiveShow    `yaml:"live"`
	// LiveCalendar is an iCalendar file whose events are merged into Live.
	LiveCalendar string    `yaml:"live_calendar"`
	Webhooks     []Webhook `yaml:"webhooks"`
}

// Webhook posts engine events to an external URL.
type Webhook struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"` // signs bodies with HMAC-SHA256 when set
	Events []string `yaml:"events"` // empty means every event
}

// Library names where the track catalog comes from. Exactly one of
// Manifest and S3 is set.
type Library struct {
	Manifest string     `yaml:"manifest"`
	S3       *S3Library `yaml:"s3"`
}

// S3Library lists audio objects under a bucket prefix.
type S3Library struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// LiveShow is a fixed live window, or a recurring one when RRule is set.
type LiveShow struct {
	ID          string        `yaml:"id"`
	Source      string        `yaml:"source"`
	Host        string        `yaml:"host"`
	Title       string        `yaml:"title"`
	Start       string        `yaml:"start"` // RFC 3339
	End         string        `yaml:"end"`   // RFC 3339, empty for open-ended
	Delay       time.Duration `yaml:"delay"`
	MaxDuration time.Duration `yaml:"max_duration"`
	RRule       string        `yaml:"rrule"`
	Duration    time.Duration `yaml:"duration"`
}

// LoadStation reads and validates a station file. A relative manifest path
// is resolved against the file's directory.
func LoadStation(path string) (*Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station file: %w", err)
	}
	st, err := ParseStation(data)
	if err != nil {
		return nil, err
	}
	if m := st.Library.Manifest; m != "" && !filepath.IsAbs(m) {
		st.Library.Manifest = filepath.Join(filepath.Dir(path), m)
	}
	if c := st.LiveCalendar; c != "" && !filepath.IsAbs(c) {
		st.LiveCalendar = filepath.Join(filepath.Dir(path), c)
	}
	return st, nil
}

// ParseStation decodes a station definition and fills defaults.
func ParseStation(data []byte) (*Station, error) {
	st := &Station{}
	if err := yaml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("parse station file: %w", err)
	}
	st.applyDefaults()
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Station) applyDefaults() {
	if s.Strategy == "" {
		s.Strategy = string(ordering.KindChronologic)
	}
	if s.Prefetch == 0 {
		s.Prefetch = 10 * time.Second
	}
	if s.SkipCooldown == 0 {
		s.SkipCooldown = 2 * time.Second
	}
	if s.ScheduleHorizon == 0 {
		s.ScheduleHorizon = 7 * 24 * time.Hour
	}
	if s.ScheduleRefresh == 0 {
		s.ScheduleRefresh = time.Hour
	}
}

// Validate checks the station definition without touching the library.
func (s *Station) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("station id is required"))
	}
	if _, err := ordering.ParseKind(s.Strategy); err != nil {
		errs = append(errs, err)
	}
	if s.Prefetch < 0 || s.SkipCooldown < 0 {
		errs = append(errs, errors.New("prefetch_lookahead and skip_cooldown must not be negative"))
	}
	if s.ScheduleHorizon <= 0 || s.ScheduleRefresh <= 0 {
		errs = append(errs, errors.New("schedule_horizon and schedule_refresh must be positive"))
	}
	if (s.Library.Manifest == "") == (s.Library.S3 == nil) {
		errs = append(errs, errors.New("library needs exactly one of manifest or s3"))
	}
	if s.Library.S3 != nil && s.Library.S3.Bucket == "" {
		errs = append(errs, errors.New("library s3 bucket is required"))
	}
	for i, show := range s.Live {
		if show.ID == "" {
			errs = append(errs, fmt.Errorf("live[%d]: id is required", i))
		}
		if show.RRule != "" && show.Duration <= 0 {
			errs = append(errs, fmt.Errorf("live %s: recurring shows need a duration", show.ID))
		}
	}
	for i, hook := range s.Webhooks {
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			errs = append(errs, fmt.Errorf("webhooks[%d]: url must be http or https", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid station file: %w", errors.Join(errs...))
	}
	return nil
}

// StrategyKind returns the parsed ordering strategy.
func (s *Station) StrategyKind() ordering.Kind {
	kind, err := ordering.ParseKind(s.Strategy)
	if err != nil {
		return ordering.KindChronologic
	}
	return kind
}

// ShouldPrime reports whether the engine stages the second item at start.
func (s *Station) ShouldPrime() bool {
	return s.PrimeNext == nil || *s.PrimeNext
}

// LiveSchedule splits live shows into fixed entries and recurrences.
func (s *Station) LiveSchedule() ([]schedule.LiveEntry, []schedule.Recurrence, error) {
	var (
		fixed       []schedule.LiveEntry
		recurrences []schedule.Recurrence
	)
	for _, show := range s.Live {
		start, err := parseTime(show.Start)
		if err != nil {
			return nil, nil, fmt.Errorf("live %s start: %w", show.ID, err)
		}
		if show.RRule != "" {
			recurrences = append(recurrences, schedule.Recurrence{
				ID:          show.ID,
				Source:      show.Source,
				Host:        show.Host,
				Title:       show.Title,
				RRule:       show.RRule,
				DTStart:     start,
				Duration:    show.Duration,
				Delay:       show.Delay,
				MaxDuration: show.MaxDuration,
			})
			continue
		}
		var end time.Time
		if show.End != "" {
			if end, err = parseTime(show.End); err != nil {
				return nil, nil, fmt.Errorf("live %s end: %w", show.ID, err)
			}
		}
		fixed = append(fixed, schedule.LiveEntry{
			ID:          show.ID,
			Source:      show.Source,
			Host:        show.Host,
			Title:       show.Title,
			Start:       start,
			End:         end,
			Delay:       show.Delay,
			MaxDuration: show.MaxDuration,
		})
	}

	if s.LiveCalendar != "" {
		f, err := os.Open(s.LiveCalendar)
		if err != nil {
			return nil, nil, fmt.Errorf("open live calendar: %w", err)
		}
		defer f.Close()
		calFixed, calRecurring, err := schedule.ReadICal(f)
		if err != nil {
			return nil, nil, fmt.Errorf("live calendar %s: %w", s.LiveCalendar, err)
		}
		fixed = append(fixed, calFixed...)
		recurrences = append(recurrences, calRecurring...)
	}
	return fixed, recurrences, nil
}

// Entries materializes the live schedule over the station horizon.
func (s *Station) Entries(now time.Time) ([]schedule.LiveEntry, error) {
	fixed, recurrences, err := s.LiveSchedule()
	if err != nil {
		return nil, err
	}
	return schedule.Materialize(fixed, recurrences, now, s.ScheduleHorizon)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	return time.Parse(time.RFC3339, v)
}
