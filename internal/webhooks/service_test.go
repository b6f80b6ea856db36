/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/config"
	"github.com/friendsincode/grimnir_playout/internal/events"
)

type received struct {
	event     string
	signature string
	body      []byte
}

func TestServiceDeliversSignedEvents(t *testing.T) {
	got := make(chan received, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{event: r.Header.Get("X-Grimnir-Event"), signature: r.Header.Get("X-Grimnir-Signature"), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	bus := events.NewBus()
	svc, err := NewService("main", []config.Webhook{
		{ID: "now-playing", URL: srv.URL, Secret: "s3cret", Events: []string{string(events.EventNowPlaying)}},
	}, bus, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)

	bus.Publish(events.EventSkip, events.Payload{"item_id": "ignored"})
	bus.Publish(events.EventNowPlaying, events.Payload{"item_id": "item-1", "title": "Intro"})

	select {
	case r := <-got:
		if r.event != string(events.EventNowPlaying) {
			t.Fatalf("unexpected event %s", r.event)
		}
		if r.signature != Sign(r.body, "s3cret") {
			t.Fatalf("signature mismatch: %s", r.signature)
		}
		var p Payload
		if err := json.Unmarshal(r.body, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.StationID != "main" || p.Data["item_id"] != "item-1" {
			t.Fatalf("unexpected payload %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
	}

	select {
	case r := <-got:
		t.Fatalf("unsubscribed event delivered: %s", r.event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewServiceRejectsUnknownEvents(t *testing.T) {
	_, err := NewService("main", []config.Webhook{{URL: "http://example.com", Events: []string{"show_start"}}}, events.NewBus(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestSign(t *testing.T) {
	got := Sign([]byte("{}"), "key")
	if !strings.HasPrefix(got, "sha256=") || len(got) != len("sha256=")+64 {
		t.Fatalf("unexpected signature format %q", got)
	}
	if Sign([]byte("a"), "k") == Sign([]byte("b"), "k") {
		t.Fatal("different bodies must sign differently")
	}
}
