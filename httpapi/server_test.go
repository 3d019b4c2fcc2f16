package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/repowatch/repowatch/core"
	"github.com/repowatch/repowatch/githubevents"
	"github.com/repowatch/repowatch/httpapi"
	"github.com/repowatch/repowatch/webhooks"
)

type fakeEventStore struct {
	events  []core.Event
	seen    map[string]bool
	listErr error
	statErr error
	pingErr error
}

func (s *fakeEventStore) Save(_ context.Context, event core.Event) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[event.RequestID] {
		return false, nil
	}
	s.seen[event.RequestID] = true
	s.events = append(s.events, event)
	return true, nil
}

func (s *fakeEventStore) ListRecent(_ context.Context, limit int) ([]core.Event, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit > len(s.events) {
		limit = len(s.events)
	}
	return append([]core.Event(nil), s.events[:limit]...), nil
}

func (s *fakeEventStore) Stats(_ context.Context) (core.EventStats, error) {
	if s.statErr != nil {
		return core.EventStats{}, s.statErr
	}
	stats := core.EventStats{ByAction: map[core.Action]int64{}}
	for _, event := range s.events {
		stats.ByAction[event.Action]++
		stats.Total++
	}
	return stats, nil
}

func (s *fakeEventStore) Ping(context.Context) error { return s.pingErr }

func newTestServer(t *testing.T, store *fakeEventStore, mutate func(*core.Config)) *httpapi.Server {
	t.Helper()

	cfg := core.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	parser := githubevents.NewParser(githubevents.WithNow(func() time.Time {
		return time.Date(2024, time.June, 3, 8, 15, 0, 0, time.UTC)
	}))
	processor := webhooks.NewProcessor(
		webhooks.SignatureVerifier{Secret: cfg.Webhook.Secret},
		parser,
		store,
	)

	server, err := httpapi.NewServer(cfg, processor, store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

var pushBody = []byte(`{
	"ref": "refs/heads/staging",
	"after": "a1b2c3d4",
	"pusher": {"name": "Travis"},
	"head_commit": {"timestamp": "2021-04-01T21:30:00Z"}
}`)

func postWebhook(handler http.Handler, eventType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(webhooks.HeaderEvent, eventType)
	req.Header.Set(webhooks.HeaderDelivery, "delivery-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestWebhookStoredThenDuplicate(t *testing.T) {
	store := &fakeEventStore{}
	handler := newTestServer(t, store, nil).Handler()

	rec := postWebhook(handler, "push", pushBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "stored" {
		t.Fatalf("status field = %v, want stored", payload["status"])
	}
	if payload["request_id"] != "a1b2c3d4" {
		t.Fatalf("request_id = %v", payload["request_id"])
	}
	if payload["action"] != "PUSH" {
		t.Fatalf("action = %v", payload["action"])
	}

	rec = postWebhook(handler, "push", pushBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["status"] != "duplicate" {
		t.Fatalf("replay status field = %v, want duplicate", payload["status"])
	}
}

func TestWebhookSignatureEnforcement(t *testing.T) {
	store := &fakeEventStore{}
	handler := newTestServer(t, store, func(cfg *core.Config) {
		cfg.Webhook.Secret = "s3cr3t"
	}).Handler()

	rec := postWebhook(handler, "push", pushBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsigned delivery status = %d, want 400", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["error"] == "" {
		t.Fatalf("expected error message, got %v", payload)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(pushBody))
	req.Header.Set(webhooks.HeaderEvent, "push")
	req.Header.Set(webhooks.HeaderSignature, webhooks.Sign("s3cr3t", pushBody))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed delivery status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookRejectsUnsupportedEventType(t *testing.T) {
	handler := newTestServer(t, &fakeEventStore{}, nil).Handler()

	rec := postWebhook(handler, "issues", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookPingAcknowledged(t *testing.T) {
	handler := newTestServer(t, &fakeEventStore{}, nil).Handler()

	rec := postWebhook(handler, "ping", []byte(`{"zen":"ok"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["status"] != "ignored" {
		t.Fatalf("status field = %v, want ignored", payload["status"])
	}
}

func TestWebhookRequiresPost(t *testing.T) {
	handler := newTestServer(t, &fakeEventStore{}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookBodyCap(t *testing.T) {
	handler := newTestServer(t, &fakeEventStore{}, func(cfg *core.Config) {
		cfg.Webhook.MaxBodyBytes = 16
	}).Handler()

	rec := postWebhook(handler, "push", pushBody)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestEventsFeed(t *testing.T) {
	store := &fakeEventStore{
		events: []core.Event{
			{
				RequestID:  "42",
				Author:     "sam",
				Action:     core.ActionPullRequest,
				FromBranch: "feature",
				ToBranch:   "main",
				Timestamp:  "1st April 2021 - 9:30 PM UTC",
			},
			{
				RequestID: "a1b2c3d4",
				Author:    "Travis",
				Action:    core.ActionPush,
				ToBranch:  "staging",
				Timestamp: "1st April 2021 - 9:30 PM UTC",
			},
		},
	}
	handler := newTestServer(t, store, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Success bool             `json:"success"`
		Events  []map[string]any `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success {
		t.Fatalf("expected success envelope")
	}
	if len(payload.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(payload.Events))
	}

	pr := payload.Events[0]
	if pr["display_text"] != "sam submitted a pull request from feature to main" {
		t.Errorf("pull request display_text = %v", pr["display_text"])
	}
	if pr["from_branch"] != "feature" {
		t.Errorf("from_branch = %v", pr["from_branch"])
	}

	push := payload.Events[1]
	if push["display_text"] != "Travis pushed to staging" {
		t.Errorf("push display_text = %v", push["display_text"])
	}
	if _, present := push["from_branch"]; present {
		t.Errorf("push entry should omit from_branch, got %v", push["from_branch"])
	}
}

func TestEventsFeedDegradesToEmpty(t *testing.T) {
	store := &fakeEventStore{listErr: errors.New("database connection lost")}
	handler := newTestServer(t, store, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 on degraded read", rec.Code)
	}

	var payload struct {
		Success bool             `json:"success"`
		Events  []map[string]any `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success || len(payload.Events) != 0 {
		t.Fatalf("expected empty success envelope, got %+v", payload)
	}
}

func TestEventsStats(t *testing.T) {
	store := &fakeEventStore{
		events: []core.Event{
			{RequestID: "a", Action: core.ActionPush},
			{RequestID: "b", Action: core.ActionPush},
			{RequestID: "c", Action: core.ActionMerge},
		},
	}
	handler := newTestServer(t, store, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/events/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Total    int64            `json:"total"`
		ByAction map[string]int64 `json:"by_action"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Total != 3 {
		t.Errorf("total = %d, want 3", payload.Total)
	}
	if payload.ByAction["PUSH"] != 2 || payload.ByAction["MERGE"] != 1 {
		t.Errorf("by_action = %v", payload.ByAction)
	}
}

func TestEventsStatsUnavailable(t *testing.T) {
	store := &fakeEventStore{statErr: errors.New("database connection lost")}
	handler := newTestServer(t, store, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/events/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, &fakeEventStore{}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	degraded := newTestServer(t, &fakeEventStore{pingErr: errors.New("no storage")}, nil).Handler()
	rec = httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(t, &fakeEventStore{}, nil).Handler()

	// Generate one instrumented request first.
	postWebhook(handler, "push", pushBody)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	scrape := rec.Body.String()
	if !strings.Contains(scrape, "http_requests_total") {
		t.Errorf("scrape missing http_requests_total")
	}
	if !strings.Contains(scrape, "webhook_deliveries_total") {
		t.Errorf("scrape missing webhook_deliveries_total")
	}
}
