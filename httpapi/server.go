package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/repowatch/repowatch/core"
	"github.com/repowatch/repowatch/webhooks"
)

// Server wires the webhook processor and event store into an http.Handler.
type Server struct {
	cfg       core.Config
	processor *webhooks.Processor
	store     core.EventStore
	logger    core.Logger
	metrics   *Metrics
}

type Option func(*Server)

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

func NewServer(cfg core.Config, processor *webhooks.Processor, store core.EventStore, options ...Option) (*Server, error) {
	if processor == nil {
		return nil, errors.New("httpapi: processor is required")
	}
	if store == nil {
		return nil, errors.New("httpapi: event store is required")
	}

	server := &Server{
		cfg:       cfg,
		processor: processor,
		store:     store,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(server)
	}
	server.logger = glog.Ensure(server.logger)
	if server.metrics == nil {
		server.metrics = NewMetrics()
	}

	return server, nil
}

// Metrics returns the recorder the server instruments with, so the caller can
// hand the same instance to the webhook processor.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.metrics.instrument("webhook", s.handleWebhook))
	mux.HandleFunc("/api/events", s.metrics.instrument("events", s.handleEvents))
	mux.HandleFunc("/api/events/stats", s.metrics.instrument("events-stats", s.handleStats))
	mux.HandleFunc("/healthz", s.metrics.instrument("healthz", s.handleHealthz))
	mux.Handle("/metrics", s.metrics.ScrapeHandler())
	return mux
}

type webhookResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	Action    string `json:"action,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Webhook.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	result := s.processor.Process(r.Context(), webhooks.InboundRequest{
		Headers: map[string]string{
			webhooks.HeaderEvent:     r.Header.Get(webhooks.HeaderEvent),
			webhooks.HeaderSignature: r.Header.Get(webhooks.HeaderSignature),
			webhooks.HeaderDelivery:  r.Header.Get(webhooks.HeaderDelivery),
		},
		Body: body,
	})

	if result.Status == webhooks.StatusRejected {
		s.writeError(w, result.HTTPStatus(), result.Reason)
		return
	}

	s.writeJSON(w, result.HTTPStatus(), webhookResponse{
		Status:    string(result.Status),
		RequestID: result.RequestID,
		Action:    result.Action.String(),
	})
}

type eventPayload struct {
	RequestID   string `json:"request_id"`
	Author      string `json:"author"`
	Action      string `json:"action"`
	FromBranch  string `json:"from_branch,omitempty"`
	ToBranch    string `json:"to_branch"`
	Timestamp   string `json:"timestamp"`
	DisplayText string `json:"display_text"`
}

type eventsResponse struct {
	Success bool           `json:"success"`
	Events  []eventPayload `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := s.cfg.Events.DefaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	events, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		// A degraded read side still answers with an empty feed. The
		// health probe surfaces the storage fault.
		s.logger.Error("list recent events failed", "error", err.Error())
		events = nil
	}

	payload := make([]eventPayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, eventPayload{
			RequestID:   event.RequestID,
			Author:      event.Author,
			Action:      event.Action.String(),
			FromBranch:  event.FromBranch,
			ToBranch:    event.ToBranch,
			Timestamp:   event.Timestamp,
			DisplayText: event.DisplayText(),
		})
	}

	s.writeJSON(w, http.StatusOK, eventsResponse{Success: true, Events: payload})
}

type statsResponse struct {
	Total    int64            `json:"total"`
	ByAction map[string]int64 `json:"by_action"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		mapped := core.IngestErrorMapper(err)
		s.logger.Error("event stats query failed",
			"error", err.Error(), "code", mapped.TextCode)
		s.writeError(w, mapped.Code, "event stats unavailable")
		return
	}

	byAction := make(map[string]int64, len(stats.ByAction))
	for action, count := range stats.ByAction {
		byAction[action.String()] = count
	}

	s.writeJSON(w, http.StatusOK, statsResponse{Total: stats.Total, ByAction: byAction})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("storage health check failed", "error", err.Error())
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
