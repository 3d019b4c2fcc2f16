package webhooks

import (
	"context"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/repowatch/repowatch/core"
	"github.com/repowatch/repowatch/githubevents"
)

// Headers the pipeline consumes from the inbound delivery.
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderSignature = "X-Hub-Signature-256"
	HeaderDelivery  = "X-GitHub-Delivery"
)

// Status classifies the terminal state of one delivery.
type Status string

const (
	// StatusRejected covers failed signatures, unsupported event types, and
	// parsed events missing required fields.
	StatusRejected Status = "rejected"
	// StatusIgnored covers pings and non-actionable payloads; the delivery
	// is acknowledged without a stored record.
	StatusIgnored Status = "ignored"
	// StatusDuplicate means a record with the same request id already
	// existed; the stored record is untouched.
	StatusDuplicate Status = "duplicate"
	StatusStored    Status = "stored"
)

// InboundRequest is the transport-agnostic shape of one webhook delivery.
type InboundRequest struct {
	Headers map[string]string
	Body    []byte
}

// Result is the pipeline's terminal classification for one delivery.
type Result struct {
	Status    Status
	Reason    string
	RequestID string
	Action    core.Action
}

// HTTPStatus maps the outcome to the response code the sender expects:
// rejected deliveries are the only client errors, everything else is an
// acknowledgment.
func (r Result) HTTPStatus() int {
	if r.Status == StatusRejected {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

// Processor runs the ingestion state machine for a single delivery.
type Processor struct {
	verifier SignatureVerifier
	parser   *githubevents.Parser
	store    core.EventStore
	logger   core.Logger
	metrics  core.MetricsRecorder
	now      func() time.Time
}

type ProcessorOption func(*Processor)

func WithLogger(logger core.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) ProcessorOption {
	return func(p *Processor) {
		p.metrics = recorder
	}
}

func WithNow(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

func NewProcessor(
	verifier SignatureVerifier,
	parser *githubevents.Parser,
	store core.EventStore,
	options ...ProcessorOption,
) *Processor {
	processor := &Processor{
		verifier: verifier,
		parser:   parser,
		store:    store,
		metrics:  core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(processor)
	}
	processor.logger = glog.Ensure(processor.logger)
	if processor.parser == nil {
		processor.parser = githubevents.NewParser(githubevents.WithLogger(processor.logger))
	}
	return processor
}

// Process runs one delivery through verify -> parse -> validate -> store and
// returns its terminal classification. Storage faults are soft-failed: the
// delivery is still acknowledged, and the sender's retry will land as a
// DUPLICATE once storage recovers.
func (p *Processor) Process(ctx context.Context, req InboundRequest) Result {
	started := p.now()
	eventType := strings.TrimSpace(headerValue(req.Headers, HeaderEvent))
	deliveryID := strings.TrimSpace(headerValue(req.Headers, HeaderDelivery))

	result := p.run(ctx, req, eventType, deliveryID)

	tags := map[string]string{
		"event_type": eventType,
		"status":     string(result.Status),
	}
	if result.Action.Valid() {
		tags["action"] = result.Action.String()
	}
	p.metrics.IncCounter(ctx, "ingest.deliveries.total", 1, tags)
	p.metrics.ObserveHistogram(ctx, "ingest.duration_ms",
		float64(time.Since(started).Milliseconds()), tags)

	return result
}

func (p *Processor) run(ctx context.Context, req InboundRequest, eventType string, deliveryID string) Result {
	if !p.verifier.Verify(req.Body, headerValue(req.Headers, HeaderSignature)) {
		p.logger.Warn("webhook signature verification failed",
			"event_type", eventType, "delivery_id", deliveryID)
		return Result{Status: StatusRejected, Reason: "signature verification failed"}
	}

	if !githubevents.Supported(eventType) {
		p.logger.Info("unsupported webhook event type",
			"event_type", eventType, "delivery_id", deliveryID)
		return Result{Status: StatusRejected, Reason: "unsupported event type"}
	}

	if eventType == githubevents.EventTypePing {
		p.logger.Debug("webhook ping acknowledged", "delivery_id", deliveryID)
		return Result{Status: StatusIgnored}
	}

	event, ok, err := p.parser.Parse(eventType, req.Body)
	if err != nil {
		p.logger.Warn("webhook payload rejected",
			"event_type", eventType, "delivery_id", deliveryID, "error", err.Error())
		return Result{Status: StatusRejected, Reason: "invalid payload"}
	}
	if !ok {
		p.logger.Debug("webhook payload not actionable",
			"event_type", eventType, "delivery_id", deliveryID)
		return Result{Status: StatusIgnored}
	}

	if !event.Complete() {
		p.logger.Warn("parsed event missing required fields",
			"event_type", eventType, "delivery_id", deliveryID,
			"request_id", event.RequestID, "action", event.Action.String())
		return Result{Status: StatusRejected, Reason: "event missing required fields"}
	}

	created, err := p.store.Save(ctx, event)
	if err != nil {
		// Acknowledge anyway. The sender retries on errors, and the store's
		// unique constraint keeps the retry from creating a second record
		// once storage is back.
		p.logger.Error("event save failed, acknowledging delivery",
			"request_id", event.RequestID, "action", event.Action.String(),
			"delivery_id", deliveryID, "error", err.Error())
		return Result{Status: StatusStored, RequestID: event.RequestID, Action: event.Action}
	}

	if !created {
		p.logger.Info("duplicate event delivery",
			"request_id", event.RequestID, "action", event.Action.String(),
			"delivery_id", deliveryID)
		return Result{Status: StatusDuplicate, RequestID: event.RequestID, Action: event.Action}
	}

	p.logger.Info("event stored",
		"request_id", event.RequestID, "action", event.Action.String(),
		"author", event.Author, "to_branch", event.ToBranch,
		"delivery_id", deliveryID)
	return Result{Status: StatusStored, RequestID: event.RequestID, Action: event.Action}
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
