package githubevents

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/repowatch/repowatch/core"
	"github.com/repowatch/repowatch/timefmt"
)

const branchRefPrefix = "refs/heads/"

// Parser routes raw webhook payloads to the strategy for their event type.
type Parser struct {
	logger core.Logger
	now    func() time.Time
}

type ParserOption func(*Parser)

func WithLogger(logger core.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

func WithNow(now func() time.Time) ParserOption {
	return func(p *Parser) {
		p.now = now
	}
}

func NewParser(options ...ParserOption) *Parser {
	parser := &Parser{
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(parser)
	}
	parser.logger = glog.Ensure(parser.logger)
	return parser
}

// Supported reports whether eventType belongs to the closed set of inbound
// event types the service acknowledges.
func Supported(eventType string) bool {
	switch eventType {
	case EventTypePush, EventTypePullRequest, EventTypePing:
		return true
	}
	return false
}

// Parse maps an event-type tag plus raw JSON body onto a canonical event.
// The second return is false for "not applicable" payloads: unrecognized
// event types and non-actionable pull-request sub-actions. A non-nil error
// means the body is not valid JSON for its declared type.
func (p *Parser) Parse(eventType string, body []byte) (core.Event, bool, error) {
	strategy, ok := p.strategyFor(eventType)
	if !ok {
		return core.Event{}, false, nil
	}
	return strategy.parse(body)
}

type eventStrategy interface {
	parse(body []byte) (core.Event, bool, error)
}

func (p *Parser) strategyFor(eventType string) (eventStrategy, bool) {
	switch strings.TrimSpace(eventType) {
	case EventTypePush:
		return pushStrategy{logger: p.logger, now: p.now}, true
	case EventTypePullRequest:
		return pullRequestStrategy{logger: p.logger, now: p.now}, true
	}
	return nil, false
}

type pushStrategy struct {
	logger core.Logger
	now    func() time.Time
}

func (s pushStrategy) parse(body []byte) (core.Event, bool, error) {
	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Event{}, false, fmt.Errorf("githubevents: invalid push payload: %w", err)
	}

	event := core.Event{
		RequestID: strings.TrimSpace(payload.After),
		Author:    authorOrUnknown(payload.Pusher.Name),
		Action:    core.ActionPush,
		ToBranch:  BranchFromRef(payload.Ref),
		CreatedAt: s.now(),
	}
	event.Timestamp = s.timestamp(payload)
	return event, true, nil
}

// timestamp prefers the head commit instant, then the repository's
// last-pushed instant, and stays empty when neither is present so the
// validator rejects the event instead of inventing a time for it.
func (s pushStrategy) timestamp(payload pushPayload) string {
	if payload.HeadCommit != nil && strings.TrimSpace(payload.HeadCommit.Timestamp) != "" {
		formatted, parsed := timefmt.FormatISO(payload.HeadCommit.Timestamp, s.now)
		if !parsed {
			s.logger.Warn("push head commit timestamp unparseable, using current time",
				"timestamp", payload.HeadCommit.Timestamp)
		}
		return formatted
	}
	if payload.Repository != nil {
		if formatted, ok := s.pushedAt(payload.Repository.PushedAt); ok {
			return formatted
		}
	}
	return ""
}

func (s pushStrategy) pushedAt(raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}
	if seconds, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return timefmt.FormatUnix(seconds), true
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil || strings.TrimSpace(value) == "" {
		return "", false
	}
	formatted, parsed := timefmt.FormatISO(value, s.now)
	if !parsed {
		s.logger.Warn("repository pushed_at timestamp unparseable, using current time",
			"pushed_at", value)
	}
	return formatted, true
}

type pullRequestStrategy struct {
	logger core.Logger
	now    func() time.Time
}

func (s pullRequestStrategy) parse(body []byte) (core.Event, bool, error) {
	var payload pullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Event{}, false, fmt.Errorf("githubevents: invalid pull_request payload: %w", err)
	}

	pr := payload.PullRequest
	if pr == nil {
		pr = &pullRequest{}
	}

	var action core.Action
	switch {
	case payload.Action == prActionClosed && pr.Merged:
		action = core.ActionMerge
	case payload.Action == prActionOpened:
		action = core.ActionPullRequest
	default:
		// Review requests, synchronizes, unmerged closes, and the rest are
		// acknowledged but not recorded.
		return core.Event{}, false, nil
	}

	requestID := ""
	if pr.ID != 0 {
		requestID = strconv.FormatInt(pr.ID, 10)
	}

	timestamp, parsed := timefmt.FormatISO(pr.CreatedAt, s.now)
	if !parsed {
		s.logger.Warn("pull request created_at unparseable, using current time",
			"created_at", pr.CreatedAt)
	}

	return core.Event{
		RequestID:  requestID,
		Author:     authorOrUnknown(pr.User.Login),
		Action:     action,
		FromBranch: strings.TrimSpace(pr.Head.Ref),
		ToBranch:   strings.TrimSpace(pr.Base.Ref),
		Timestamp:  timestamp,
		CreatedAt:  s.now(),
	}, true, nil
}

// BranchFromRef strips the refs/heads/ prefix from a git ref. Refs without
// the prefix pass through unmodified.
func BranchFromRef(ref string) string {
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(trimmed, branchRefPrefix) {
		return trimmed[len(branchRefPrefix):]
	}
	return trimmed
}

func authorOrUnknown(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return core.AuthorUnknown
}
