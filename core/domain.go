package core

import (
	"fmt"
	"strings"
	"time"
)

// Action is the closed set of canonical event actions. Payloads that cannot
// be mapped to one of these values never become an Event.
type Action string

const (
	ActionPush        Action = "PUSH"
	ActionPullRequest Action = "PULL_REQUEST"
	ActionMerge       Action = "MERGE"
)

// ParseAction maps a raw action string onto the closed Action set. Unknown
// values are rejected, not coerced.
func ParseAction(value string) (Action, bool) {
	switch Action(strings.TrimSpace(value)) {
	case ActionPush:
		return ActionPush, true
	case ActionPullRequest:
		return ActionPullRequest, true
	case ActionMerge:
		return ActionMerge, true
	}
	return "", false
}

func (a Action) Valid() bool {
	switch a {
	case ActionPush, ActionPullRequest, ActionMerge:
		return true
	}
	return false
}

func (a Action) String() string {
	return string(a)
}

// AuthorUnknown is the sentinel actor name used when the source payload does
// not carry one.
const AuthorUnknown = "Unknown"

// Event is the canonical, storage-ready representation of a repository
// activity notification. It is constructed once by the payload parsers and
// never mutated afterwards.
type Event struct {
	// RequestID is the natural key: the target commit SHA for pushes, the
	// pull-request id (stringified) for pull-request and merge events.
	RequestID string

	// Author is the actor display name, AuthorUnknown when absent upstream.
	Author string

	Action Action

	// FromBranch is the source branch for PULL_REQUEST and MERGE events and
	// empty for PUSH, which has no source branch.
	FromBranch string

	// ToBranch is the destination branch, required for every action.
	ToBranch string

	// Timestamp is the pre-formatted display instant, e.g.
	// "1st April 2021 - 9:30 PM UTC". It is never re-parsed after creation.
	Timestamp string

	// CreatedAt is the ingestion instant, set once at construction and used
	// only for recency ordering.
	CreatedAt time.Time
}

// Complete reports whether the event carries every field required for
// storage and a recognized action.
func (e Event) Complete() bool {
	if strings.TrimSpace(e.RequestID) == "" {
		return false
	}
	if strings.TrimSpace(e.Author) == "" {
		return false
	}
	if !e.Action.Valid() {
		return false
	}
	if strings.TrimSpace(e.ToBranch) == "" {
		return false
	}
	if strings.TrimSpace(e.Timestamp) == "" {
		return false
	}
	return true
}

// DisplayText renders the human-readable activity line shown by dashboard
// consumers.
func (e Event) DisplayText() string {
	switch e.Action {
	case ActionPush:
		return fmt.Sprintf("%s pushed to %s", e.Author, e.ToBranch)
	case ActionPullRequest:
		return fmt.Sprintf("%s submitted a pull request from %s to %s", e.Author, e.FromBranch, e.ToBranch)
	case ActionMerge:
		return fmt.Sprintf("%s merged branch %s to %s", e.Author, e.FromBranch, e.ToBranch)
	}
	return fmt.Sprintf("%s performed %s", e.Author, e.Action)
}

// EventStats is the per-action breakdown served by the stats endpoint.
type EventStats struct {
	Total    int64
	ByAction map[Action]int64
}
