package githubevents

import "encoding/json"

// GitHub webhook event type tags, as delivered in the X-GitHub-Event header.
const (
	EventTypePush        = "push"
	EventTypePullRequest = "pull_request"
	EventTypePing        = "ping"
)

// PR sub-actions the pull_request strategy inspects. Every other sub-action
// is a non-actionable outcome.
const (
	prActionOpened = "opened"
	prActionClosed = "closed"
)

type pushPayload struct {
	Ref        string       `json:"ref"`
	After      string       `json:"after"`
	Pusher     identity     `json:"pusher"`
	HeadCommit *headCommit  `json:"head_commit"`
	Repository *repoSummary `json:"repository"`
}

type identity struct {
	Name string `json:"name"`
}

type headCommit struct {
	Timestamp string `json:"timestamp"`
}

// repoSummary carries the push fallback timestamp. GitHub serializes
// pushed_at as epoch seconds on push deliveries and as an ISO string on REST
// responses, so the field stays raw until the parser inspects it.
type repoSummary struct {
	PushedAt json.RawMessage `json:"pushed_at"`
}

type pullRequestPayload struct {
	Action      string       `json:"action"`
	PullRequest *pullRequest `json:"pull_request"`
}

type pullRequest struct {
	ID        int64   `json:"id"`
	Merged    bool    `json:"merged"`
	User      account `json:"user"`
	Head      gitRef  `json:"head"`
	Base      gitRef  `json:"base"`
	CreatedAt string  `json:"created_at"`
}

type account struct {
	Login string `json:"login"`
}

type gitRef struct {
	Ref string `json:"ref"`
}
