package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// eventRecord is the storage row for a canonical event. The unique index on
// request_id lives in the schema migration and is what makes Save an
// insert-if-absent.
type eventRecord struct {
	bun.BaseModel `bun:"table:repo_events,alias:re"`

	ID          string    `bun:"id,pk"`
	RequestID   string    `bun:"request_id,notnull"`
	Author      string    `bun:"author,notnull"`
	Action      string    `bun:"action,notnull"`
	FromBranch  *string   `bun:"from_branch"`
	ToBranch    string    `bun:"to_branch,notnull"`
	DisplayedAt string    `bun:"displayed_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
