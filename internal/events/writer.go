package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Entity kinds recorded in the event log.
const (
	KindIssue     = "issue"
	KindSprint    = "sprint"
	KindRule      = "automation_rule"
	KindComment   = "comment"
	KindWorkList  = "work_list"
	KindWorkspace = "workspace"
	KindWorkLog   = "work_log"
	KindBoard     = "board"
	KindAttach    = "attachment"
	KindUser      = "user"
)

// Writer appends lifecycle events to the append-only log. Appends run inside the
// caller's transaction so an event exists iff its mutation committed.
type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Record is one event to append.
type Record struct {
	Type       string
	WorkListID string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	payload := rec.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	actor := rec.ActorID
	if actor == "" {
		actor = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,work_list_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, rec.Type, nullable(rec.WorkListID), rec.EntityKind, nullable(rec.EntityID), actor, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", rec.Type, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
