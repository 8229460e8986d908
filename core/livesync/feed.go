package livesync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/query"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change is a row level event delivered by a Feed.
type Change struct {
	Table      string          `json:"table"`
	Op         Op              `json:"op"`
	ID         string          `json:"id"`
	Record     json.RawMessage `json:"record,omitempty"` // new row; old row for deletes
	CommitTime time.Time       `json:"commit_time"`
}

// NewChange encodes record as the change's row.
func NewChange(table string, op Op, id string, record interface{}) (Change, error) {
	ch := Change{Table: table, Op: op, ID: id, CommitTime: time.Now().UTC()}
	if record != nil {
		data, err := json.Marshal(record)
		if err != nil {
			return Change{}, errors.Wrap(err, "encoding change record")
		}
		ch.Record = data
	}
	return ch, nil
}

// Row decodes the change's record into a query.Row.
func (ch Change) Row() (query.Row, error) {
	if len(ch.Record) == 0 {
		return nil, errors.New("change has no record")
	}
	var row query.Row
	if err := json.Unmarshal(ch.Record, &row); err != nil {
		return nil, errors.Wrap(err, "decoding change record")
	}
	return row, nil
}

// Status is the connection state reported by a Subscription.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnected  Status = "reconnected"
	StatusFailed       Status = "failed"
	// StatusLagged means changes were dropped because the subscriber fell behind.
	StatusLagged Status = "lagged"
)

type (
	// Subscription is a live stream of changes for one channel.
	// Close is idempotent.
	Subscription interface {
		Changes() <-chan Change
		Status() <-chan Status
		Close() error
	}

	// Feed opens subscriptions on named channels.
	// Delivery is at-least-once; there is no ordering across writers.
	Feed interface {
		Subscribe(ctx context.Context, channel string, tables ...string) (Subscription, error)
	}

	// Publisher is implemented by in-process feeds; stores without server side notifications publish through it.
	Publisher interface {
		Publish(ch Change)
	}
)

// Publish encodes and publishes a change, skipping nil publishers.
func Publish(p Publisher, table string, op Op, id string, record interface{}) error {
	if p == nil {
		return nil
	}
	ch, err := NewChange(table, op, id, record)
	if err != nil {
		return err
	}
	p.Publish(ch)
	return nil
}
