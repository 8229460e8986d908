// Package inmemdb is a map backed store used by the "memory" database engine and tests.
// Committed writes are published to a livesync.Publisher, standing in for database notifications.
package inmemdb

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/query"
	"github.com/trezcool/workdesk/core/task"
	"github.com/trezcool/workdesk/core/user"
)

type DB struct {
	mu       sync.RWMutex
	users    map[string]*user.User
	tasks    map[string]*task.Task
	messages map[string]*message.Message
	pub      livesync.Publisher
}

// Open returns an empty DB. pub may be nil.
func Open(pub livesync.Publisher) *DB {
	return &DB{
		users:    make(map[string]*user.User),
		tasks:    make(map[string]*task.Task),
		messages: make(map[string]*message.Message),
		pub:      pub,
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]*user.User)
	db.tasks = make(map[string]*task.Task)
	db.messages = make(map[string]*message.Message)
}

func (db *DB) publish(table string, op livesync.Op, id string, record interface{}) error {
	return errors.Wrap(livesync.Publish(db.pub, table, op, id, record), "publishing change")
}

// toRow renders v the way change notifications carry it, so it can be matched against a query.
func toRow(v interface{}) (query.Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row query.Row
	if err = json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return row, nil
}
