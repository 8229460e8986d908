package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/query"
)

type messageRepository struct {
	db *DB
}

var _ message.Repository = (*messageRepository)(nil)

func NewMessageRepository(db *DB) message.Repository {
	return &messageRepository{db: db}
}

// stored strips the joined sender label, which is not a column.
func stored(m message.Message) message.Message {
	m.SenderEmail = ""
	return m
}

func (repo *messageRepository) withSender(m message.Message) message.Message {
	if usr, ok := repo.db.users[m.SenderID]; ok {
		m.SenderEmail = usr.Email
	}
	return m
}

func (repo *messageRepository) CreateMessage(_ context.Context, m message.Message) (message.Message, error) {
	m = stored(m)
	repo.db.mu.Lock()
	m.ID = uuid.New().String()
	repo.db.messages[m.ID] = &m
	created := repo.withSender(m)
	repo.db.mu.Unlock()

	return created, repo.db.publish(query.Messages.Name, livesync.OpInsert, m.ID, m)
}

func (repo *messageRepository) GetMessage(_ context.Context, id string) (message.Message, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if m, ok := repo.db.messages[id]; ok {
		return repo.withSender(*m), nil
	}
	return message.Message{}, message.ErrNotFound
}

func (repo *messageRepository) QueryMessages(_ context.Context, q query.Query) ([]message.Message, error) {
	if q.Table.Name != query.Messages.Name {
		return nil, errors.Errorf("querying messages: unexpected table %q", q.Table.Name)
	}

	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	msgs := make([]message.Message, 0)
	for _, m := range repo.db.messages {
		row, err := toRow(m)
		if err != nil {
			return nil, errors.Wrap(err, "querying messages")
		}
		if q.Match(row) {
			msgs = append(msgs, repo.withSender(*m))
		}
	}
	// messages are only ever listed in chat order
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return message.Less(msgs[i], msgs[j])
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

func (repo *messageRepository) DeleteMessage(_ context.Context, id string) error {
	repo.db.mu.Lock()
	m, ok := repo.db.messages[id]
	if !ok {
		repo.db.mu.Unlock()
		return message.ErrNotFound
	}
	delete(repo.db.messages, id)
	repo.db.mu.Unlock()

	return repo.db.publish(query.Messages.Name, livesync.OpDelete, id, *m)
}
