package sqlxrepo

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/query"
)

var messageColumns = []string{"id", "content", "sender_id", "receiver_id", "created_at"}

type messageRepository struct {
	base
}

var _ message.Repository = (*messageRepository)(nil)

// NewMessageRepository returns a message repository. pub may be nil; it is only needed on sqlite.
func NewMessageRepository(db *sqlx.DB, pub livesync.Publisher) message.Repository {
	return &messageRepository{base: newBase(db, pub)}
}

// selectWithSender selects messages aliased m, labelled with their sender's email.
func (repo *messageRepository) selectWithSender() sq.SelectBuilder {
	cols := make([]string, 0, len(messageColumns)+1)
	for _, c := range messageColumns {
		cols = append(cols, "m."+c)
	}
	cols = append(cols, "COALESCE(u.email, '') AS sender_email")
	return repo.sb.Select(cols...).
		From(query.Messages.Name + " m").
		LeftJoin("users u ON u.id = m.sender_id")
}

func (repo *messageRepository) CreateMessage(ctx context.Context, m message.Message) (message.Message, error) {
	m.ID = uuid.New().String()
	m.CreatedAt = m.CreatedAt.UTC()
	stmt, args, err := repo.sb.Insert(query.Messages.Name).
		Columns(messageColumns...).
		Values(m.ID, m.Content, m.SenderID, m.ReceiverID, m.CreatedAt).
		ToSql()
	if err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	if _, err = repo.db.ExecContext(ctx, stmt, args...); err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	label := m.SenderEmail
	m.SenderEmail = ""
	if err = repo.publish(query.Messages.Name, livesync.OpInsert, m.ID, m); err != nil {
		return message.Message{}, err
	}
	m.SenderEmail = label
	return m, nil
}

func (repo *messageRepository) GetMessage(ctx context.Context, id string) (message.Message, error) {
	if !repo.validID(id) {
		return message.Message{}, message.ErrNotFound
	}
	stmt, args, err := repo.selectWithSender().Where(sq.Eq{"m.id": id}).ToSql()
	if err != nil {
		return message.Message{}, errors.Wrap(err, "finding message")
	}
	var m message.Message
	if err = repo.db.GetContext(ctx, &m, stmt, args...); err != nil {
		return message.Message{}, trapNoRowsErr(err, "finding message")
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (repo *messageRepository) QueryMessages(ctx context.Context, q query.Query) ([]message.Message, error) {
	if q.Table.Name != query.Messages.Name {
		return nil, errors.Errorf("querying messages: unexpected table %q", q.Table.Name)
	}
	stmt, args, err := repo.selectWithSender().
		Where(q.SQLWhere("m")).
		OrderBy(q.SQLOrderBy("m")...).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]message.Message, 0)
	if err = repo.db.SelectContext(ctx, &msgs, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	for i := range msgs {
		msgs[i].CreatedAt = msgs[i].CreatedAt.UTC()
	}
	return msgs, nil
}

func (repo *messageRepository) DeleteMessage(ctx context.Context, id string) error {
	old, err := repo.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	q := repo.sb.Delete(query.Messages.Name).Where(sq.Eq{"id": id})
	if err = repo.execOne(ctx, q, "deleting message"); err != nil {
		return err
	}
	old.SenderEmail = ""
	return repo.publish(query.Messages.Name, livesync.OpDelete, id, old)
}
