package message

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/query"
	"github.com/trezcool/workdesk/core/user"
)

var (
	ErrNotFound = core.ErrNotFound

	errReceiverNotFound = errors.New("receiver not found")
	errSelfMessage      = errors.New("cannot send a direct message to yourself")
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, m Message) (Message, error)
		GetMessage(ctx context.Context, id string) (Message, error)
		// QueryMessages returns the matching messages with their sender label.
		QueryMessages(ctx context.Context, q query.Query) ([]Message, error)
		// DeleteMessage returns ErrNotFound if the message does not exist.
		DeleteMessage(ctx context.Context, id string) error
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		livesync.Gateway[Message]

		// Send posts a broadcast message, or a direct one when nm.ReceiverID is set.
		Send(ctx context.Context, actor user.User, nm NewMessage) (Message, error)
		// Query lists the messages of a chat context the actor takes part in.
		Query(ctx context.Context, actor user.User, c livesync.Context) ([]Message, error)
		// Delete removes one of the actor's own messages. Deleting a missing message is a no-op.
		Delete(ctx context.Context, actor user.User, id string) error
		View(c livesync.Context) (livesync.View[Message], error)
	}

	service struct {
		repo  Repository
		users UserGetter
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserGetter) Service {
	return &service{repo: repo, users: users}
}

func isChat(c livesync.Context) bool {
	return c.Kind() == livesync.KindBroadcast || c.Kind() == livesync.KindDirect
}

func (svc *service) FetchInitial(ctx context.Context, q query.Query) ([]Message, error) {
	return svc.repo.QueryMessages(ctx, q)
}

func (svc *service) Send(ctx context.Context, actor user.User, nm NewMessage) (Message, error) {
	m := Message{
		Content:     nm.Content,
		SenderID:    actor.ID,
		ReceiverID:  core.StringPtr(nm.ReceiverID),
		CreatedAt:   time.Now().UTC(),
		SenderEmail: actor.Email,
	}
	if m.ReceiverID != nil {
		if *m.ReceiverID == actor.ID {
			return Message{}, core.NewValidationError(errSelfMessage, core.FieldError{Field: "receiver_id", Error: errSelfMessage.Error()})
		}
		if _, err := svc.users.GetByID(ctx, *m.ReceiverID); err != nil {
			if errors.Cause(err) == core.ErrNotFound {
				return Message{}, core.NewValidationError(errReceiverNotFound, core.FieldError{Field: "receiver_id", Error: errReceiverNotFound.Error()})
			}
			return Message{}, errors.Wrap(err, "finding receiver")
		}
	}

	m, err := svc.repo.CreateMessage(ctx, m)
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}
	m.SenderEmail = actor.Email
	return m, nil
}

func (svc *service) Query(ctx context.Context, actor user.User, c livesync.Context) ([]Message, error) {
	if !isChat(c) {
		return nil, errors.Errorf("%s is not a chat context", c)
	}
	if !c.Involves(actor.ID) {
		return nil, core.ErrForbidden
	}
	q, err := c.Query(Ordering...)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryMessages(ctx, q)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	m, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding message")
	}
	if m.SenderID != actor.ID {
		return core.ErrForbidden
	}
	if err = svc.repo.DeleteMessage(ctx, id); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "deleting message")
	}
	return nil
}

func (svc *service) View(c livesync.Context) (livesync.View[Message], error) {
	if !isChat(c) {
		return livesync.View[Message]{}, errors.Errorf("%s is not a chat context", c)
	}
	q, err := c.Query(Ordering...)
	if err != nil {
		return livesync.View[Message]{}, err
	}
	return livesync.View[Message]{Context: c, Query: q, Less: Less, Enrich: svc.enrich}, nil
}

// enrich sets the sender label of messages decoded from change notifications.
func (svc *service) enrich(ctx context.Context, m *Message) error {
	if m.SenderEmail != "" {
		return nil
	}
	usr, err := svc.users.GetByID(ctx, m.SenderID)
	if err != nil {
		return errors.Wrap(err, "finding sender")
	}
	m.SenderEmail = usr.Email
	return nil
}
