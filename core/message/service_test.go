package message_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/services/changefeed/memfeed"
	"github.com/trezcool/workdesk/storage/database/inmem"
	"github.com/trezcool/workdesk/testutil"
)

type fixture struct {
	svc                 message.Service
	broker              *memfeed.Broker
	admin, alice, bruno user.User
}

func setup(t *testing.T) fixture {
	broker := memfeed.NewBroker(16, nil)
	t.Cleanup(func() { _ = broker.Close() })
	db := inmemdb.Open(broker)
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, nil, core.NewTestConfig())
	return fixture{
		svc:    message.NewService(inmemdb.NewMessageRepository(db), usrSvc),
		broker: broker,
		admin:  testutil.CreateUser(t, usrRepo, "admin@test.cd", "", user.RoleAdmin),
		alice:  testutil.CreateUser(t, usrRepo, "alice@test.cd", "", user.RoleStaff),
		bruno:  testutil.CreateUser(t, usrRepo, "bruno@test.cd", "", user.RoleStaff),
	}
}

func contents(msgs []message.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestService_Send(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.svc.Send(ctx, f.alice, message.NewMessage{Content: "hello all"})
	require.NoError(t, err)
	assert.True(t, m.IsBroadcast())
	assert.Equal(t, f.alice.Email, m.SenderEmail)

	m, err = f.svc.Send(ctx, f.alice, message.NewMessage{Content: "hi boss", ReceiverID: f.admin.ID})
	require.NoError(t, err)
	require.NotNil(t, m.ReceiverID)
	assert.Equal(t, f.admin.ID, *m.ReceiverID)

	_, err = f.svc.Send(ctx, f.alice, message.NewMessage{Content: "me", ReceiverID: f.alice.ID})
	assert.True(t, core.IsValidationError(err))
	_, err = f.svc.Send(ctx, f.alice, message.NewMessage{Content: "?", ReceiverID: "ghost"})
	assert.True(t, core.IsValidationError(err))
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.alice, message.NewMessage{Content: "broadcast"})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.alice, message.NewMessage{Content: "a->admin", ReceiverID: f.admin.ID})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.bruno, message.NewMessage{Content: "b->admin", ReceiverID: f.admin.ID})
	require.NoError(t, err)

	msgs, err := f.svc.Query(ctx, f.bruno, livesync.Broadcast())
	require.NoError(t, err)
	assert.Equal(t, []string{"broadcast"}, contents(msgs))
	assert.Equal(t, f.alice.Email, msgs[0].SenderEmail)

	dm, err := livesync.Direct(f.admin.ID, f.alice.ID)
	require.NoError(t, err)
	msgs, err = f.svc.Query(ctx, f.admin, dm)
	require.NoError(t, err)
	assert.Equal(t, []string{"a->admin"}, contents(msgs))

	_, err = f.svc.Query(ctx, f.bruno, dm)
	assert.Equal(t, core.ErrForbidden, err)
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.svc.Send(ctx, f.alice, message.NewMessage{Content: "oops"})
	require.NoError(t, err)

	assert.Equal(t, core.ErrForbidden, f.svc.Delete(ctx, f.bruno, m.ID))
	assert.NoError(t, f.svc.Delete(ctx, f.alice, m.ID))
	assert.NoError(t, f.svc.Delete(ctx, f.alice, m.ID)) // stale

	msgs, err := f.svc.Query(ctx, f.alice, livesync.Broadcast())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// Two staff members message the same admin: each direct session only ever holds its own pair.
func TestSession_directIsolation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	enter := func(self, with user.User) *livesync.Session[message.Message] {
		sess, err := livesync.NewSession[message.Message](f.svc, f.broker, livesync.Options{Logger: testutil.NewLogger()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = sess.Close() })
		c, err := livesync.Direct(self.ID, with.ID)
		require.NoError(t, err)
		view, err := f.svc.View(c)
		require.NoError(t, err)
		require.NoError(t, sess.Enter(ctx, view))
		return sess
	}
	adminWithAlice := enter(f.admin, f.alice)
	adminWithBruno := enter(f.admin, f.bruno)
	closed := enter(f.admin, f.alice)
	require.NoError(t, closed.Close())

	send := func(from, to user.User, content string) {
		_, err := f.svc.Send(ctx, from, message.NewMessage{Content: content, ReceiverID: to.ID})
		require.NoError(t, err)
		time.Sleep(time.Millisecond) // distinct creation times
	}
	send(f.alice, f.admin, "a1")
	send(f.bruno, f.admin, "b1")
	send(f.admin, f.alice, "a2")
	send(f.admin, f.bruno, "b2")

	assert.Eventually(t, func() bool {
		return len(adminWithAlice.Records()) == 2 && len(adminWithBruno.Records()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a1", "a2"}, contents(adminWithAlice.Records()))
	assert.Equal(t, []string{"b1", "b2"}, contents(adminWithBruno.Records()))

	assert.Empty(t, closed.Records())
	assert.Equal(t, livesync.StateClosed, closed.State())

	// live inserted messages carry their sender label
	recs := adminWithAlice.Records()
	assert.Equal(t, f.alice.Email, recs[0].SenderEmail)
	assert.Equal(t, f.admin.Email, recs[1].SenderEmail)
}
