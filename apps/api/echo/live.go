package echoapi

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/task"
	"github.com/trezcool/workdesk/core/user"
)

const (
	frameSnapshot = "snapshot"
	frameStatus   = "status"
	frameError    = "error"
	frameSwitch   = "switch"
	frameToggle   = "toggle"

	writeTimeout = 5 * time.Second

	msgLoadFailed   = "could not load records"
	msgUpdateFailed = "could not update task"
)

type (
	// Frame is a JSON text frame of the live protocol.
	Frame struct {
		Type    string      `json:"type"`
		Channel string      `json:"channel,omitempty"`
		State   string      `json:"state,omitempty"`
		Records interface{} `json:"records,omitempty"`
		Status  string      `json:"status,omitempty"`
		Error   string      `json:"error,omitempty"`
	}

	// ClientFrame is sent by the client: "switch" enters another context,
	// "toggle" sets the completion of a task of the current tasks context.
	ClientFrame struct {
		Type       string `json:"type"`
		Context    string `json:"context,omitempty"`
		With       string `json:"with,omitempty"`
		ID         string `json:"id,omitempty"`
		IsComplete *bool  `json:"is_complete,omitempty"`
	}
)

type liveApi struct {
	deps ServerDeps
}

func registerLiveAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := liveApi{deps: deps}
	g.GET("/live", api.serve, jwt)
}

// canEnter tells whether actor may sync c: staff see the broadcast chat, their own conversations and their own tasks.
func canEnter(actor user.User, c livesync.Context) bool {
	if actor.IsAdmin() {
		return true
	}
	switch c.Kind() {
	case livesync.KindBroadcast:
		return true
	case livesync.KindDirect:
		return c.Involves(actor.ID)
	case livesync.KindTasks:
		return c.Assignee() == actor.ID
	}
	return false
}

func (api *liveApi) serve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	c, err := livesync.ParseContext(ctx.QueryParam("context"), actor.ID, ctx.QueryParam("with"))
	if err != nil {
		return err
	}
	if !canEnter(actor, c) {
		return errHttpForbidden
	}

	lc, err := api.newLiveConn(actor)
	if err != nil {
		return errors.Wrap(err, "opening live sessions")
	}
	defer lc.close()

	conn, err := websocket.Accept(ctx.Response(), ctx.Request(), &websocket.AcceptOptions{
		OriginPatterns: api.deps.Conf.Server.AllowedOrigins,
	})
	if err != nil {
		// Accept has written the error response
		api.deps.Logger.Warn(fmt.Sprintf("websocket upgrade failed: %v", err), err)
		return nil
	}
	lc.conn = conn
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	lc.run(ctx.Request().Context(), c)
	return nil
}

// liveSession adapts a typed livesync.Session to the connection loop.
type liveSession[R livesync.Record] struct {
	sess *livesync.Session[R]
	view func(c livesync.Context) (livesync.View[R], error)
}

func (ls *liveSession[R]) enter(ctx context.Context, c livesync.Context) error {
	v, err := ls.view(c)
	if err != nil {
		return err
	}
	return ls.sess.Enter(ctx, v)
}

func (ls *liveSession[R]) changed() <-chan struct{} { return ls.sess.Changed() }

func (ls *liveSession[R]) status() livesync.Status { return ls.sess.FeedStatus() }

func (ls *liveSession[R]) snapshot() Frame {
	c, st, records := ls.sess.Snapshot()
	if records == nil {
		records = []R{}
	}
	return Frame{Type: frameSnapshot, Channel: c.Name(), State: st.String(), Records: records}
}

func (ls *liveSession[R]) close() error { return ls.sess.Close() }

type syncedView interface {
	enter(ctx context.Context, c livesync.Context) error
	changed() <-chan struct{}
	status() livesync.Status
	snapshot() Frame
	close() error
}

// liveConn holds one session per record type; at most one of them is open at a time.
type liveConn struct {
	actor   user.User
	conn    *websocket.Conn
	logger  core.Logger
	taskSvc task.Service
	tasks   *liveSession[task.Task]
	msgs    syncedView
	active  syncedView
}

func (api *liveApi) newLiveConn(actor user.User) (*liveConn, error) {
	opts := livesync.Options{Logger: api.deps.Logger, SubscribeFirst: true}

	taskSess, err := livesync.NewSession[task.Task](api.deps.TaskSvc, api.deps.Feed, opts)
	if err != nil {
		return nil, err
	}
	msgSess, err := livesync.NewSession[message.Message](api.deps.MsgSvc, api.deps.Feed, opts)
	if err != nil {
		return nil, err
	}

	return &liveConn{
		actor:   actor,
		logger:  api.deps.Logger,
		taskSvc: api.deps.TaskSvc,
		tasks: &liveSession[task.Task]{
			sess: taskSess,
			view: func(c livesync.Context) (livesync.View[task.Task], error) { return api.deps.TaskSvc.View(c) },
		},
		msgs: &liveSession[message.Message]{sess: msgSess, view: api.deps.MsgSvc.View},
	}, nil
}

func (lc *liveConn) run(ctx context.Context, c livesync.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests := make(chan ClientFrame)
	go func() {
		defer cancel()
		for {
			var req ClientFrame
			if err := wsjson.Read(ctx, lc.conn, &req); err != nil {
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	lastStatus := livesync.StatusConnected
	if err := lc.enter(ctx, c); err != nil && !lc.sendError(ctx, err, msgLoadFailed) {
		return
	}

	for {
		var changed <-chan struct{}
		if lc.active != nil {
			changed = lc.active.changed()
		}

		select {
		case <-ctx.Done():
			return

		case req := <-requests:
			switch req.Type {
			case frameSwitch:
				if err := lc.switchTo(ctx, req); err != nil && !lc.sendError(ctx, err, msgLoadFailed) {
					return
				}
				lastStatus = livesync.StatusConnected
			case frameToggle:
				if err := lc.toggle(ctx, req); err != nil && !lc.sendError(ctx, err, msgUpdateFailed) {
					return
				}
			default:
				err := core.NewValidationError(nil, core.FieldError{Field: "type", Error: fmt.Sprintf("unknown frame type %q", req.Type)})
				if !lc.sendError(ctx, err, "") {
					return
				}
			}

		case <-changed:
			if st := lc.active.status(); st != "" && st != lastStatus {
				lastStatus = st
				if !lc.write(ctx, Frame{Type: frameStatus, Status: string(st)}) {
					return
				}
			}
			if !lc.write(ctx, lc.active.snapshot()) {
				return
			}
		}
	}
}

func (lc *liveConn) switchTo(ctx context.Context, req ClientFrame) error {
	c, err := livesync.ParseContext(req.Context, lc.actor.ID, req.With)
	if err != nil {
		return err
	}
	if !canEnter(lc.actor, c) {
		return core.ErrForbidden
	}
	return lc.enter(ctx, c)
}

// toggle flips the task at once, then saves it. A failed save re-fetches the tasks.
func (lc *liveConn) toggle(ctx context.Context, req ClientFrame) error {
	if lc.active != syncedView(lc.tasks) {
		return core.NewValidationError(nil, core.FieldError{Field: "context", Error: "toggle needs a tasks context"})
	}
	if req.IsComplete == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "is_complete", Error: "this field is required"})
	}
	t, ok := lc.tasks.sess.Record(req.ID)
	if !ok {
		return core.ErrNotFound
	}
	t.IsComplete = *req.IsComplete

	return lc.tasks.sess.Optimistic(ctx, livesync.OpUpdate, t, func(ctx context.Context) error {
		if !lc.write(ctx, lc.tasks.snapshot()) {
			return errors.New("live connection lost")
		}
		_, _, err := lc.taskSvc.SetComplete(ctx, lc.actor, t.ID, t.IsComplete)
		return err
	})
}

// enter closes the open session before seeding the one matching c's record type.
func (lc *liveConn) enter(ctx context.Context, c livesync.Context) error {
	next := lc.msgs
	if c.Kind() == livesync.KindTasks {
		next = lc.tasks
	}
	if lc.active != nil && lc.active != next {
		if err := lc.active.close(); err != nil {
			lc.logger.Warn(fmt.Sprintf("closing live session: %v", err), err)
		}
	}
	lc.active = next
	return next.enter(ctx, c)
}

func (lc *liveConn) write(ctx context.Context, f Frame) bool {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, lc.conn, f); err != nil {
		if ctx.Err() == nil {
			lc.logger.Debug(fmt.Sprintf("live connection of %s lost: %v", lc.actor.Email, err))
		}
		return false
	}
	return true
}

// sendError reports err to the client; unexpected errors are logged and reported as failure.
func (lc *liveConn) sendError(ctx context.Context, err error, failure string) bool {
	msg := err.Error()
	switch {
	case errors.Cause(err) == core.ErrForbidden:
		msg = errHttpForbidden.Message.(string)
	case errors.Cause(err) == core.ErrNotFound:
		msg = errHttpNotFound.Message.(string)
	case core.IsValidationError(err):
	default:
		lc.logger.Error(fmt.Sprintf("live session: %v", err), err, lc.actor)
		msg = failure
	}
	return lc.write(ctx, Frame{Type: frameError, Error: msg})
}

func (lc *liveConn) close() {
	for _, v := range []syncedView{lc.tasks, lc.msgs} {
		_ = v.close()
	}
}
