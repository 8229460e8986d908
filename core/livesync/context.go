package livesync

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/query"
)

type Kind string

const (
	KindBroadcast Kind = "global"
	KindDirect    Kind = "dm"
	KindTasks     Kind = "tasks"
)

var (
	errEmptyIdentity = errors.New("identity cannot be empty")
	errSelfDirect    = errors.New("a direct context needs two distinct identities")
)

// Context identifies the subset of records a Session tracks.
// The zero value is not a valid Context.
type Context struct {
	kind Kind
	a, b string // direct: sorted participants; tasks: a is the assignee
}

// Broadcast is the context of messages without receiver.
func Broadcast() Context {
	return Context{kind: KindBroadcast}
}

// Direct is the context of messages exchanged between a and b, in either direction.
// Direct(a, b) and Direct(b, a) are equal.
func Direct(a, b string) (Context, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return Context{}, core.NewValidationError(errEmptyIdentity, core.FieldError{Field: "with", Error: errEmptyIdentity.Error()})
	}
	if a == b {
		return Context{}, core.NewValidationError(errSelfDirect, core.FieldError{Field: "with", Error: errSelfDirect.Error()})
	}
	if b < a {
		a, b = b, a
	}
	return Context{kind: KindDirect, a: a, b: b}, nil
}

// Tasks is the context of the tasks assigned to assignee.
func Tasks(assignee string) (Context, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return Context{}, core.NewValidationError(errEmptyIdentity, core.FieldError{Field: "assignee", Error: errEmptyIdentity.Error()})
	}
	return Context{kind: KindTasks, a: assignee}, nil
}

// ParseContext builds the context named by kind, as seen by self.
// `with` is the other participant of a direct context, or the assignee of a tasks context (defaults to self).
func ParseContext(kind, self, with string) (Context, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindBroadcast, "":
		return Broadcast(), nil
	case KindDirect:
		return Direct(self, with)
	case KindTasks:
		if strings.TrimSpace(with) == "" {
			with = self
		}
		return Tasks(with)
	}
	return Context{}, core.NewValidationError(nil, core.FieldError{Field: "context", Error: fmt.Sprintf("unknown context %q", kind)})
}

func (c Context) Kind() Kind { return c.kind }

func (c Context) IsZero() bool { return c.kind == "" }

// Name is the channel name of the context: "<kind>-<key>".
func (c Context) Name() string {
	switch c.kind {
	case KindBroadcast:
		return "global-chat"
	case KindDirect:
		return "dm-" + c.a + "-" + c.b
	case KindTasks:
		return "tasks-" + c.a
	}
	return ""
}

func (c Context) String() string { return c.Name() }

// Participants returns the two identities of a direct context.
func (c Context) Participants() (string, string) {
	if c.kind != KindDirect {
		return "", ""
	}
	return c.a, c.b
}

// Assignee returns the identity of a tasks context.
func (c Context) Assignee() string {
	if c.kind != KindTasks {
		return ""
	}
	return c.a
}

// Involves reports whether id is a participant (direct) or the assignee (tasks).
// Every identity is involved in the broadcast context.
func (c Context) Involves(id string) bool {
	switch c.kind {
	case KindBroadcast:
		return true
	case KindDirect:
		return id == c.a || id == c.b
	case KindTasks:
		return id == c.a
	}
	return false
}

func (c Context) Table() query.Table {
	if c.kind == KindTasks {
		return query.Tasks
	}
	return query.Messages
}

// Predicate is the filter a record must satisfy to belong to the context.
func (c Context) Predicate() query.Cond {
	switch c.kind {
	case KindBroadcast:
		return query.IsNull("receiver_id")
	case KindDirect:
		return query.Or(
			query.And(query.Eq("sender_id", c.a), query.Eq("receiver_id", c.b)),
			query.And(query.Eq("sender_id", c.b), query.Eq("receiver_id", c.a)),
		)
	case KindTasks:
		return query.Eq("assignee_id", c.a)
	}
	return nil
}

// Query builds the context's query with the given ordering.
func (c Context) Query(orderings ...core.DBOrdering) (query.Query, error) {
	if c.IsZero() {
		return query.Query{}, errors.New("empty context")
	}
	return query.New(c.Table(), c.Predicate(), orderings...)
}
