package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/user"
)

// RollbarLogger prints to a std logger and reports to rollbar when enabled.
// Args may be an error, a map[string]interface{} of extras, the acting user.User
// and the livesync.Context being synced; the last two become report metadata.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, debug: conf.Debug || conf.TestMode}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

type entry struct {
	err    error
	extras map[string]interface{}
	actor  *user.User
	other  []interface{}
}

func parseArgs(args []interface{}) entry {
	var e entry
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			if e.err == nil {
				e.err = a
			}
		case user.User:
			if e.actor == nil {
				usr := a
				e.actor = &usr
			}
		case livesync.Context:
			e.extra("sync_channel", a.Name())
		case map[string]interface{}:
			for k, v := range a {
				e.extra(k, v)
			}
		default:
			e.other = append(e.other, a)
		}
	}
	if e.actor != nil {
		e.extra("role", e.actor.Role)
	}
	return e
}

func (e *entry) extra(key string, v interface{}) {
	if e.extras == nil {
		e.extras = make(map[string]interface{})
	}
	e.extras[key] = v
}

func (l RollbarLogger) report(level, msg string, e entry) {
	if e.actor != nil {
		rollbar.SetPerson(e.actor.ID, e.actor.Email, e.actor.Email)
	} else {
		rollbar.ClearPerson()
	}
	interfaces := []interface{}{msg}
	if e.err != nil {
		interfaces = append(interfaces, e.err)
	}
	if e.extras != nil {
		interfaces = append(interfaces, e.extras)
	}
	rollbar.Log(level, interfaces...)
}

func (l RollbarLogger) print(level, msg string, e entry) {
	l.std.Printf("%s %s", level, msg)
	if e.err != nil {
		l.std.Printf("%+v\n", e.err)
	}
	if e.actor != nil {
		l.std.Printf("user: %s (%s)\n", e.actor.Email, e.actor.Role)
	}
	if e.extras != nil {
		l.std.Printf("%+v\n", e.extras)
	}
	for _, o := range e.other {
		l.std.Printf("%+v\n", o)
	}
}

func (l RollbarLogger) log(level, msg string, args []interface{}) {
	if level == rollbar.DEBUG && !l.debug {
		return
	}
	e := parseArgs(args)
	if level != rollbar.DEBUG {
		l.report(level, msg, e)
	}
	l.print(level, msg, e)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }

func (l RollbarLogger) Info(msg string, args ...interface{}) { l.log(rollbar.INFO, msg, args) }

func (l RollbarLogger) Warn(msg string, args ...interface{}) { l.log(rollbar.WARN, msg, args) }

func (l RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

// Fatal reports msg, waits for the report to be sent and exits.
func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
