package logsvc

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/trezcool/workdesk/core"
)

// NewStdLogger returns a std logger printing to stdout and, when conf.LogFile is set, to a rotated file.
func NewStdLogger(prefix string, conf *core.Config) *log.Logger {
	var out io.Writer = os.Stdout
	if conf.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   conf.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	return log.New(out, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
}

// NewLogger builds the application logger; rollbar reporting is off in debug and test modes.
func NewLogger(prefix string, conf *core.Config) *RollbarLogger {
	logger := NewRollbarLogger(NewStdLogger(prefix, conf), conf)
	logger.Enable(!(conf.Debug || conf.TestMode))
	return logger
}

// NewDiscardLogger returns a disabled logger writing nowhere.
func NewDiscardLogger(conf *core.Config) *RollbarLogger {
	logger := NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}
