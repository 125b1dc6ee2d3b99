// Package notify shows short status messages to the user.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Notifier shows a status message.
type Notifier interface {
	Notify(title, message string)
}

// Desktop posts native desktop notifications and mirrors them to the log.
type Desktop struct {
	log zerolog.Logger
}

// NewDesktop creates a Desktop notifier under appName.
func NewDesktop(appName string, log zerolog.Logger) *Desktop {
	beeep.AppName = appName
	return &Desktop{log: log}
}

func (d *Desktop) Notify(title, message string) {
	d.log.Info().Str("title", title).Msg(message)
	if err := beeep.Notify(title, message, ""); err != nil {
		d.log.Debug().Err(err).Msg("desktop notification failed")
	}
}

// Log only writes notices to the log; used when notifications are disabled.
type Log struct {
	log zerolog.Logger
}

// NewLog creates a Log notifier.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(title, message string) {
	l.log.Info().Str("title", title).Msg(message)
}

// New returns a Desktop notifier when enabled and a Log notifier otherwise.
func New(enabled bool, appName string, log zerolog.Logger) Notifier {
	if enabled {
		return NewDesktop(appName, log)
	}
	return NewLog(log)
}
