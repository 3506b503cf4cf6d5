// Package logrus adapts a *logrus.Entry to kvstore.Logger.
package logrus

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/motti-landau/kvstore"
)

var _ kvstore.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New builds a text logger at level writing to out.
func New(level string, out io.Writer) (LogrusLogger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return LogrusLogger{}, err
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return LogrusLogger{E: logrus.NewEntry(l)}, nil
}

func (l LogrusLogger) Debug(msg string, f kvstore.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f kvstore.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f kvstore.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f kvstore.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
