package observability

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a JSON logrus logger at level. Unknown levels fall back to info.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// DiscardLogger returns a logger that writes nothing. Used as the default
// when a component is built without one.
func DiscardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
