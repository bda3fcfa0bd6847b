// Package logging provides the default Logger implementation used when the
// embedder does not supply its own.
package logging

import (
	"log"

	"p2ptransport/application"
)

// LogLogger implements application.Logger over the standard log package.
type LogLogger struct{}

func NewLogLogger() application.Logger {
	return LogLogger{}
}

func (l LogLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}
