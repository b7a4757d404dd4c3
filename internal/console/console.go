// internal/console/console.go
//
// The output sink is the user-visible audit trail of a connection: trust
// decisions, authentication attempts, chain progress and forward setup all
// land here as plain text lines.

package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink is a line-oriented text stream. Lines are also mirrored to logrus at
// debug level so structured logs carry the same trail.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	logger *logrus.Entry
}

// NewSink writes lines to w. A nil w discards output (lines still reach the
// logger).
func NewSink(w io.Writer) *Sink {
	return &Sink{
		w:      w,
		logger: logrus.WithField("component", "console"),
	}
}

// WithField attaches an extra logrus field (e.g. the host nickname) to the
// mirrored log records.
func (s *Sink) WithField(key string, value interface{}) *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Sink{
		w:      s.w,
		logger: s.logger.WithField(key, value),
	}
}

// Linef appends one formatted line to the stream.
func (s *Sink) Linef(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug(line)
	if s.w != nil {
		fmt.Fprintln(s.w, line)
	}
}
