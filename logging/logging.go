package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

var base = newBase(os.Stderr)

func newBase(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Configure sets the level and output format of the shared logger.
// format is "text" or "json".
func Configure(level, format string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	if out != nil {
		base.SetOutput(out)
	}
	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// NewLogger returns an entry tagged with the given component name.
func NewLogger(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// WithRequestID stores a request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// FromContext adds the request id to log, when ctx carries one.
func FromContext(ctx context.Context, log *logrus.Entry) *logrus.Entry {
	if id := RequestID(ctx); id != "" {
		return log.WithField("request_id", id)
	}
	return log
}
