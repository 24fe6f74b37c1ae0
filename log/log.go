package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

func NewHandler(w io.Writer, name string, level log.Level) slog.Handler {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           level,
	})
}

// New returns a logger writing to stderr at the given level.
func New(name string, level log.Level) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, name, level))
}

type ctxKey struct{}

// IntoContext adds a logger to a context. Use FromContext to
// pull the logger out.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns a logger from a context.Context;
// if the passed context is nil or holds no logger, we return the
// default slog logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}

	return slog.Default()
}

// SubLogger derives a new logger from an existing one by appending a suffix
// to its prefix.
func SubLogger(base *slog.Logger, suffix string) *slog.Logger {
	cl, ok := base.Handler().(*log.Logger)
	if !ok {
		return base.With("component", suffix)
	}

	prefix := cl.GetPrefix()
	if prefix != "" {
		prefix = prefix + "/" + suffix
	} else {
		prefix = suffix
	}

	sub := cl.With()
	sub.SetPrefix(prefix)
	return slog.New(sub)
}
