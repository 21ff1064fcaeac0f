// Package logging defines the structured, context-aware logger used across
// tenantkeeper, with slog and zap backends.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "tenant provisioned", "tenant_db", db, "tax_id", digits)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Options selects and tunes a backend.
type Options struct {
	Backend string // "slog" (default) or "zap"
	Level   string // debug, info, warn, error
	Format  string // json (default) or console
	Service string
}

// New builds a Logger for the given options writing to stdout.
func New(o Options) (Logger, error) {
	switch strings.ToLower(o.Backend) {
	case "", "slog":
		return newSlog(os.Stdout, o), nil
	case "zap":
		return NewZapLoggerFromOptions(o)
	default:
		return nil, fmt.Errorf("unknown log backend %q", o.Backend)
	}
}

func newSlog(w io.Writer, o Options) *SlogLogger {
	opts := &slog.HandlerOptions{Level: slogLevel(o.Level)}

	var h slog.Handler
	if strings.EqualFold(o.Format, "console") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	l := slog.New(h)
	if o.Service != "" {
		l = l.With("service", o.Service)
	}
	return NewSlogLogger(l)
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Nop discards everything. Handy in tests.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...any) {}
func (Nop) Info(context.Context, string, ...any)  {}
func (Nop) Warn(context.Context, string, ...any)  {}
func (Nop) Error(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                  { return n }
