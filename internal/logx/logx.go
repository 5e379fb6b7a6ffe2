package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	sensitiveKeyParts = []string{"private", "secret", "password", "passphrase", "token", "authorization", "seed", "mnemonic"}
	privateKeyPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{128}\b`)
)

// New builds the process logger. Every record passes through the
// sanitizing handler before it reaches w.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		base = slog.NewTextHandler(w, opts)
	case "json":
		base = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("log format must be text or json, got %q", format)
	}
	return slog.New(WrapHandler(base)), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, ScrubString(rec.Message), rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		clean = append(clean, SanitizeAttr(attr))
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

func SanitizeAttr(attr slog.Attr) slog.Attr {
	if isSensitiveKey(strings.ToLower(strings.TrimSpace(attr.Key))) {
		return slog.String(attr.Key, redactedValue)
	}
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindGroup:
		group := value.Group()
		clean := make([]any, 0, len(group))
		for _, a := range group {
			clean = append(clean, SanitizeAttr(a))
		}
		return slog.Group(attr.Key, clean...)
	case slog.KindString:
		return slog.String(attr.Key, ScrubString(value.String()))
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return slog.String(attr.Key, ScrubString(err.Error()))
		}
		return slog.Attr{Key: attr.Key, Value: value}
	default:
		return slog.Attr{Key: attr.Key, Value: value}
	}
}

// ScrubString masks anything shaped like a hex private key.
func ScrubString(s string) string {
	return privateKeyPattern.ReplaceAllString(s, redactedValue)
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
