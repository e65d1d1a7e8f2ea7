package slogx

import (
	"context"
	"log/slog"
)

// TagFail marks uncaught script errors coming from an embedded page. Records
// with this tag bypass the Unsafe filter.
const TagFail = "fail"

// Policy decides which potentially sensitive records reach the logger.
// Unsafe is meant to be switched on for debug builds only: page console
// output, raw JWTs and cookie values can end up in those records.
type Policy struct {
	Logger *slog.Logger
	Unsafe bool
}

// Tagged logs a message emitted by untrusted code under the given tag.
// "fail" always goes through at error level, everything else only when
// Unsafe is set.
func (p Policy) Tagged(ctx context.Context, tag, msg string, args ...any) {
	l := OrDiscard(p.Logger)
	if tag == TagFail {
		l.Log(ctx, slog.LevelError, msg, append(args, "tag", tag)...)
		return
	}
	if !p.Unsafe {
		return
	}
	l.Log(ctx, tagLevel(tag), msg, append(args, "tag", tag)...)
}

// Secret returns v when unsafe logging is on and a fixed mask otherwise.
func (p Policy) Secret(v string) string {
	if p.Unsafe {
		return v
	}
	if v == "" {
		return ""
	}
	return "[redacted]"
}

func tagLevel(tag string) slog.Level {
	switch tag {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug", "verbose":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
