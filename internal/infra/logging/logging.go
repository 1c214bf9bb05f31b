// File: internal/infra/logging/logging.go
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"ai-reply-assistant/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return NewWithWriter(cfg, dev, os.Stdout)
}

func NewWithWriter(cfg config.LogConfig, dev bool, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		base = zerolog.New(out).Level(level).With().Timestamp().Logger()
	} else {
		base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// keep the first 100 per second, then 1 in 100; errors are never sampled
		sampled := base.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BurstSampler{Burst: 100, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 100}},
			DebugSampler: &zerolog.BurstSampler{Burst: 100, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 100}},
			InfoSampler:  &zerolog.BurstSampler{Burst: 100, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 100}},
		})
		return &sampled
	}
	return &base
}

// Nop is handy for tests and optional collaborators.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type ctxKey string

const (
	ctxTraceID  ctxKey = "trace_id"
	ctxJobID    ctxKey = "job_id"
	ctxTenantID ctxKey = "tenant_id"
	ctxUserID   ctxKey = "user_id"
)

// With attaches the ids carried in ctx (trace, job, tenant, user) to base.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	for _, k := range []ctxKey{ctxTraceID, ctxJobID, ctxTenantID, ctxUserID} {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			l = l.Str(string(k), v)
		}
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "Generator.Generate")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides message text when not in dev; keeps a short preview.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxJobID, id)
}
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTenantID, id)
}
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}

func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
