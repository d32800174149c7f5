package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/perfectpic/perfectpic/sdk/go/telemetry"
)

func newLogger(w io.Writer, level string, asJSON bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	if !asJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "ppctl").Logger()
}

// telemetryHooks forwards SDK and captcha telemetry into logger.
func telemetryHooks(logger zerolog.Logger) telemetry.Hooks {
	return telemetry.Hooks{
		OnHTTPResponse: func(_ context.Context, req *http.Request, resp *http.Response, err error, latency time.Duration) {
			ev := logger.Debug()
			if err != nil {
				ev = logger.Warn().Err(err)
			} else if resp != nil {
				ev = ev.Int("status", resp.StatusCode)
			}
			ev.Str("method", req.Method).Str("path", req.URL.Path).Dur("latency", latency).Msg("http")
		},
		OnLogEntry: func(_ context.Context, entry telemetry.LogEntry) {
			var ev *zerolog.Event
			switch entry.Level {
			case telemetry.LogLevelDebug:
				ev = logger.Debug()
			case telemetry.LogLevelWarn:
				ev = logger.Warn()
			case telemetry.LogLevelError:
				ev = logger.Error()
			default:
				ev = logger.Info()
			}
			ev.Fields(entry.Fields).Msg(entry.Message)
		},
		OnMetric: func(_ context.Context, m telemetry.Metric) {
			ev := logger.Debug().Str("metric", m.Name).Float64("value", m.Value)
			for k, v := range m.Labels {
				ev = ev.Str(k, v)
			}
			ev.Msg("metric")
		},
	}
}
