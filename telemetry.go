package sdk

import "github.com/perfectpic/perfectpic/sdk/go/telemetry"

// TelemetryHooks expose observability callbacks without forcing dependencies on the caller.
type TelemetryHooks = telemetry.Hooks

// LogLevel encodes the severity for log hooks.
type LogLevel = telemetry.LogLevel

// LogEntry captures structured log details for SDK consumers.
type LogEntry = telemetry.LogEntry

// Metric represents a single observability datapoint.
type Metric = telemetry.Metric

const (
	LogLevelDebug = telemetry.LogLevelDebug
	LogLevelInfo  = telemetry.LogLevelInfo
	LogLevelWarn  = telemetry.LogLevelWarn
	LogLevelError = telemetry.LogLevelError
)
