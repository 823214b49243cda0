package parser

import "time"

// ParserOpt represents a parser configuration option.
type ParserOpt func(*ParserConfig)

// TelemetryMode controls telemetry collection (production-safe).
type TelemetryMode int

const (
	TelemetryOff    TelemetryMode = iota // Zero overhead (default)
	TelemetryBasic                       // Parse counts only
	TelemetryTiming                      // Parse counts + timing per phase
)

// DebugLevel controls debug tracing (development only).
type DebugLevel int

const (
	DebugOff      DebugLevel = iota // No debug info (default)
	DebugPaths                      // Entry/exit of the top-level source rule
	DebugDetailed                   // Same records as DebugPaths; no per-event tracing
)

// ParserConfig holds parse-time configuration. There is no external
// config file (spec.md §6, "Persisted state: none"); every knob is a
// functional option on Parse.
type ParserConfig struct {
	telemetry    TelemetryMode
	debug        DebugLevel
	reparseAudit bool
}

// WithTelemetryBasic enables basic telemetry (parse counts only).
func WithTelemetryBasic() ParserOpt {
	return func(c *ParserConfig) { c.telemetry = TelemetryBasic }
}

// WithTelemetryTiming enables timing telemetry (counts + timing per phase).
func WithTelemetryTiming() ParserOpt {
	return func(c *ParserConfig) { c.telemetry = TelemetryTiming }
}

// WithDebugPaths enables entry/exit tracing of the top-level source rule
// (development only).
func WithDebugPaths() ParserOpt {
	return func(c *ParserConfig) { c.debug = DebugPaths }
}

// WithDebugDetailed enables DebugDetailed, which records the same entry/exit
// events as DebugPaths (development only).
func WithDebugDetailed() ParserOpt {
	return func(c *ParserConfig) { c.debug = DebugDetailed }
}

// WithReparseAudit makes Reparse additionally run a full reparse and
// compare its SExpr rendering against the spliced result's, logging (never
// failing) any divergence. This is the property-P5 self-check named in
// SPEC_FULL.md's DOMAIN STACK section; it roughly doubles reparse cost
// and is meant for test/CI use, not production latency-sensitive paths.
func WithReparseAudit() ParserOpt {
	return func(c *ParserConfig) { c.reparseAudit = true }
}

// ParseTelemetry holds parser performance metrics (production-safe).
type ParseTelemetry struct {
	LexTime    time.Duration
	ParseTime  time.Duration
	TotalTime  time.Duration
	TokenCount int
	EventCount int
	ErrorCount int
}

// DebugEvent holds one debug trace record (development only).
type DebugEvent struct {
	Timestamp time.Time
	Event     string
	TokenPos  int
	Context   string
}
