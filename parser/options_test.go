package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NoOptionsLeavesTelemetryAndDebugNil(t *testing.T) {
	tree, perr := Parse([]byte("my $x = 1;"))
	require.Nil(t, perr)
	assert.Nil(t, tree.Telemetry)
	assert.Nil(t, tree.DebugEvents)
}

func TestParse_WithTelemetryBasic(t *testing.T) {
	tree, perr := Parse([]byte("my $x = 1;\nmy $y = 2;"), WithTelemetryBasic())
	require.Nil(t, perr)
	require.NotNil(t, tree.Telemetry)
	assert.Greater(t, tree.Telemetry.TokenCount, 0)
	assert.Greater(t, tree.Telemetry.EventCount, 0)
	assert.Equal(t, 0, tree.Telemetry.ErrorCount)
	// basic mode never times anything.
	assert.Zero(t, tree.Telemetry.LexTime)
	assert.Zero(t, tree.Telemetry.ParseTime)
	assert.Zero(t, tree.Telemetry.TotalTime)
}

func TestParse_WithTelemetryTiming(t *testing.T) {
	tree, perr := Parse([]byte("my $x = 1;"), WithTelemetryTiming())
	require.Nil(t, perr)
	require.NotNil(t, tree.Telemetry)
	assert.GreaterOrEqual(t, tree.Telemetry.TotalTime, tree.Telemetry.LexTime)
}

func TestParse_WithTelemetryCountsDiagnostics(t *testing.T) {
	tree, perr := Parse([]byte("my $x = 1 2;"), WithTelemetryBasic())
	require.Nil(t, perr)
	require.NotNil(t, tree.Telemetry)
	assert.Equal(t, len(tree.Diagnostics), tree.Telemetry.ErrorCount)
	assert.Greater(t, tree.Telemetry.ErrorCount, 0)
}

func TestParse_WithDebugPathsPopulatesDebugEvents(t *testing.T) {
	tree, perr := Parse([]byte("my $x = 1;"), WithDebugPaths())
	require.Nil(t, perr)
	assert.NotEmpty(t, tree.DebugEvents)
}

func TestParse_WithDebugDetailedPopulatesDebugEvents(t *testing.T) {
	tree, perr := Parse([]byte("my $x = 1;"), WithDebugDetailed())
	require.Nil(t, perr)
	assert.NotEmpty(t, tree.DebugEvents)
}

func TestParserOpt_ConfigDefaults(t *testing.T) {
	config := &ParserConfig{}
	assert.Equal(t, TelemetryOff, config.telemetry)
	assert.Equal(t, DebugOff, config.debug)
	assert.False(t, config.reparseAudit)
}

func TestParserOpt_Composition(t *testing.T) {
	config := &ParserConfig{}
	for _, opt := range []ParserOpt{WithTelemetryTiming(), WithDebugDetailed(), WithReparseAudit()} {
		opt(config)
	}
	assert.Equal(t, TelemetryTiming, config.telemetry)
	assert.Equal(t, DebugDetailed, config.debug)
	assert.True(t, config.reparseAudit)
}
