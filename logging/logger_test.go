package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*FlowLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewLogger(&LoggerConfig{Level: level, Format: "json", Output: buf}), buf
}

func parseLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, sonic.UnmarshalString(line, &m))
		out = append(out, m)
	}
	return out
}

func TestFlowLoggerKeepsArgsAsAttrs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.Info("agents dispatched", "agents", "general_agent", "channel", "chat")

	lines := parseLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "agents dispatched", lines[0]["msg"], "the message is not a format string")
	assert.Equal(t, "general_agent", lines[0]["agents"])
	assert.Equal(t, "chat", lines[0]["channel"])
	assert.NotContains(t, buf.String(), "EXTRA")
}

func TestFlowLoggerDanglingKey(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.Warn("odd args", "left-over")

	lines := parseLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "odd args", lines[0]["msg"])
	assert.Equal(t, "left-over", lines[0]["!BADKEY"])
}

func TestFlowLoggerLevelGate(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")

	lines := parseLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "visible", lines[0]["msg"])
}

func TestFlowLoggerContextualClones(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	scoped := l.WithComponent("engine").WithSession("sess-1", "run-1").WithContext("service", "test")
	scoped.Info("scoped")
	l.Info("bare")

	lines := parseLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "engine", lines[0]["component"])
	assert.Equal(t, "sess-1", lines[0]["session_id"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "test", lines[0]["service"])

	// Cloning must not leak scope back into the parent.
	assert.NotContains(t, lines[1], "component")
	assert.NotContains(t, lines[1], "session_id")
	assert.NotContains(t, lines[1], "service")
}

func TestFlowLoggerDomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.LogToolCall("faq_search", 12*time.Millisecond, true, nil)
	l.LogToolCall("book_search", 5*time.Millisecond, false, errors.New("backend down"))
	l.LogNodeExecution("merge_results", time.Millisecond, true, nil)
	l.LogReasonerCall("openai/gpt-4o-mini", 20*time.Millisecond, false, errors.New("rate limited"))

	lines := parseLines(t, buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "Tool execution completed", lines[0]["msg"])
	assert.Equal(t, "faq_search", lines[0]["tool_name"])
	assert.Equal(t, true, lines[0]["success"])
	assert.Equal(t, "Tool execution failed", lines[1]["msg"])
	assert.Equal(t, "backend down", lines[1]["error"])
	assert.Equal(t, "merge_results", lines[2]["node"])
	assert.Equal(t, "Reasoner call failed", lines[3]["msg"])
	assert.Equal(t, "rate limited", lines[3]["error"])
}

func TestErrorWithStackAttachesTrace(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.ErrorWithStack(errors.New("boom"), "node panicked", "node", "router")

	lines := parseLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "node panicked", lines[0]["msg"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "router", lines[0]["node"])
	assert.Contains(t, lines[0]["stack_trace"], "goroutine")
}

func TestStartTimerLogsDuration(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.StartTimer("persist")()

	lines := parseLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Operation completed", lines[0]["msg"])
	assert.Equal(t, "persist", lines[0]["operation"])
	assert.Contains(t, lines[0], "duration")
}
