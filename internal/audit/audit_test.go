package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_DisabledSkipsPersist(t *testing.T) {
	l := NewLogger(nil, false)
	err := l.Log(context.Background(), &Event{EventType: EventTypeRunStarted, Severity: SeverityInfo, Action: "run started"})
	require.NoError(t, err)
}

func TestLogger_NilPoolStillLogsStructured(t *testing.T) {
	l := NewLogger(nil, true)
	err := l.LogNodeCompletion(context.Background(), "thread-1", "ingestion", 12, true, "")
	require.NoError(t, err)
}

func TestLogger_AgentFailureWithNilPool(t *testing.T) {
	l := NewLogger(nil, true)
	err := l.LogAgentFailure(context.Background(), "thread-1", "media_sentiment", "timeout")
	require.NoError(t, err)
}

func TestLogger_ConsensusFailed(t *testing.T) {
	l := NewLogger(nil, true)
	err := l.LogConsensusFailed(context.Background(), "thread-1", "disagreement index 0.41 exceeds fail threshold")
	require.NoError(t, err)
}

func TestLogger_QueryWithNilPoolReturnsNil(t *testing.T) {
	l := NewLogger(nil, true)
	events, err := l.Query(context.Background(), &QueryFilters{})
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "7", itoa(7))
	assert.Equal(t, "12", itoa(12))
	assert.Equal(t, "103", itoa(103))
}
