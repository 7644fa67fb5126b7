package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestPublisher_PublishNodeCompletionDeliversEvent(t *testing.T) {
	ns := startTestNATSServer(t)

	pub, err := NewPublisher(Config{NATSURL: ns.ClientURL(), Prefix: "test.analysis."})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	sub, err := pub.nc.Subscribe("test.analysis.>", func(*nats.Msg) {})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	msgs := make(chan *nats.Msg, 1)
	sub2, err := pub.nc.Subscribe("test.analysis.node.completed", func(m *nats.Msg) { msgs <- m })
	require.NoError(t, err)
	defer func() { _ = sub2.Unsubscribe() }()

	require.NoError(t, pub.PublishNodeCompletion(context.Background(), "thread-1", "0xabc", "ingestion", true))

	select {
	case m := <-msgs:
		var evt Event
		require.NoError(t, json.Unmarshal(m.Data, &evt))
		assert.Equal(t, EventNodeCompleted, evt.Type)
		assert.Equal(t, "thread-1", evt.ThreadID)
		assert.Equal(t, "0xabc", evt.ConditionID)
		assert.Equal(t, "ingestion", evt.Node)
		assert.True(t, evt.Success)
		assert.NotEqual(t, "", evt.ID.String())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublisher_PublishNodeFailureUsesFailedEventType(t *testing.T) {
	ns := startTestNATSServer(t)

	pub, err := NewPublisher(Config{NATSURL: ns.ClientURL(), Prefix: "test.analysis."})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	msgs := make(chan *nats.Msg, 1)
	sub, err := pub.nc.Subscribe("test.analysis.node.failed", func(m *nats.Msg) { msgs <- m })
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, pub.PublishNodeCompletion(context.Background(), "thread-2", "0xdef", "consensus", false))

	select {
	case m := <-msgs:
		var evt Event
		require.NoError(t, json.Unmarshal(m.Data, &evt))
		assert.Equal(t, EventNodeFailed, evt.Type)
		assert.False(t, evt.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublisher_NilPublisherPublishIsNoop(t *testing.T) {
	var pub *Publisher
	assert.NoError(t, pub.Publish(context.Background(), Event{Type: EventRunStarted}))
	assert.NoError(t, pub.Close())
}
