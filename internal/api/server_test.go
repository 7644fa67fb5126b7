package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/checkpoint"
	"github.com/marketintel/engine/internal/domain"
)

func seededServer(t *testing.T) (*Server, string) {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	state := domain.NewGraphState("0xabc", time.Now())
	threadID := state.RunID.String()

	snap, err := checkpoint.EncodeState(threadID, "ingestion", state, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), snap))

	snap2, err := checkpoint.EncodeState(threadID, "selection", state, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), snap2))

	return NewServer(Config{Host: "127.0.0.1", Port: 0, Checkpoints: store}), threadID
}

func TestCheckpointHandler_ReturnsLatestSnapshot(t *testing.T) {
	s, threadID := seededServer(t)

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+threadID+"/checkpoint", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "selection", body["node_name"])
}

func TestCheckpointHandler_UnknownThreadReturnsNotFound(t *testing.T) {
	s, _ := seededServer(t)

	req := httptest.NewRequest(http.MethodGet, "/analyses/unknown-thread/checkpoint", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryHandler_ReturnsEveryCheckpointInOrder(t *testing.T) {
	s, threadID := seededServer(t)

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+threadID+"/history", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ThreadID    string `json:"thread_id"`
		Checkpoints []struct {
			NodeName string `json:"node_name"`
		} `json:"checkpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Checkpoints, 2)
	assert.Equal(t, "ingestion", body.Checkpoints[0].NodeName)
	assert.Equal(t, "selection", body.Checkpoints[1].NodeName)
}

func TestHealthHandler(t *testing.T) {
	s, _ := seededServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
