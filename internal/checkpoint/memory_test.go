package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/domain"
)

func TestMemoryStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := domain.NewGraphState("0xabc", time.Now())
	snap1, err := EncodeState("0xabc", "ingestion", state, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, snap1))

	state.ActiveAgents = []string{"market_microstructure"}
	snap2, err := EncodeState("0xabc", "selection", state, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, snap2))

	latest, err := store.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "selection", latest.NodeName)

	all, err := store.List(ctx, "0xabc")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ingestion", all[0].NodeName)
	assert.Equal(t, "selection", all[1].NodeName)
}

func TestMemoryStore_GetUnknownThread(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEncodeDecodeStateRoundTrip(t *testing.T) {
	state := domain.NewGraphState("0xdef", time.Now())
	snap, err := EncodeState("0xdef", "ingestion", state, time.Now())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, snap.SchemaVersion)

	decoded, err := snap.DecodeState()
	require.NoError(t, err)
	assert.Equal(t, state.ConditionID, decoded.ConditionID)
	assert.Equal(t, state.RunID, decoded.RunID)
}
