package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/domain"
)

func mustUUID() uuid.UUID { return uuid.New() }

func TestStore_RecordFromRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO analysis_recall").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	consensus := domain.Consensus{ConsensusProbability: 0.62, Regime: domain.RegimeModerateConfidence}
	rec := domain.TradeRecommendation{Action: domain.ActionLongYes, Explanation: domain.Explanation{CoreThesis: "momentum favors yes"}}

	err = store.RecordFromRun(context.Background(), "0xabc", "Will X happen?", nil, consensus, rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecallForCondition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "condition_id", "question", "consensus_probability", "regime", "action", "core_thesis", "created_at"}).
		AddRow(mustUUID(), "0xabc", "Will X happen?", 0.55, "moderate-confidence", "LONG_YES", "thesis text", time.Now())

	mock.ExpectQuery("SELECT id, condition_id, question, consensus_probability, regime, action, core_thesis, created_at").
		WithArgs("0xabc", 5).
		WillReturnRows(rows)

	store := NewStore(mock)
	recalls, err := store.RecallForCondition(context.Background(), "0xabc", 5)
	require.NoError(t, err)
	require.Len(t, recalls, 1)
	assert.Equal(t, "0xabc", recalls[0].ConditionID)
	require.NoError(t, mock.ExpectationsWereMet())
}
