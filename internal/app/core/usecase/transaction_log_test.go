package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

func TestTransactionLogAppend(t *testing.T) {
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	log := usecase.NewTransactionLog(store.Transactions(), fixedClock{t: testTime})
	ctx := context.Background()

	first := &domain.Transaction{AccountNumber: "A", Type: domain.TransactionTypeDeposit}
	require.NoError(t, log.Append(ctx, store.Transactions(), first))
	assert.Equal(t, testTime, first.Timestamp)
	id, err := ulid.ParseStrict(first.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(testTime.UnixMilli()), id.Time())

	earlier := testTime.Add(-time.Hour)
	second := &domain.Transaction{AccountNumber: "A", Type: domain.TransactionTypeDeposit, Timestamp: earlier}
	require.NoError(t, log.Append(ctx, store.Transactions(), second))
	assert.Equal(t, earlier, second.Timestamp)

	// 同一毫秒內仍然遞增
	assert.Less(t, first.ID, second.ID)

	trans, err := log.FindByAccount(ctx, "A")
	require.NoError(t, err)
	require.Len(t, trans, 2)
	assert.Equal(t, first.ID, trans[0].ID)
	assert.Equal(t, second.ID, trans[1].ID)
}

func TestTransactionLogFindUnknownAccount(t *testing.T) {
	store, _ := memory.NewStore(nil)
	log := usecase.NewTransactionLog(store.Transactions(), usecase.SystemClock{})

	trans, err := log.FindByAccount(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, trans)
	assert.Empty(t, trans)
}
