package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func transferPair() []*domain.Transaction {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return []*domain.Transaction{
		{
			ID: "01HZX", AccountNumber: "A", Type: domain.TransactionTypeTransfer, Timestamp: ts,
			OldBalance: decimal.NewFromInt(100), NewBalance: decimal.NewFromInt(70), Amount: decimal.NewFromInt(30),
			TargetAccountNumber: "B",
		},
		{
			ID: "01HZY", AccountNumber: "B", Type: domain.TransactionTypeTransfer, Timestamp: ts,
			OldBalance: decimal.NewFromInt(0), NewBalance: decimal.NewFromInt(30), Amount: decimal.NewFromInt(30),
			TargetAccountNumber: "A",
		},
	}
}

func TestNewTransactionEvent(t *testing.T) {
	tran := transferPair()[0]
	ev := NewTransactionEvent(tran)

	assert.Equal(t, "transaction.transfer", ev.EventType)
	assert.Equal(t, "TRANSFER", ev.TransactionType)
	assert.Equal(t, "B", ev.TargetAccountNumber)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "70", m["balance_after"])
	assert.Equal(t, "01HZX", m["transaction_id"])

	creation := NewTransactionEvent(&domain.Transaction{Type: domain.TransactionTypeAccountCreation})
	assert.Equal(t, "transaction.account_creation", creation.EventType)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByAccount(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), transferPair()...))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "A", string(w.msgs[0].Key))
	assert.Equal(t, "B", string(w.msgs[1].Key))

	var ev TransactionEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &ev))
	assert.Equal(t, "01HZY", ev.TransactionID)
	assert.True(t, ev.BalanceAfter.Equal(decimal.NewFromInt(30)))

	w.err = errors.New("leader not available")
	assert.Error(t, p.Publish(context.Background(), transferPair()...))

	assert.NoError(t, p.Publish(context.Background()))
}

type recordingPublisher struct {
	mu    sync.Mutex
	trans []*domain.Transaction
	err   error
}

func (r *recordingPublisher) Publish(ctx context.Context, trans ...*domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trans = append(r.trans, trans...)
	return r.err
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trans)
}

func TestMultiPublisher(t *testing.T) {
	ok := &recordingPublisher{}
	broken := &recordingPublisher{err: errors.New("down")}

	err := MultiPublisher{broken, ok}.Publish(context.Background(), transferPair()...)
	assert.Error(t, err)
	assert.Equal(t, 2, ok.count())
	assert.Equal(t, 2, broken.count())
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	next := &recordingPublisher{}
	d := NewDispatcher(next, 10, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Publish(ctx, transferPair()...))
	}
	d.Start(ctx)
	cancel()
	d.Wait()

	assert.Equal(t, 6, next.count())
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{}, 1, time.Second, zap.NewNop())

	require.NoError(t, d.Publish(context.Background(), transferPair()...))
	assert.ErrorIs(t, d.Publish(context.Background(), transferPair()...), ErrQueueFull)
	assert.NoError(t, d.Publish(context.Background()))
}
