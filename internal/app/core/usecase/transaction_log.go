package usecase

import (
	"context"
	"crypto/rand"
	"io"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// TransactionLog 只能附加的交易紀錄
//
// 負責分配 ID 與時間戳，實際寫入交給 TransactionStore。
type TransactionLog struct {
	store TransactionStore
	clock Clock

	// ulid.Monotonic 非 thread-safe，需要鎖
	mu      sync.Mutex
	entropy io.Reader
}

// NewTransactionLog 建立 TransactionLog
//
// 參數:
//
//	store: 非交易讀取使用的 TransactionStore
//	clock: 時間來源
func NewTransactionLog(store TransactionStore, clock Clock) *TransactionLog {
	return &TransactionLog{
		store:   store,
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Append 分配 ID 與時間戳後寫入
//
// 參數:
//
//	ctx: 上下文
//	store: Unit of Work 內的 TransactionStore
//	tran: 交易紀錄 (Timestamp 為零值時使用目前時間)
//
// 回傳:
//
//	error: 儲存錯誤 (StorageError)
func (l *TransactionLog) Append(ctx context.Context, store TransactionStore, tran *domain.Transaction) error {
	now := l.clock.Now()
	if tran.Timestamp.IsZero() {
		tran.Timestamp = now
	}

	id, err := l.newID(now.UnixMilli())
	if err != nil {
		return domain.WrapStorage("append transaction", err)
	}
	tran.ID = id

	if err := store.Append(ctx, tran); err != nil {
		return domain.WrapStorage("append transaction", err)
	}
	return nil
}

// FindByAccount 依寫入順序回傳帳戶的交易紀錄，帳戶不存在時回傳空 slice
func (l *TransactionLog) FindByAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	trans, err := l.store.FindByAccount(ctx, accountNumber)
	if err != nil {
		return nil, domain.WrapStorage("find transactions", err)
	}
	if trans == nil {
		trans = []*domain.Transaction{}
	}
	return trans, nil
}

func (l *TransactionLog) newID(ms int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, err := ulid.New(uint64(ms), l.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
