package usecase

import (
	"context"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// AccountStore 帳戶儲存介面，以帳號 (自然鍵) 查詢
type AccountStore interface {
	// List 列出所有帳戶
	List(ctx context.Context) ([]*domain.Account, error)
	// FindByNumber 依帳號查詢，不存在回傳 domain.ErrAccountNotFound
	FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// FindForUpdate 依帳號查詢並鎖定該列直到交易結束
	FindForUpdate(ctx context.Context, accountNumber string) (*domain.Account, error)
	// Create 寫入新帳戶並分配 ID，帳號重複回傳 domain.ErrAccountAlreadyExists
	Create(ctx context.Context, account *domain.Account) error
	// Update 更新餘額
	Update(ctx context.Context, account *domain.Account) error
	// Delete 刪除帳戶並連帶刪除其交易紀錄
	Delete(ctx context.Context, accountNumber string) error
}

// TransactionStore 交易紀錄儲存介面，只能新增不能修改
type TransactionStore interface {
	Append(ctx context.Context, tran *domain.Transaction) error
	// FindByAccount 依寫入順序回傳，查無資料回傳空 slice
	FindByAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error)
}

// Repository 一組可在同一個 Unit of Work 內使用的儲存介面
type Repository interface {
	Accounts() AccountStore
	Transactions() TransactionStore
}

// UnitOfWork 交易邊界
//
// fn 回傳 nil 時所有寫入一起 commit，回傳錯誤時全部 rollback。
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// Store 帳本儲存層：非交易讀取 + Unit of Work
type Store interface {
	Repository
	UnitOfWork
}

// EventPublisher 交易紀錄 commit 後對外發布
type EventPublisher interface {
	Publish(ctx context.Context, trans ...*domain.Transaction) error
}
