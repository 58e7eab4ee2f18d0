package event

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// TransactionEvent 對外發布的交易事件 (JSON)
type TransactionEvent struct {
	// EventType: transaction.account_creation, transaction.deposit, transaction.withdrawal, transaction.transfer
	EventType           string          `json:"event_type"`
	TransactionID       string          `json:"transaction_id"`
	TransactionType     string          `json:"transaction_type"`
	AccountNumber       string          `json:"account_number"`
	TargetAccountNumber string          `json:"target_account_number,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	BalanceBefore       decimal.Decimal `json:"balance_before"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`
	Timestamp           time.Time       `json:"timestamp"`
}

// NewTransactionEvent 由已 commit 的交易紀錄建立事件
func NewTransactionEvent(tran *domain.Transaction) *TransactionEvent {
	return &TransactionEvent{
		EventType:           "transaction." + strings.ToLower(string(tran.Type)),
		TransactionID:       tran.ID,
		TransactionType:     string(tran.Type),
		AccountNumber:       tran.AccountNumber,
		TargetAccountNumber: tran.TargetAccountNumber,
		Amount:              tran.Amount,
		BalanceBefore:       tran.OldBalance,
		BalanceAfter:        tran.NewBalance,
		Timestamp:           tran.Timestamp,
	}
}

// MultiPublisher 依序發布到多個 publisher，錯誤合併回傳
type MultiPublisher []usecase.EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, trans ...*domain.Transaction) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, trans...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ usecase.EventPublisher = MultiPublisher(nil)
