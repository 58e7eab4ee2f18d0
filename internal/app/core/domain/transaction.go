package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType 交易類型
type TransactionType string

const (
	// 開戶 (初始餘額)
	TransactionTypeAccountCreation TransactionType = "ACCOUNT_CREATION"
	// 存款
	TransactionTypeDeposit TransactionType = "DEPOSIT"
	// 提款
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	// 轉帳 (每筆轉帳雙方各一筆)
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeAccountCreation, TransactionTypeDeposit,
		TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

// Transaction 交易紀錄，寫入後不可變更
//
// 只以 AccountNumber 參照所屬帳戶，不持有 Account 本身。
type Transaction struct {
	// ID: 由 TransactionLog 於 Append 時分配 (ULID)
	ID            string          `json:"id"`
	AccountNumber string          `json:"accountNumber"`
	Type          TransactionType `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	OldBalance    decimal.Decimal `json:"oldBalance"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	Amount        decimal.Decimal `json:"amount"`
	// TargetAccountNumber: 只有 TRANSFER 會設定，指向對手帳戶
	TargetAccountNumber string `json:"targetAccountNumber,omitempty"`
}

// NewCreationTransaction 開戶交易 oldBalance 固定為 0
func NewCreationTransaction(account *Account) *Transaction {
	return &Transaction{
		AccountNumber: account.AccountNumber,
		Type:          TransactionTypeAccountCreation,
		OldBalance:    decimal.Zero,
		NewBalance:    account.Balance,
		Amount:        account.Balance,
	}
}

// NewBalanceTransaction 建立存款、提款或轉帳的交易紀錄
//
// 參數:
//
//	txType: 交易類型
//	account: 已更新餘額的帳戶
//	oldBalance: 變更前餘額
//	amount: 交易金額
//	target: 轉帳對手帳號 (非轉帳傳空字串)
//
// 回傳:
//
//	*Transaction: 尚未分配 ID 的交易紀錄
func NewBalanceTransaction(txType TransactionType, account *Account, oldBalance, amount decimal.Decimal, target string) *Transaction {
	return &Transaction{
		AccountNumber:       account.AccountNumber,
		Type:                txType,
		OldBalance:          oldBalance,
		NewBalance:          account.Balance,
		Amount:              amount,
		TargetAccountNumber: target,
	}
}

// Delta 回傳 newBalance - oldBalance
func (t *Transaction) Delta() decimal.Decimal {
	return t.NewBalance.Sub(t.OldBalance)
}

func (t *Transaction) Clone() *Transaction {
	cp := *t
	return &cp
}

// GetLockAccountNumbers 回傳需要鎖定的帳號，依字典序排列以避免死鎖
func GetLockAccountNumbers(numbers ...string) []string {
	// 預先宣告容量，轉帳最多兩個帳號
	ids := make([]string, 0, len(numbers))
	seen := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		ids = append(ids, n)
	}
	slices.Sort(ids)
	return ids
}
