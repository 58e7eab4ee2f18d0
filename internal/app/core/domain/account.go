package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account 銀行帳戶
//
// ID 由儲存層在建立時分配，AccountNumber 由呼叫端提供且建立後不可變更。
type Account struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
}

// AmountScale 金額允許的小數位數，與 SQL 欄位 decimal(20,4) 相同
const AmountScale = 4

// ValidAmount 金額非負且小數位數不超過 AmountScale
func ValidAmount(amount decimal.Decimal) bool {
	return !amount.IsNegative() && amount.Equal(amount.Truncate(AmountScale))
}

func NewAccount(accountNumber string, balance decimal.Decimal) *Account {
	return &Account{
		AccountNumber: accountNumber,
		Balance:       balance,
	}
}

// Clone 回傳值拷貝，避免呼叫端改寫儲存層內部狀態
func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}

// Deposit 存款
//
// 參數:
//
//	amount: 存款金額 (可為 0)
//
// 回傳:
//
//	error: ErrInvalidAmount (金額為負或小數位數過多)
func (a *Account) Deposit(amount decimal.Decimal) error {
	if !ValidAmount(amount) {
		return ErrInvalidAmount
	}

	a.Balance = a.Balance.Add(amount)
	return nil
}

// Withdraw 提款
//
// 參數:
//
//	amount: 提款金額 (0 視為合法，仍會記錄交易)
//
// 回傳:
//
//	error: ErrInvalidAmount (金額為負或小數位數過多) 或 ErrInsufficientBalance (餘額不足)
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !ValidAmount(amount) {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(a.Balance) {
		return ErrInsufficientBalance
	}

	a.Balance = a.Balance.Sub(amount)
	return nil
}
