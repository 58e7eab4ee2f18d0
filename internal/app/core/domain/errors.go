package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount 金額不合法 (負數，或轉帳時非正數)
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrSameAccount 轉出與轉入為同一帳戶
	ErrSameAccount = errors.New("source and target account are the same")

	// ErrStorage 底層儲存失敗 (非業務邏輯錯誤)
	ErrStorage = errors.New("storage failure")
)

// StorageError 包裝儲存層錯誤，保留原始錯誤供 errors.As 取用
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorage, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is 讓 errors.Is(err, ErrStorage) 成立
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IsBusinessError 判斷是否為業務規則錯誤
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountAlreadyExists) ||
		errors.Is(err, ErrSameAccount)
}

// WrapStorage 業務錯誤原樣回傳，其餘錯誤包成 StorageError
func WrapStorage(op string, err error) error {
	if err == nil || IsBusinessError(err) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
