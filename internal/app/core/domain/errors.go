package domain

import "errors"

var (
	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmptyName 姓名欄位為空
	ErrEmptyName = errors.New("name fields must not be empty")

	// ErrDuplicateKey 儲存層唯一鍵衝突（帳號或 Email）
	ErrDuplicateKey = errors.New("duplicate key")
)
