package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus 帳戶狀態
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
)

// Account 帳戶實體
// Balance 使用 decimal 定點數表示，絕不使用浮點數，避免累積誤差
// Number 與 CreatedAt 在建立後不可變更
type Account struct {
	Number     string
	FirstName  string
	MiddleName string
	LastName   string
	Email      string
	Phone      string
	AltPhone   string
	Balance    decimal.Decimal
	Status     AccountStatus
	CreatedAt  time.Time
}

// CreateAccountRequest 開戶請求 不含餘額，新帳戶一律從零開始
type CreateAccountRequest struct {
	FirstName  string
	MiddleName string
	LastName   string
	Email      string
	Phone      string
	AltPhone   string
}

// NewAccount 依請求建立新帳戶
//
// 規則:
//
//	姓名三欄位去除前後空白後不得為空
//	Email 一律轉為小寫
//	初始餘額為零，狀態為 ACTIVE
func NewAccount(number string, req CreateAccountRequest, now time.Time) (*Account, error) {
	first := strings.TrimSpace(req.FirstName)
	middle := strings.TrimSpace(req.MiddleName)
	last := strings.TrimSpace(req.LastName)
	if first == "" || middle == "" || last == "" {
		return nil, ErrEmptyName
	}

	return &Account{
		Number:     number,
		FirstName:  first,
		MiddleName: middle,
		LastName:   last,
		Email:      NormalizeEmail(req.Email),
		Phone:      req.Phone,
		AltPhone:   req.AltPhone,
		Balance:    decimal.Zero,
		Status:     AccountStatusActive,
		CreatedAt:  now,
	}, nil
}

// NormalizeEmail Email 正規化 去除前後空白並轉為小寫
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FullName 回傳空白連接的完整姓名
func (a *Account) FullName() string {
	return strings.Join([]string{a.FirstName, a.MiddleName, a.LastName}, " ")
}

// Credit 入帳
func (a *Account) Credit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrAmountMustBePositive
	}

	a.Balance = a.Balance.Add(amount)
	return nil
}

// Debit 扣帳 餘額不足時不改變任何狀態
func (a *Account) Debit(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrAmountMustBePositive
	}

	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Snapshot 回傳帳戶的唯讀快照（姓名、帳號、餘額）
func (a *Account) Snapshot() *AccountInfo {
	return &AccountInfo{
		Name:    a.FullName(),
		Number:  a.Number,
		Balance: a.Balance,
	}
}
