package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/finsecure/ledger-core/internal/app/core/domain"
	"github.com/finsecure/ledger-core/internal/app/core/usecase"
	"github.com/finsecure/ledger-core/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
// Balance 使用 DECIMAL(19,4) 定點欄位，與 domain 的 decimal 表示一致
type sqlAccount struct {
	Number     string          `gorm:"primaryKey;size:32"`
	FirstName  string          `gorm:"size:64"`
	MiddleName string          `gorm:"size:64"`
	LastName   string          `gorm:"size:64"`
	Email      string          `gorm:"size:128;uniqueIndex"`
	Phone      string          `gorm:"size:32"`
	AltPhone   string          `gorm:"size:32"`
	Balance    decimal.Decimal `gorm:"type:decimal(19,4)"`
	Status     string          `gorm:"size:16"`
	CreatedAt  time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (r *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		Number:     r.Number,
		FirstName:  r.FirstName,
		MiddleName: r.MiddleName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		AltPhone:   r.AltPhone,
		Balance:    r.Balance,
		Status:     domain.AccountStatus(r.Status),
		CreatedAt:  r.CreatedAt,
	}
}

func fromDomain(a *domain.Account) *sqlAccount {
	return &sqlAccount{
		Number:     a.Number,
		FirstName:  a.FirstName,
		MiddleName: a.MiddleName,
		LastName:   a.LastName,
		Email:      a.Email,
		Phone:      a.Phone,
		AltPhone:   a.AltPhone,
		Balance:    a.Balance,
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
	}
}

// Store MySQL 版帳戶儲存
type Store struct {
	client *mysql.Client
}

// NewStore 建立 MySQL 帳戶儲存
func NewStore(client *mysql.Client) *Store {
	return &Store{client: client}
}

// Migrate 建立 accounts 表（開發與壓測環境使用）
func (s *Store) Migrate() error {
	return s.client.DB().AutoMigrate(&sqlAccount{})
}

// ExistsByEmail 檢查 Email 是否已註冊
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.client.DB().WithContext(ctx).
		Model(&sqlAccount{}).
		Where("email = ?", domain.NormalizeEmail(email)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("exists by email: %w", err)
	}
	return count > 0, nil
}

// ExistsByNumber 檢查帳號是否存在
func (s *Store) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var count int64
	err := s.client.DB().WithContext(ctx).
		Model(&sqlAccount{}).
		Where("number = ?", number).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("exists by number: %w", err)
	}
	return count > 0, nil
}

// GetByNumber 依帳號取得帳戶 查無資料回傳 found=false 而非錯誤
func (s *Store) GetByNumber(ctx context.Context, number string) (*domain.Account, bool, error) {
	var row sqlAccount
	err := s.client.DB().WithContext(ctx).
		Where("number = ?", number).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get by number: %w", err)
	}
	return row.toDomain(), true, nil
}

// Insert 寫入新帳戶 唯一鍵衝突轉譯為 domain.ErrDuplicateKey
func (s *Store) Insert(ctx context.Context, acct *domain.Account) error {
	err := s.client.DB().WithContext(ctx).Create(fromDomain(acct)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateBalance 更新既有帳戶的餘額
func (s *Store) UpdateBalance(ctx context.Context, number string, balance decimal.Decimal) error {
	result := s.client.DB().WithContext(ctx).
		Model(&sqlAccount{}).
		Where("number = ?", number).
		Update("balance", balance)
	if result.Error != nil {
		return fmt.Errorf("update balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

var _ usecase.AccountStore = (*Store)(nil)
