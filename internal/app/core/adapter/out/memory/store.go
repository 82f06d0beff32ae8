package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/finsecure/ledger-core/internal/app/core/domain"
	"github.com/finsecure/ledger-core/internal/app/core/usecase"
)

// Store 記憶體版帳戶儲存 供測試與本機壓測使用
//
// 結構:
//
//	byNumber: 帳號 → 帳戶
//	byEmail: Email → 帳號（開戶時的唯一性檢查走這張索引）
//
// 進出一律值拷貝，呼叫端拿不到內部指標
type Store struct {
	mu       sync.RWMutex
	byNumber map[string]*domain.Account
	byEmail  map[string]string
}

// NewStore 建立空的記憶體儲存
func NewStore() *Store {
	return &Store{
		byNumber: make(map[string]*domain.Account),
		byEmail:  make(map[string]string),
	}
}

// ExistsByEmail 檢查 Email 是否已註冊
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[domain.NormalizeEmail(email)]
	return ok, nil
}

// ExistsByNumber 檢查帳號是否存在
func (s *Store) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byNumber[number]
	return ok, nil
}

// GetByNumber 依帳號取得帳戶拷貝 查無資料回傳 found=false
func (s *Store) GetByNumber(ctx context.Context, number string) (*domain.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byNumber[number]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

// Insert 寫入新帳戶 帳號或 Email 撞鍵回傳 domain.ErrDuplicateKey
func (s *Store) Insert(ctx context.Context, acct *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNumber[acct.Number]; ok {
		return domain.ErrDuplicateKey
	}
	if _, ok := s.byEmail[acct.Email]; ok {
		return domain.ErrDuplicateKey
	}
	cp := *acct
	s.byNumber[cp.Number] = &cp
	s.byEmail[cp.Email] = cp.Number
	return nil
}

// UpdateBalance 更新既有帳戶的餘額
func (s *Store) UpdateBalance(ctx context.Context, number string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byNumber[number]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Balance = balance
	return nil
}

var _ usecase.AccountStore = (*Store)(nil)
