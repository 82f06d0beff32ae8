package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finsecure/ledger-core/internal/app/core/domain"
)

const (
	// createAttempts 帳號產生器撞號時的重試上限
	createAttempts = 3
	// compensateAttempts 轉帳第二筆寫入失敗時的補償重試上限
	compensateAttempts = 3
	// compensateInterval 補償重試間隔
	compensateInterval = 50 * time.Millisecond
)

// LedgerEngine 是帳務核心引擎
//
// 職責:
//
//	定位帳戶、驗證餘額充足性、在每帳戶鎖的臨界區內原子地變動餘額
//	轉帳橫跨兩筆獨立紀錄，以固定順序雙鎖保證 all-or-nothing
//	持久化成功後才入隊通知，通知失敗永不影響帳務結果
type LedgerEngine struct {
	store    AccountStore
	notifier Notifier
	clock    Clock
	numbers  NumberGenerator
	locks    lockTable
	logger   *zap.Logger
}

// EngineOption 定義 LedgerEngine 的配置選項函數
type EngineOption func(*LedgerEngine)

// WithClock 注入時鐘 測試時可提供固定時間
func WithClock(clock Clock) EngineOption {
	return func(e *LedgerEngine) { e.clock = clock }
}

// WithNumberGenerator 注入帳號產生器
func WithNumberGenerator(gen NumberGenerator) EngineOption {
	return func(e *LedgerEngine) { e.numbers = gen }
}

// WithLogger 注入 zap logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *LedgerEngine) { e.logger = logger }
}

// NewLedgerEngine 建立帳務引擎
//
// 參數:
//
//	store: 帳戶儲存（外部協作者）
//	notifier: 通知入隊端
//	opts: 可選配置（時鐘、帳號產生器、logger）
func NewLedgerEngine(store AccountStore, notifier Notifier, opts ...EngineOption) *LedgerEngine {
	e := &LedgerEngine{
		store:    store,
		notifier: notifier,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.numbers == nil {
		e.numbers = RandomNumberGenerator(e.clock)
	}
	return e
}

// CreateAccount 開戶
// Email 已存在時回傳 AccountExists，不建立帳戶、不發通知
// 持久化確認成功後才入隊開戶通知
func (e *LedgerEngine) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) domain.Response {
	exists, err := e.store.ExistsByEmail(ctx, domain.NormalizeEmail(req.Email))
	if err != nil {
		e.logger.Error("create: email existence check failed", zap.Error(err))
		return domain.NewResponse(domain.CodeStoreUnavailable, nil)
	}
	if exists {
		return domain.NewResponse(domain.CodeAccountExists, nil)
	}

	// 帳號由外部產生器提供，唯一性由儲存層唯一鍵把關
	// 撞號時換號重試，次數用盡視為儲存層異常
	var acct *domain.Account
	for i := 0; i < createAttempts; i++ {
		acct, err = domain.NewAccount(e.numbers.Next(), req, e.clock.Now())
		if err != nil {
			return domain.NewResponse(domain.CodeInvalidRequest, nil)
		}

		err = e.store.Insert(ctx, acct)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicateKey) {
			e.logger.Error("create: insert failed", zap.Error(err))
			return domain.NewResponse(domain.CodeStoreUnavailable, nil)
		}
		e.logger.Warn("create: account number collision, regenerating",
			zap.String("number", acct.Number))
	}
	if err != nil {
		return domain.NewResponse(domain.CodeStoreUnavailable, nil)
	}

	e.notifier.Enqueue(domain.NewCreationNotice(acct))
	return domain.NewResponse(domain.CodeAccountCreated, acct.Snapshot())
}

// BalanceEnquiry 餘額查詢 唯讀、不取鎖
// 與併發異動競爭時可能讀到略舊的值，屬刻意的弱一致性選擇
func (e *LedgerEngine) BalanceEnquiry(ctx context.Context, number string) domain.Response {
	acct, found, err := e.store.GetByNumber(ctx, number)
	if err != nil {
		e.logger.Error("balance enquiry: lookup failed", zap.Error(err))
		return domain.NewResponse(domain.CodeStoreUnavailable, nil)
	}
	if !found {
		return domain.NewResponse(domain.CodeAccountNotExist, nil)
	}
	return domain.NewResponse(domain.CodeAccountFound, acct.Snapshot())
}

// NameEnquiry 姓名查詢 回傳純文字而非結構化結果（沿襲原始契約的不對稱）
func (e *LedgerEngine) NameEnquiry(ctx context.Context, number string) string {
	acct, found, err := e.store.GetByNumber(ctx, number)
	if err != nil || !found {
		return domain.CodeAccountNotExist.Message()
	}
	return acct.FullName()
}

// CreditAccount 入帳
// 在帳戶鎖的臨界區內讀出、加總、持久化，解鎖後才入隊通知
func (e *LedgerEngine) CreditAccount(ctx context.Context, number string, amount decimal.Decimal) domain.Response {
	if amount.Sign() <= 0 {
		return domain.NewResponse(domain.CodeInvalidAmount, nil)
	}

	e.locks.acquire(number)
	acct, resp := e.applyUnderLock(ctx, number, func(a *domain.Account) error {
		return a.Credit(amount)
	})
	e.locks.release(number)

	if resp != nil {
		return *resp
	}

	e.notifier.Enqueue(domain.NewCreditNotice(acct, amount, e.clock.Now()))
	return domain.NewResponse(domain.CodeAccountCredited, acct.Snapshot())
}

// DebitAccount 扣帳
// 餘額檢查與扣款必須在同一次取鎖內完成（read-check-write 原子性），
// 這是本元件的核心正確性保證
func (e *LedgerEngine) DebitAccount(ctx context.Context, number string, amount decimal.Decimal) domain.Response {
	if amount.Sign() <= 0 {
		return domain.NewResponse(domain.CodeInvalidAmount, nil)
	}

	e.locks.acquire(number)
	acct, resp := e.applyUnderLock(ctx, number, func(a *domain.Account) error {
		return a.Debit(amount)
	})
	e.locks.release(number)

	if resp != nil {
		return *resp
	}

	e.notifier.Enqueue(domain.NewDebitNotice(acct, amount, e.clock.Now()))
	return domain.NewResponse(domain.CodeAccountDebited, acct.Snapshot())
}

// applyUnderLock 在已持有帳戶鎖的前提下執行「讀出-變更-持久化」
// 呼叫端負責取鎖與解鎖 回傳值 resp 非 nil 代表操作失敗
func (e *LedgerEngine) applyUnderLock(ctx context.Context, number string, mutate func(*domain.Account) error) (*domain.Account, *domain.Response) {
	acct, found, err := e.store.GetByNumber(ctx, number)
	if err != nil {
		e.logger.Error("mutation: lookup failed", zap.String("number", number), zap.Error(err))
		return nil, respOf(domain.CodeStoreUnavailable)
	}
	if !found {
		return nil, respOf(domain.CodeAccountNotExist)
	}

	if err := mutate(acct); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, respOf(domain.CodeInsufficientBalance)
		}
		return nil, respOf(domain.CodeInvalidAmount)
	}

	if err := e.store.UpdateBalance(ctx, number, acct.Balance); err != nil {
		e.logger.Error("mutation: persist failed", zap.String("number", number), zap.Error(err))
		return nil, respOf(domain.CodeStoreUnavailable)
	}
	return acct, nil
}

// Transfer 轉帳
//
// 流程:
//
//	1. 驗證金額與帳號相異性
//	2. 鎖外探測兩帳戶存在性（任一不存在即拒絕，不取任何鎖）
//	3. 依字典序取得雙鎖，鎖內重讀並重驗來源餘額
//	4. 先持久化扣款、再持久化入帳 第二筆失敗時做短暫補償重試
//	5. 解鎖後各入隊一筆扣帳與入帳通知
//
// 成功結果刻意不帶帳戶快照（雙帳戶操作採最小揭露）
func (e *LedgerEngine) Transfer(ctx context.Context, source, destination string, amount decimal.Decimal) domain.Response {
	if amount.Sign() <= 0 {
		return domain.NewResponse(domain.CodeInvalidAmount, nil)
	}
	if source == destination {
		return domain.NewResponse(domain.CodeInvalidTransfer, nil)
	}

	for _, number := range []string{source, destination} {
		exists, err := e.store.ExistsByNumber(ctx, number)
		if err != nil {
			e.logger.Error("transfer: existence check failed", zap.String("number", number), zap.Error(err))
			return domain.NewResponse(domain.CodeStoreUnavailable, nil)
		}
		if !exists {
			return domain.NewResponse(domain.CodeAccountNotExist, nil)
		}
	}

	e.locks.acquirePair(source, destination)
	src, dst, resp := e.transferUnderLocks(ctx, source, destination, amount)
	e.locks.releasePair(source, destination)

	if resp != nil {
		return *resp
	}

	now := e.clock.Now()
	e.notifier.Enqueue(domain.NewDebitNotice(src, amount, now))
	e.notifier.Enqueue(domain.NewCreditNotice(dst, amount, now))
	return domain.NewResponse(domain.CodeTransferSuccess, nil)
}

// transferUnderLocks 在已持有雙鎖的前提下執行轉帳主體
func (e *LedgerEngine) transferUnderLocks(ctx context.Context, source, destination string, amount decimal.Decimal) (src, dst *domain.Account, resp *domain.Response) {
	src, found, err := e.store.GetByNumber(ctx, source)
	if err != nil {
		e.logger.Error("transfer: source lookup failed", zap.Error(err))
		return nil, nil, respOf(domain.CodeStoreUnavailable)
	}
	if !found {
		return nil, nil, respOf(domain.CodeAccountNotExist)
	}
	dst, found, err = e.store.GetByNumber(ctx, destination)
	if err != nil {
		e.logger.Error("transfer: destination lookup failed", zap.Error(err))
		return nil, nil, respOf(domain.CodeStoreUnavailable)
	}
	if !found {
		return nil, nil, respOf(domain.CodeAccountNotExist)
	}

	// 鎖外的存在性探測不保證餘額 必須在鎖內重驗
	if err := src.Debit(amount); err != nil {
		return nil, nil, respOf(domain.CodeInsufficientBalance)
	}
	if err := dst.Credit(amount); err != nil {
		return nil, nil, respOf(domain.CodeInvalidAmount)
	}

	if err := e.store.UpdateBalance(ctx, source, src.Balance); err != nil {
		// 扣款尚未持久化，帳本仍一致
		e.logger.Error("transfer: source debit persist failed", zap.Error(err))
		return nil, nil, respOf(domain.CodeStoreUnavailable)
	}

	// 扣款已落地 入帳失敗會讓帳本不一致，必須補償重試
	err = e.store.UpdateBalance(ctx, destination, dst.Balance)
	for i := 0; err != nil && i < compensateAttempts; i++ {
		e.logger.Warn("transfer: destination credit persist failed, retrying",
			zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(compensateInterval)
		err = e.store.UpdateBalance(ctx, destination, dst.Balance)
	}
	if err != nil {
		e.logger.Error("transfer: partial transfer, operator attention required",
			zap.String("source", source),
			zap.String("destination", destination),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, nil, respOf(domain.CodePartialTransferFailure)
	}

	return src, dst, nil
}

func respOf(code domain.ResponseCode) *domain.Response {
	r := domain.NewResponse(code, nil)
	return &r
}
