package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsecure/ledger-core/internal/app/core/adapter/out/memory"
	"github.com/finsecure/ledger-core/internal/app/core/domain"
	"github.com/finsecure/ledger-core/internal/app/core/usecase"
)

var testTime = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// seqNumbers 依序產生可預期的帳號
type seqNumbers struct{ n atomic.Int64 }

func (g *seqNumbers) Next() string {
	return fmt.Sprintf("2026%06d", g.n.Add(1))
}

// captureNotifier 把入隊的通知收進 slice 供斷言
type captureNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (c *captureNotifier) Enqueue(n domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureNotifier) all() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

func newTestEngine(t *testing.T) (*usecase.LedgerEngine, *memory.Store, *captureNotifier) {
	t.Helper()
	store := memory.NewStore()
	notifier := &captureNotifier{}
	engine := usecase.NewLedgerEngine(store, notifier,
		usecase.WithClock(fixedClock{t: testTime}),
		usecase.WithNumberGenerator(&seqNumbers{}),
	)
	return engine, store, notifier
}

func createRequest(name, email string) domain.CreateAccountRequest {
	return domain.CreateAccountRequest{
		FirstName:  name,
		MiddleName: "Q",
		LastName:   "Tester",
		Email:      email,
		Phone:      "0911222333",
	}
}

func mustCreate(t *testing.T, engine *usecase.LedgerEngine, name, email string) string {
	t.Helper()
	resp := engine.CreateAccount(context.Background(), createRequest(name, email))
	require.Equal(t, domain.CodeAccountCreated, resp.Code)
	require.NotNil(t, resp.Account)
	return resp.Account.Number
}

func mustCredit(t *testing.T, engine *usecase.LedgerEngine, number string, amount int64) {
	t.Helper()
	resp := engine.CreditAccount(context.Background(), number, decimal.NewFromInt(amount))
	require.Equal(t, domain.CodeAccountCredited, resp.Code)
}

func balanceOf(t *testing.T, engine *usecase.LedgerEngine, number string) decimal.Decimal {
	t.Helper()
	resp := engine.BalanceEnquiry(context.Background(), number)
	require.Equal(t, domain.CodeAccountFound, resp.Code)
	return resp.Account.Balance
}

func TestCreateAccount(t *testing.T) {
	t.Parallel()
	engine, _, notifier := newTestEngine(t)

	resp := engine.CreateAccount(context.Background(), createRequest("Ada", "Ada@Example.com"))

	assert.Equal(t, domain.CodeAccountCreated, resp.Code)
	assert.Equal(t, domain.CodeAccountCreated.Message(), resp.Message)
	require.NotNil(t, resp.Account)
	assert.Equal(t, "2026000001", resp.Account.Number)
	assert.Equal(t, "Ada Q Tester", resp.Account.Name)
	assert.True(t, resp.Account.Balance.IsZero())

	// 持久化成功後要入隊開戶通知 收件人為正規化後的 Email
	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].Recipient)
	assert.Contains(t, sent[0].Subject, "Created")
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	t.Parallel()
	engine, _, notifier := newTestEngine(t)

	mustCreate(t, engine, "Ada", "ada@example.com")
	before := len(notifier.all())

	// 大小寫不同的同一信箱也要擋下來
	resp := engine.CreateAccount(context.Background(), createRequest("Eve", "ADA@example.com"))

	assert.Equal(t, domain.CodeAccountExists, resp.Code)
	assert.Nil(t, resp.Account)
	assert.Len(t, notifier.all(), before, "failed create must not notify")
}

func TestCreateAccountEmptyNames(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)

	req := createRequest("Ada", "ada@example.com")
	req.MiddleName = "   "
	resp := engine.CreateAccount(context.Background(), req)

	assert.Equal(t, domain.CodeInvalidRequest, resp.Code)
	assert.Nil(t, resp.Account)
}

// 帳號產生器撞號時必須換號重試 不得覆蓋既有帳戶
func TestCreateAccountNumberCollisionRetries(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)

	first := mustCreate(t, engine, "Ada", "ada@example.com")
	assert.Equal(t, "2026000001", first)

	// 同一個 seqNumbers 實例繼續遞增，不會真的撞號，
	// 撞號路徑由固定回傳同一號碼的產生器驗證
	store := memory.NewStore()
	engine2 := usecase.NewLedgerEngine(store, &captureNotifier{},
		usecase.WithClock(fixedClock{t: testTime}),
		usecase.WithNumberGenerator(stuckNumbers{}),
	)
	resp := engine2.CreateAccount(context.Background(), createRequest("Ada", "ada@example.com"))
	require.Equal(t, domain.CodeAccountCreated, resp.Code)

	// 第二次開戶每次都拿到同一號碼 重試用盡後回報儲存層異常
	resp = engine2.CreateAccount(context.Background(), createRequest("Eve", "eve@example.com"))
	assert.Equal(t, domain.CodeStoreUnavailable, resp.Code)
}

type stuckNumbers struct{}

func (stuckNumbers) Next() string { return "2026999999" }

func TestBalanceEnquiry(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)

	resp := engine.BalanceEnquiry(context.Background(), "does-not-exist")
	assert.Equal(t, domain.CodeAccountNotExist, resp.Code)
	assert.Nil(t, resp.Account)

	number := mustCreate(t, engine, "Ada", "ada@example.com")
	resp = engine.BalanceEnquiry(context.Background(), number)
	assert.Equal(t, domain.CodeAccountFound, resp.Code)
	require.NotNil(t, resp.Account)
	assert.True(t, resp.Account.Balance.IsZero())
}

func TestNameEnquiry(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)

	assert.Equal(t, domain.CodeAccountNotExist.Message(),
		engine.NameEnquiry(context.Background(), "does-not-exist"))

	number := mustCreate(t, engine, "Ada", "ada@example.com")
	assert.Equal(t, "Ada Q Tester", engine.NameEnquiry(context.Background(), number))
}

func TestCreditAccount(t *testing.T) {
	t.Parallel()
	engine, _, notifier := newTestEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")

	resp := engine.CreditAccount(context.Background(), number, decimal.NewFromInt(100))
	assert.Equal(t, domain.CodeAccountCredited, resp.Code)
	require.NotNil(t, resp.Account)
	assert.True(t, resp.Account.Balance.Equal(decimal.NewFromInt(100)))

	// 開戶 + 入帳 共兩筆通知
	assert.Len(t, notifier.all(), 2)

	// Scenario: 開戶 → 入帳 100 → 查詢餘額 100
	enquiry := engine.BalanceEnquiry(context.Background(), number)
	assert.Equal(t, domain.CodeAccountFound, enquiry.Code)
	assert.True(t, enquiry.Account.Balance.Equal(decimal.NewFromInt(100)))
}

func TestCreditAccountInvalidAmount(t *testing.T) {
	t.Parallel()
	engine, _, notifier := newTestEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")
	before := len(notifier.all())

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-10)} {
		resp := engine.CreditAccount(context.Background(), number, amount)
		assert.Equal(t, domain.CodeInvalidAmount, resp.Code)
		assert.Nil(t, resp.Account)
	}
	assert.Len(t, notifier.all(), before)
	assert.True(t, balanceOf(t, engine, number).IsZero())
}

func TestCreditAccountNotExist(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)

	resp := engine.CreditAccount(context.Background(), "does-not-exist", decimal.NewFromInt(10))
	assert.Equal(t, domain.CodeAccountNotExist, resp.Code)
}

func TestDebitAccount(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")
	mustCredit(t, engine, number, 100)

	resp := engine.DebitAccount(context.Background(), number, decimal.NewFromInt(40))
	assert.Equal(t, domain.CodeAccountDebited, resp.Code)
	require.NotNil(t, resp.Account)
	assert.True(t, resp.Account.Balance.Equal(decimal.NewFromInt(60)))
}

// Scenario: 餘額 100 扣 150 → InsufficientBalance 餘額不變
func TestDebitAccountInsufficient(t *testing.T) {
	t.Parallel()
	engine, _, notifier := newTestEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")
	mustCredit(t, engine, number, 100)
	before := len(notifier.all())

	resp := engine.DebitAccount(context.Background(), number, decimal.NewFromInt(150))

	assert.Equal(t, domain.CodeInsufficientBalance, resp.Code)
	assert.Nil(t, resp.Account)
	assert.True(t, balanceOf(t, engine, number).Equal(decimal.NewFromInt(100)))
	assert.Len(t, notifier.all(), before, "failed debit must not notify")
}

// 扣帳後立刻回補同額 餘額須回到原點
func TestDebitCreditRoundTrip(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")
	mustCredit(t, engine, number, 500)

	require.Equal(t, domain.CodeAccountDebited,
		engine.DebitAccount(context.Background(), number, decimal.NewFromInt(123)).Code)
	require.Equal(t, domain.CodeAccountCredited,
		engine.CreditAccount(context.Background(), number, decimal.NewFromInt(123)).Code)

	assert.True(t, balanceOf(t, engine, number).Equal(decimal.NewFromInt(500)))
}

func TestTransfer(t *testing.T) {
	t.Parallel()
	engine, _, notifier := newTestEngine(t)
	src := mustCreate(t, engine, "Ada", "ada@example.com")
	dst := mustCreate(t, engine, "Eve", "eve@example.com")
	mustCredit(t, engine, src, 500)
	before := len(notifier.all())

	resp := engine.Transfer(context.Background(), src, dst, decimal.NewFromInt(500))

	assert.Equal(t, domain.CodeTransferSuccess, resp.Code)
	// 雙帳戶操作採最小揭露 成功結果不帶快照
	assert.Nil(t, resp.Account)

	assert.True(t, balanceOf(t, engine, src).IsZero())
	assert.True(t, balanceOf(t, engine, dst).Equal(decimal.NewFromInt(500)))

	// 來源一筆扣帳通知、目的一筆入帳通知
	sent := notifier.all()[before:]
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Subject, "Debit")
	assert.Contains(t, sent[1].Subject, "Credit")
}

func TestTransferValidation(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)
	src := mustCreate(t, engine, "Ada", "ada@example.com")
	dst := mustCreate(t, engine, "Eve", "eve@example.com")
	mustCredit(t, engine, src, 100)

	tests := []struct {
		name   string
		src    string
		dst    string
		amount decimal.Decimal
		want   domain.ResponseCode
	}{
		{"non-positive amount", src, dst, decimal.Zero, domain.CodeInvalidAmount},
		{"negative amount", src, dst, decimal.NewFromInt(-1), domain.CodeInvalidAmount},
		{"same account", src, src, decimal.NewFromInt(10), domain.CodeInvalidTransfer},
		{"missing source", "does-not-exist", dst, decimal.NewFromInt(10), domain.CodeAccountNotExist},
		{"missing destination", src, "does-not-exist", decimal.NewFromInt(10), domain.CodeAccountNotExist},
		{"insufficient balance", src, dst, decimal.NewFromInt(101), domain.CodeInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := engine.Transfer(context.Background(), tt.src, tt.dst, tt.amount)
			assert.Equal(t, tt.want, resp.Code)
			assert.Nil(t, resp.Account)
		})
	}

	// 全部被拒 餘額不得有任何變動
	assert.True(t, balanceOf(t, engine, src).Equal(decimal.NewFromInt(100)))
	assert.True(t, balanceOf(t, engine, dst).IsZero())
}

// 併發扣帳總額超過餘額 成功筆數不得超過餘額可支應的上限
func TestConcurrentDebitsNoOverdraft(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")
	mustCredit(t, engine, number, 100)

	const workers = 25
	amount := decimal.NewFromInt(10)

	var succeeded, insufficient atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			switch engine.DebitAccount(context.Background(), number, amount).Code {
			case domain.CodeAccountDebited:
				succeeded.Add(1)
			case domain.CodeInsufficientBalance:
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	// 100 元最多支應 10 筆 10 元扣帳
	assert.Equal(t, int64(10), succeeded.Load())
	assert.Equal(t, int64(workers-10), insufficient.Load())
	assert.True(t, balanceOf(t, engine, number).IsZero())
}

// 任何成功轉帳都必須保持兩戶總額不變
func TestTransferConservation(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)
	a := mustCreate(t, engine, "Ada", "ada@example.com")
	b := mustCreate(t, engine, "Eve", "eve@example.com")
	mustCredit(t, engine, a, 300)
	mustCredit(t, engine, b, 200)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				engine.Transfer(context.Background(), a, b, decimal.NewFromInt(7))
			} else {
				engine.Transfer(context.Background(), b, a, decimal.NewFromInt(5))
			}
		}(i)
	}
	wg.Wait()

	total := balanceOf(t, engine, a).Add(balanceOf(t, engine, b))
	assert.True(t, total.Equal(decimal.NewFromInt(500)),
		"total balance must be conserved, got %s", total)
	assert.True(t, balanceOf(t, engine, a).Sign() >= 0)
	assert.True(t, balanceOf(t, engine, b).Sign() >= 0)
}

// 同一對帳戶的反向併發轉帳 必須在固定鎖序下全數完成不死鎖
func TestOpposedTransfersNoDeadlock(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)
	a := mustCreate(t, engine, "Ada", "ada@example.com")
	b := mustCreate(t, engine, "Eve", "eve@example.com")
	mustCredit(t, engine, a, 1000)
	mustCredit(t, engine, b, 1000)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				engine.Transfer(context.Background(), a, b, decimal.NewFromInt(1))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				engine.Transfer(context.Background(), b, a, decimal.NewFromInt(1))
			}
		}()
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposed transfers deadlocked")
	}

	total := balanceOf(t, engine, a).Add(balanceOf(t, engine, b))
	assert.True(t, total.Equal(decimal.NewFromInt(2000)))
}

// ---- 儲存層故障注入 ----

var errStoreDown = errors.New("store down")

// faultyStore 包裝記憶體儲存 可針對特定操作注入錯誤
type faultyStore struct {
	*memory.Store
	failGet     atomic.Bool
	failUpdate  sync.Map // map[string]bool 針對特定帳號
	updateCalls atomic.Int64
}

func (f *faultyStore) GetByNumber(ctx context.Context, number string) (*domain.Account, bool, error) {
	if f.failGet.Load() {
		return nil, false, errStoreDown
	}
	return f.Store.GetByNumber(ctx, number)
}

func (f *faultyStore) UpdateBalance(ctx context.Context, number string, balance decimal.Decimal) error {
	f.updateCalls.Add(1)
	if _, ok := f.failUpdate.Load(number); ok {
		return errStoreDown
	}
	return f.Store.UpdateBalance(ctx, number, balance)
}

func newFaultyEngine(t *testing.T) (*usecase.LedgerEngine, *faultyStore, *captureNotifier) {
	t.Helper()
	store := &faultyStore{Store: memory.NewStore()}
	notifier := &captureNotifier{}
	engine := usecase.NewLedgerEngine(store, notifier,
		usecase.WithClock(fixedClock{t: testTime}),
		usecase.WithNumberGenerator(&seqNumbers{}),
	)
	return engine, store, notifier
}

func TestCreditStoreUnavailable(t *testing.T) {
	t.Parallel()
	engine, store, notifier := newFaultyEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")
	before := len(notifier.all())

	store.failGet.Store(true)
	resp := engine.CreditAccount(context.Background(), number, decimal.NewFromInt(10))

	assert.Equal(t, domain.CodeStoreUnavailable, resp.Code)
	assert.Len(t, notifier.all(), before)
}

func TestDebitPersistFailureNoNotification(t *testing.T) {
	t.Parallel()
	engine, store, notifier := newFaultyEngine(t)
	number := mustCreate(t, engine, "Ada", "ada@example.com")
	mustCredit(t, engine, number, 100)
	before := len(notifier.all())

	store.failUpdate.Store(number, true)
	resp := engine.DebitAccount(context.Background(), number, decimal.NewFromInt(10))

	assert.Equal(t, domain.CodeStoreUnavailable, resp.Code)
	assert.Len(t, notifier.all(), before)

	// 持久化失敗 餘額不得變動
	store.failUpdate.Delete(number)
	assert.True(t, balanceOf(t, engine, number).Equal(decimal.NewFromInt(100)))
}

// 扣款已落地、入帳補償重試也失敗 → PartialTransferFailure
func TestTransferPartialFailure(t *testing.T) {
	t.Parallel()
	engine, store, notifier := newFaultyEngine(t)
	src := mustCreate(t, engine, "Ada", "ada@example.com")
	dst := mustCreate(t, engine, "Eve", "eve@example.com")
	mustCredit(t, engine, src, 100)
	before := len(notifier.all())
	callsBefore := store.updateCalls.Load()

	store.failUpdate.Store(dst, true)
	resp := engine.Transfer(context.Background(), src, dst, decimal.NewFromInt(60))

	assert.Equal(t, domain.CodePartialTransferFailure, resp.Code)
	assert.Nil(t, resp.Account)
	assert.Len(t, notifier.all(), before, "partial transfer must not notify")

	// 來源寫入一次 + 目的首次與補償重試
	assert.Equal(t, callsBefore+1+1+3, store.updateCalls.Load())

	// 不一致狀態被如實呈現 來源已扣、目的未入
	store.failUpdate.Delete(dst)
	assert.True(t, balanceOf(t, engine, src).Equal(decimal.NewFromInt(40)))
	assert.True(t, balanceOf(t, engine, dst).IsZero())
}

// 補償重試在途中成功 轉帳仍算完成
func TestTransferCompensationRecovers(t *testing.T) {
	t.Parallel()
	engine, store, _ := newFaultyEngine(t)
	src := mustCreate(t, engine, "Ada", "ada@example.com")
	dst := mustCreate(t, engine, "Eve", "eve@example.com")
	mustCredit(t, engine, src, 100)

	// 第一次入帳失敗後解除故障 讓補償重試成功
	store.failUpdate.Store(dst, true)
	go func() {
		time.Sleep(20 * time.Millisecond)
		store.failUpdate.Delete(dst)
	}()

	resp := engine.Transfer(context.Background(), src, dst, decimal.NewFromInt(60))
	assert.Equal(t, domain.CodeTransferSuccess, resp.Code)
	assert.True(t, balanceOf(t, engine, src).Equal(decimal.NewFromInt(40)))
	assert.True(t, balanceOf(t, engine, dst).Equal(decimal.NewFromInt(60)))
}
