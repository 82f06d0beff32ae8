package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsecure/ledger-core/internal/app/core/domain"
)

// AccountStore 是帳戶儲存的抽象介面（外部協作者）
// 僅假設單鍵 read-your-writes 一致性，不提供跨鍵交易
// 查無資料一律以 found=false 明確表達，不使用 nil 哨兵值
type AccountStore interface {
	// ExistsByEmail 檢查 Email 是否已註冊
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// ExistsByNumber 檢查帳號是否存在
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	// GetByNumber 依帳號取得帳戶
	GetByNumber(ctx context.Context, number string) (acct *domain.Account, found bool, err error)
	// Insert 寫入新帳戶 唯一鍵衝突時回傳 domain.ErrDuplicateKey
	Insert(ctx context.Context, acct *domain.Account) error
	// UpdateBalance 更新既有帳戶的餘額（餘額是本核心唯一會變動的欄位）
	UpdateBalance(ctx context.Context, number string, balance decimal.Decimal) error
}

// NotificationSink 通知遞送端（外部協作者） 送出失敗絕不回滾任何已完成的帳務異動
type NotificationSink interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Notifier 引擎側的入隊介面 入隊不可阻塞、不可失敗外顯
type Notifier interface {
	Enqueue(n domain.Notification)
}

// Clock 時鐘抽象 測試時可注入固定時間
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 回傳使用系統時間的 Clock
func SystemClock() Clock { return systemClock{} }

// NumberGenerator 帳號產生器抽象 產出的帳號由儲存層的唯一鍵把關
type NumberGenerator interface {
	Next() string
}

// randomNumberGenerator 預設實作: 西元年 + 六位隨機數
type randomNumberGenerator struct {
	clock Clock
}

// RandomNumberGenerator 回傳預設的帳號產生器
func RandomNumberGenerator(clock Clock) NumberGenerator {
	return &randomNumberGenerator{clock: clock}
}

func (g *randomNumberGenerator) Next() string {
	return fmt.Sprintf("%d%06d", g.clock.Now().Year(), rand.IntN(1000000))
}
