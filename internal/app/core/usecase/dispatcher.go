package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finsecure/ledger-core/internal/app/core/domain"
)

// DeadLetter 紀錄送達失敗的通知，供營運端事後檢視
type DeadLetter interface {
	Write(v any) error
}

// Dispatcher 通知派送器
//
// 引擎在鎖外呼叫 Enqueue 把通知放上輸送帶即返回，
// 由背景 worker 逐筆呼叫 NotificationSink 送出
// 單筆最多重試 sendAttempts 次，全數失敗寫入 dead letter 後放棄
// 派送失敗只記 log，永不回滾帳務、永不外顯給呼叫端
type Dispatcher struct {
	sink   NotificationSink
	queue  chan domain.Notification
	dead   DeadLetter
	logger *zap.Logger
	wg     sync.WaitGroup
}

const (
	// sendAttempts 單筆通知的送出嘗試上限
	sendAttempts = 3
	// sendRetryInterval 重試間隔
	sendRetryInterval = 100 * time.Millisecond
)

// DispatcherOption 定義 Dispatcher 的配置選項函數
type DispatcherOption func(*Dispatcher)

// WithDeadLetter 設定 dead letter 落地點
func WithDeadLetter(dead DeadLetter) DispatcherOption {
	return func(d *Dispatcher) { d.dead = dead }
}

// WithDispatcherLogger 注入 zap logger
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithQueueSize 設定輸送帶容量
func WithQueueSize(size int) DispatcherOption {
	return func(d *Dispatcher) { d.queue = make(chan domain.Notification, size) }
}

// NewDispatcher 建立通知派送器
func NewDispatcher(sink NotificationSink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = make(chan domain.Notification, 1024)
	}
	return d
}

// Enqueue 將通知放上輸送帶 非阻塞
// 佇列滿時直接丟棄並記 log，絕不讓帳務操作等待通知
func (d *Dispatcher) Enqueue(n domain.Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, dropping",
			zap.String("id", n.ID.String()),
			zap.String("recipient", n.Recipient))
	}
}

// Start 啟動背景 worker（非同步）
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Wait 等待 worker 結束 應在 ctx 取消後呼叫
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把輸送帶上剩下的通知送完
			d.drain()
			return
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		default:
			return
		}
	}
}

// deliver 送出單筆通知 重試用盡後落入 dead letter
func (d *Dispatcher) deliver(n domain.Notification) {
	var err error
	for i := 0; i < sendAttempts; i++ {
		if i > 0 {
			time.Sleep(sendRetryInterval)
		}
		// 送出本身不受上游 ctx 影響 關閉流程中也要把已入隊的通知送完
		if err = d.sink.Send(context.Background(), n); err == nil {
			return
		}
		d.logger.Warn("notification send failed",
			zap.String("id", n.ID.String()),
			zap.Int("attempt", i+1),
			zap.Error(err))
	}

	d.logger.Error("notification dropped after retries",
		zap.String("id", n.ID.String()),
		zap.String("recipient", n.Recipient),
		zap.Error(err))
	if d.dead != nil {
		if werr := d.dead.Write(n); werr != nil {
			d.logger.Error("dead letter write failed", zap.Error(werr))
		}
	}
}

var _ Notifier = (*Dispatcher)(nil)
