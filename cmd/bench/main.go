package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	amqp_adapter "github.com/finsecure/ledger-core/internal/app/core/adapter/out/amqp"
	memory_adapter "github.com/finsecure/ledger-core/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/finsecure/ledger-core/internal/app/core/adapter/out/mysql"
	"github.com/finsecure/ledger-core/internal/app/core/domain"
	"github.com/finsecure/ledger-core/internal/app/core/usecase"
	"github.com/finsecure/ledger-core/pkg/journal"
	"github.com/finsecure/ledger-core/pkg/mysql"
	"github.com/finsecure/ledger-core/pkg/rabbitmq"
)

// Config 壓測工具配置
type Config struct {
	Store    string       `yaml:"store"` // "memory" 或 "mysql"
	MySQL    mysql.Config `yaml:"mysql"`
	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`
	Bench struct {
		Accounts    int    `yaml:"accounts"`
		Operations  int    `yaml:"operations"`
		Concurrency int    `yaml:"concurrency"`
		DeadLetter  string `yaml:"dead_letter"`
	} `yaml:"bench"`
}

// opAmount 每筆操作固定金額，方便事後驗證總額守恆
var opAmount = decimal.NewFromInt(10)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := loadConfig(*configPath)

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 儲存層
	var store usecase.AccountStore
	switch cfg.Store {
	case "mysql":
		dbClient, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			logger.Fatal("failed to connect to mysql", zap.Error(err))
		}
		defer dbClient.Close()

		sqlStore := mysql_adapter.NewStore(dbClient)
		if err := sqlStore.Migrate(); err != nil {
			logger.Fatal("failed to migrate", zap.Error(err))
		}
		store = sqlStore
	case "memory":
		store = memory_adapter.NewStore()
	default:
		logger.Fatal("invalid store type", zap.String("store", cfg.Store))
	}

	// 2. 通知下游 未配置 RabbitMQ 時退回 log-only sink
	var sink usecase.NotificationSink
	if cfg.RabbitMQ.URL != "" {
		mqClient, err := rabbitmq.NewClient(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer mqClient.Close()

		sink, err = amqp_adapter.NewSink(mqClient, cfg.RabbitMQ.Queue)
		if err != nil {
			logger.Fatal("failed to init amqp sink", zap.Error(err))
		}
	} else {
		sink = logSink{logger: logger}
	}

	// 3. 通知派送器 + dead letter
	dead, err := journal.Open(cfg.Bench.DeadLetter)
	if err != nil {
		logger.Fatal("failed to open dead letter journal", zap.Error(err))
	}
	defer dead.Close()

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	dispatcher := usecase.NewDispatcher(sink,
		usecase.WithDeadLetter(dead),
		usecase.WithDispatcherLogger(logger),
	)
	dispatcher.Start(dispatchCtx)

	// 4. 帳務引擎
	engine := usecase.NewLedgerEngine(store, dispatcher, usecase.WithLogger(logger))

	numbers := seedAccounts(ctx, engine, cfg.Bench.Accounts, logger)
	runLoad(ctx, engine, numbers, cfg.Bench.Operations, cfg.Bench.Concurrency, logger)
	verifyConservation(ctx, engine, numbers, logger)

	// 關閉: 停止派送器並等它把佇列送完
	cancelDispatch()
	dispatcher.Wait()
}

// seedAccounts 開戶並灌入初始餘額
func seedAccounts(ctx context.Context, engine *usecase.LedgerEngine, n int, logger *zap.Logger) []string {
	numbers := make([]string, 0, n)
	for i := 0; i < n; i++ {
		resp := engine.CreateAccount(ctx, domain.CreateAccountRequest{
			FirstName:  "Bench",
			MiddleName: "Load",
			LastName:   fmt.Sprintf("User%d", i),
			Email:      fmt.Sprintf("bench.user%d@example.com", i),
			Phone:      "0000000000",
		})
		if resp.Code != domain.CodeAccountCreated {
			logger.Fatal("seed: create failed", zap.String("code", string(resp.Code)))
		}
		numbers = append(numbers, resp.Account.Number)

		if r := engine.CreditAccount(ctx, resp.Account.Number, decimal.NewFromInt(1000)); r.Code != domain.CodeAccountCredited {
			logger.Fatal("seed: credit failed", zap.String("code", string(r.Code)))
		}
	}
	logger.Info("seeded accounts", zap.Int("count", len(numbers)))
	return numbers
}

// runLoad 以固定並發數對引擎發射混合操作
func runLoad(ctx context.Context, engine *usecase.LedgerEngine, numbers []string, total, concurrency int, logger *zap.Logger) {
	var wg sync.WaitGroup
	wg.Add(total)
	sem := make(chan struct{}, concurrency)

	var credits, debits, transfers, rejected atomic.Int64

	start := time.Now()
	for i := 0; i < total; i++ {
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			src := numbers[rand.IntN(len(numbers))]
			switch idx % 3 {
			case 0:
				if resp := engine.CreditAccount(ctx, src, opAmount); resp.Code == domain.CodeAccountCredited {
					credits.Add(1)
				} else {
					rejected.Add(1)
				}
			case 1:
				if resp := engine.DebitAccount(ctx, src, opAmount); resp.Code == domain.CodeAccountDebited {
					debits.Add(1)
				} else {
					rejected.Add(1)
				}
			default:
				dst := numbers[rand.IntN(len(numbers))]
				if dst == src {
					dst = numbers[(idx+1)%len(numbers)]
				}
				if resp := engine.Transfer(ctx, src, dst, opAmount); resp.Code == domain.CodeTransferSuccess {
					transfers.Add(1)
				} else {
					rejected.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	logger.Info("load complete",
		zap.Int64("credits", credits.Load()),
		zap.Int64("debits", debits.Load()),
		zap.Int64("transfers", transfers.Load()),
		zap.Int64("rejected", rejected.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("tps", float64(total)/elapsed.Seconds()),
	)
}

// verifyConservation 逐戶查餘額 確認沒有任何帳戶出現負值
func verifyConservation(ctx context.Context, engine *usecase.LedgerEngine, numbers []string, logger *zap.Logger) {
	total := decimal.Zero
	for _, number := range numbers {
		resp := engine.BalanceEnquiry(ctx, number)
		if resp.Code != domain.CodeAccountFound {
			logger.Fatal("verify: enquiry failed", zap.String("number", number))
		}
		if resp.Account.Balance.Sign() < 0 {
			logger.Fatal("verify: negative balance",
				zap.String("number", number),
				zap.String("balance", resp.Account.Balance.String()))
		}
		total = total.Add(resp.Account.Balance)
	}
	logger.Info("balances verified", zap.String("total", total.String()))
}

// logSink 本機開發用的通知下游 只記 log 不實際遞送
type logSink struct {
	logger *zap.Logger
}

func (s logSink) Send(_ context.Context, n domain.Notification) error {
	s.logger.Debug("notification",
		zap.String("id", n.ID.String()),
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject))
	return nil
}

// loadConfig 讀取 yaml 設定並補全預設值 檔案不存在時使用純記憶體預設
func loadConfig(path string) Config {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("failed to parse config: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("failed to read config file: %v", err)
	}

	if cfg.Store == "" {
		cfg.Store = "memory"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.RabbitMQ.Queue == "" {
		cfg.RabbitMQ.Queue = "notification_jobs"
	}
	if cfg.Bench.Accounts == 0 {
		cfg.Bench.Accounts = 100
	}
	if cfg.Bench.Operations == 0 {
		cfg.Bench.Operations = 100000
	}
	if cfg.Bench.Concurrency == 0 {
		cfg.Bench.Concurrency = 100
	}
	if cfg.Bench.DeadLetter == "" {
		cfg.Bench.DeadLetter = "notifications.dead"
	}
	return cfg
}
