package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/api"
	"github.com/Aidin1998/talabin/internal/accounts"
	"github.com/Aidin1998/talabin/internal/config"
	"github.com/Aidin1998/talabin/internal/database"
	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/internal/fiat"
	"github.com/Aidin1998/talabin/internal/installments"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/internal/notification"
	"github.com/Aidin1998/talabin/internal/pricing"
	"github.com/Aidin1998/talabin/internal/telemetry"
	"github.com/Aidin1998/talabin/internal/trading"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/internal/ws"
	"github.com/Aidin1998/talabin/pkg/logger"
)

const (
	cachePrefix      = "talabin"
	balanceCacheTTL  = 30 * time.Second
	poolStatInterval = 15 * time.Second
	hubShards        = 4
	hubReplay        = 16
)

// app holds the long lived dependencies shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *gorm.DB
	redis     *redis.Client
	publisher *events.Publisher
	ledger    *ledger.Service
	hub       *ws.Hub
	oracle    *pricing.Oracle
	accounts  *accounts.Service
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	return cfg, nil
}

// newApp opens the database and the optional Redis and Kafka backends.
// withHub also starts the price stream hub.
func newApp(c *cli.Context, withHub bool) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log, db: db}
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(c.Context).Err(); err != nil {
			log.Warn("redis unavailable, continuing without it", zap.String("address", cfg.Redis.Address), zap.Error(err))
			_ = a.redis.Close()
			a.redis = nil
		}
	}

	var sinks []events.Sink
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log))
	}
	var cache ledger.BalanceCache
	if a.redis != nil {
		sinks = append(sinks, events.NewRedisStreamSink(a.redis, cachePrefix, log))
		cache = ledger.NewRedisBalanceCache(a.redis, log, cachePrefix, balanceCacheTTL)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, events.NewLogSink(log))
	}
	a.publisher = events.NewPublisher(log, sinks...)

	a.ledger = ledger.NewService(log, db, cache)
	a.accounts = accounts.NewService(log, a.ledger)

	opts := pricing.Options{Events: a.publisher, RedisPrefix: cachePrefix}
	if a.redis != nil {
		opts.Redis = a.redis
	}
	if withHub {
		a.hub = ws.NewHub(hubShards, hubReplay, log)
		opts.Hub = a.hub
	}
	a.oracle = pricing.NewOracle(log, db, opts)
	return a, nil
}

func (a *app) close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("failed to close event publisher", zap.Error(err))
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func serve(c *cli.Context) error {
	a, err := newApp(c, true)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			a.logger.Warn("failed to flush telemetry", zap.Error(err))
		}
	}()

	if c.Bool("migrate") {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
	}

	installmentSvc := installments.NewService(a.logger, a.ledger, a.publisher)
	if path := c.String("seed-plans"); path != "" {
		if _, err := installmentSvc.SeedPlans(ctx, path); err != nil {
			return err
		}
	}

	receipts, err := fiat.NewDiskReceiptStore(cfg.Wallet.ReceiptDir)
	if err != nil {
		return err
	}
	fiatSvc := fiat.NewService(a.logger, a.ledger, fiat.Config{
		MinDepositAmount:    cfg.Wallet.MinDepositAmount,
		MinWithdrawalAmount: cfg.Wallet.MinWithdrawalAmount,
		FeePercentage:       cfg.Trading.FeePercentage,
		MaxReceiptSize:      cfg.Wallet.MaxReceiptSize,
	}, fiat.Options{
		Notifier: notification.NewSMSClient(cfg.SMS, a.logger),
		Events:   a.publisher,
		Receipts: receipts,
	})

	engine := trading.NewEngine(a.logger, a.ledger, a.oracle, a.publisher, trading.Config{
		FeePercentage:     cfg.Trading.FeePercentage,
		MinPurchaseAmount: cfg.Trading.MinPurchaseAmount,
		AmountStep:        cfg.Trading.AmountStep,
	})

	server, err := api.NewServer(a.logger, cfg.Server, cfg.Tracing.ServiceName, api.Services{
		Verifier:     userauth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer),
		Accounts:     a.accounts,
		Ledger:       a.ledger,
		Oracle:       a.oracle,
		Engine:       engine,
		Fiat:         fiatSvc,
		Installments: installmentSvc,
		Hub:          a.hub,
	})
	if err != nil {
		return err
	}

	go database.ReportPoolStats(ctx, a.db, poolStatInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.hub.Close()
	a.logger.Info("server stopped")
	return nil
}

func migrate(c *cli.Context) error {
	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()
	if err := database.Migrate(a.db); err != nil {
		return err
	}
	a.logger.Info("schema migrated")
	return nil
}

func publishPrice(c *cli.Context) error {
	buy, err := decimal.NewFromString(c.String("buy"))
	if err != nil {
		return fmt.Errorf("invalid buy price: %w", err)
	}
	sell, err := decimal.NewFromString(c.String("sell"))
	if err != nil {
		return fmt.Errorf("invalid sell price: %w", err)
	}

	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()
	price, err := a.oracle.Publish(c.Context, buy, sell, c.String("source"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "published %s buy=%s sell=%s\n", price.ID, price.BuyPrice, price.SellPrice)
	return nil
}

func seedPlans(c *cli.Context) error {
	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()
	n, err := installments.NewService(a.logger, a.ledger, a.publisher).SeedPlans(c.Context, c.String("file"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "seeded %d installment plans\n", n)
	return nil
}

func createUser(c *cli.Context) error {
	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()
	user, err := a.accounts.Register(c.Context, c.String("phone"), c.String("first-name"), c.String("last-name"))
	if err != nil {
		return err
	}
	if c.Bool("staff") {
		if user, err = a.accounts.SetStaff(c.Context, user.ID, true); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "created user %s phone=%s staff=%t\n", user.ID, user.PhoneNumber, user.IsStaff)
	return nil
}

func issueToken(c *cli.Context) error {
	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	user, err := a.accounts.GetByPhone(c.Context, c.String("phone"))
	if err != nil {
		return err
	}
	token, err := userauth.NewVerifier(a.cfg.JWT.Secret, a.cfg.JWT.Issuer).Issue(user.ID, user.IsStaff, c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}
