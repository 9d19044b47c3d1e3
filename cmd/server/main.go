package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/lstlabs/vaultgate/internal/config"
	"github.com/lstlabs/vaultgate/internal/handler"
	"github.com/lstlabs/vaultgate/internal/ledger"
	"github.com/lstlabs/vaultgate/internal/middleware"
	"github.com/lstlabs/vaultgate/internal/pkg/logger"
	"github.com/lstlabs/vaultgate/internal/repository"
	"github.com/lstlabs/vaultgate/internal/service"
	"github.com/lstlabs/vaultgate/internal/stream"
	"github.com/lstlabs/vaultgate/internal/vault"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Ledger accounts operated by the vault in standalone mode.
var accounts = vault.Accounts{
	Vault:        common.HexToAddress("0x0000000000000000000000000000000000000f01"),
	Silo:         common.HexToAddress("0x0000000000000000000000000000000000000f02"),
	Reserve:      common.HexToAddress("0x0000000000000000000000000000000000000f03"),
	FeeCollector: common.HexToAddress("0x0000000000000000000000000000000000000f04"),
}

func main() {
	logger.Init("info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Persistence: Redis and Postgres are both optional; everything
	// degrades to in-process stores.
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err != nil {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err)
			redisClient = nil
		} else {
			logger.Info("Connected to Redis")
		}
	}

	var journalRepo service.JournalRepo
	var pgJournal *repository.PostgresJournalRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			pgJournal = repository.NewPostgresJournalRepo(db)
			journalRepo = pgJournal
		} else {
			logger.Error("Failed to connect to DB, journal will be file-only", "error", err)
		}
	}

	var recentSink service.RecentSink
	if redisClient != nil {
		recentSink = repository.NewRedisJournal(redisClient, cfg.Redis.JournalListKey, cfg.Redis.JournalListMax)
	}

	journalSvc, err := service.NewJournalService(cfg.Journal.Dir, cfg.Journal.BufferSize, cfg.Journal.RingSize, journalRepo, recentSink)
	if err != nil {
		log.Fatalf("Failed to initialize journal service: %v", err)
	}

	var idempotencyStore middleware.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = repository.NewRedisIdempotencyStore(redisClient,
			time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
	} else {
		idempotencyStore = middleware.NewInMemIdempotencyStore()
	}

	hub := stream.NewHub()

	// Core vault wiring on in-process ledgers.
	receipts := ledger.NewInMemoryLedger()
	underlying := ledger.NewInMemoryLedger()
	v := vault.New(buildParams(cfg), accounts, vault.Deps{
		Receipts:   receipts,
		Underlying: underlying,
		Sink:       &ledger.LedgerSink{Ledger: underlying, From: accounts.Vault},
		Funding:    &ledger.LedgerFunding{Ledger: underlying, Reserve: accounts.Reserve, Vault: accounts.Vault},
		Emitter:    service.Fanout{journalSvc, hub},
	})

	vaultHandler := handler.NewVaultHandler(v)
	adminHandler := handler.NewAdminHandler(v)
	eventsHandler := handler.NewEventsHandler(journalSvc)

	operators := middleware.NewOperatorTable(cfg.Operators)
	limiters := middleware.NewLimiterRegistry(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "vaultgate", "stream_clients": hub.ClientCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/events", hub.ServeWS)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(operators))
	v1.Use(middleware.RateLimitMiddleware(limiters))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	{
		v1.POST("/deposits", vaultHandler.Deposit)
		v1.GET("/preview/deposit", vaultHandler.PreviewDeposit)
		v1.GET("/preview/redeem", vaultHandler.PreviewRedeem)

		v1.POST("/unstakes", vaultHandler.RequestUnstake)
		v1.POST("/unstakes/cancel", vaultHandler.CancelUnstake)
		v1.POST("/claims", vaultHandler.Claim)
		v1.POST("/claims/early", vaultHandler.EarlyWithdraw)

		v1.GET("/rate", vaultHandler.Rate)
		v1.GET("/silo", vaultHandler.Silo)
		v1.GET("/status", vaultHandler.Status)
		v1.GET("/requests/:owner", vaultHandler.Requests)
		v1.GET("/events", eventsHandler.List)

		admin := v1.Group("/admin")
		{
			admin.POST("/yield", adminHandler.InjectYield)
			admin.POST("/unstakes/mark", adminHandler.MarkForProcessing)
			admin.POST("/unstakes/process", adminHandler.ProcessBatch)
			admin.POST("/unstakes/:id/process", adminHandler.ProcessSingle)

			admin.GET("/custodians", adminHandler.ListCustodians)
			admin.PUT("/custodians", adminHandler.SetCustodian)
			admin.DELETE("/custodians/:wallet", adminHandler.RemoveCustodian)

			admin.POST("/emergency/mode", adminHandler.SetEmergencyMode)
			admin.POST("/emergency/circuit-breaker", adminHandler.TriggerCircuitBreaker)
			admin.POST("/emergency/recovery/schedule", adminHandler.ScheduleRecovery)
			admin.POST("/emergency/recovery/activate", adminHandler.ActivateRecovery)
			admin.POST("/emergency/recovery/deactivate", adminHandler.DeactivateRecovery)
			admin.POST("/emergency/resume", adminHandler.ResumeOperations)
		}
	}

	// Retention cleanup for the database journal.
	cleanupDone := make(chan struct{})
	if pgJournal != nil && cfg.Database.JournalRetentionDays > 0 {
		go func() {
			interval := time.Duration(cfg.Database.CleanupIntervalMins) * time.Minute
			if interval <= 0 {
				interval = time.Hour
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			retention := time.Duration(cfg.Database.JournalRetentionDays) * 24 * time.Hour
			for {
				select {
				case <-ticker.C:
					if err := pgJournal.Cleanup(context.Background(), retention); err != nil {
						logger.Warn("journal cleanup failed", "error", err.Error())
					}
				case <-cleanupDone:
					return
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("VaultGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(cleanupDone)
	journalSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}

func buildParams(cfg *config.Config) vault.Params {
	return vault.Params{
		VestingDuration:    cfg.Vault.Vesting(),
		MaxRateIncreaseBps: cfg.Vault.MaxRateIncreaseBps,
		MaxPriceImpactBps:  cfg.Vault.MaxPriceImpactBps,

		MinDeposit:       parseDecimal(cfg.Vault.MinDeposit),
		MaxGlobalDeposit: parseDecimal(cfg.Limits.MaxGlobalDeposit),
		MaxUserDeposit:   parseDecimal(cfg.Limits.MaxUserDeposit),
		MaxTxBps:         cfg.Limits.MaxTxBps,

		DailyDepositLimit:  parseDecimal(cfg.Limits.DailyDepositLimit),
		DailyWithdrawLimit: parseDecimal(cfg.Limits.DailyWithdrawLimit),
		DailyEarlyLimit:    parseDecimal(cfg.Limits.DailyEarlyLimit),

		MinUnstake:     parseDecimal(cfg.Vault.MinUnstake),
		CooldownPeriod: cfg.Vault.Cooldown(),

		LiquidityThresholdBps: cfg.Silo.LiquidityThresholdBps,
		EarlyWithdrawEnabled:  cfg.Silo.EarlyWithdrawEnabled,
		UnlockFeeBps:          cfg.Silo.UnlockFeeBps,

		MaxCustodians:   cfg.Vault.MaxCustodians,
		MinFloatPercent: decimal.NewFromFloat(cfg.Vault.MinFloatPercent),

		RecoveryDelay: cfg.Emergency.RecoveryDelay(),
	}
}

// parseDecimal treats empty or malformed config values as zero, which
// disables the corresponding limit.
func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		logger.Warn("invalid decimal in config, treating as zero", "value", raw)
		return decimal.Zero
	}
	return d
}
