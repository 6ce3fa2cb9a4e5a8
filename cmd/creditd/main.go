package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"creditvault/config"
	"creditvault/core/events"
	nativecommon "creditvault/native/common"
	"creditvault/native/credit"
	"creditvault/observability/logging"
	"creditvault/rpc"
	"creditvault/storage"
)

// blockInterval is the cadence the daemon advances its height/timestamp
// context at. Accrual math only sees these discrete ticks.
const blockInterval = 2 * time.Second

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("creditd: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.Setup("creditd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	minDebt, err := cfg.BigField("MinDebt", cfg.MinDebt)
	if err != nil {
		log.Error("parse debt bounds", "error", err.Error())
		os.Exit(1)
	}
	maxDebt, err := cfg.BigField("MaxDebt", cfg.MaxDebt)
	if err != nil {
		log.Error("parse debt bounds", "error", err.Error())
		os.Exit(1)
	}
	maxLoss, err := cfg.BigField("MaxCumulativeLoss", cfg.MaxCumulativeLoss)
	if err != nil {
		log.Error("parse loss cap", "error", err.Error())
		os.Exit(1)
	}
	liquidity, err := cfg.BigField("PoolLiquidity", cfg.PoolLiquidity)
	if err != nil {
		log.Error("parse pool liquidity", "error", err.Error())
		os.Exit(1)
	}

	now := uint64(time.Now().Unix())
	underlying := common.HexToAddress(cfg.Underlying)
	admin := common.HexToAddress(cfg.Admin)

	fees := credit.Fees{
		InterestBps:                   cfg.FeeInterestBps,
		LiquidationBps:                cfg.FeeLiquidationBps,
		LiquidationExpiredBps:         cfg.FeeLiquidationExpiredBps,
		LiquidationDiscountBps:        cfg.LiquidationDiscountBps,
		LiquidationDiscountExpiredBps: cfg.LiquidationDiscountExpiredBps,
	}
	if err := fees.Validate(); err != nil {
		log.Error("fee configuration rejected", "error", err.Error())
		os.Exit(1)
	}
	limits := credit.Limits{
		MinDebt:                   minDebt,
		MaxDebt:                   maxDebt,
		MaxDebtPerBlockMultiplier: cfg.MaxDebtPerBlockMultiplier,
		MaxCumulativeLoss:         maxLoss,
	}

	pool := credit.NewLedgerPool(liquidity, cfg.PoolRateBps, now)
	oracle := credit.NewTableOracle(underlying)
	engine := credit.NewEngine(underlying, cfg.UnderlyingLTBps, fees, limits)
	engine.SetState(credit.NewStore(db))
	engine.SetOracle(oracle)
	engine.SetPool(pool)
	engine.SetFactory(credit.NewHandleFactory())
	engine.SetSwitchboard(nativecommon.NewSwitchboard())
	engine.SetQuotaKeeper(credit.NewQuotaKeeper())
	engine.SetEmitter(logEmitter{log: log})
	engine.SetBlockContext(1, now)

	configurator := credit.NewConfigurator(engine, admin)

	server := rpc.NewServer(engine, configurator, pool, log)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runBlockClock(ctx, engine, pool)

	go func() {
		log.Info("rpc listening", "component", "rpc", "address", cfg.RPCAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("rpc server stopped", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("rpc shutdown", "error", err.Error())
	}
}

// logEmitter relays engine events onto the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(event events.Event) {
	l.log.Info("engine event", "component", "credit", "event", event.EventType())
}

// runBlockClock advances the engine's block context and pool accrual on a
// fixed cadence until the context is cancelled.
func runBlockClock(ctx context.Context, engine *credit.Engine, pool *credit.LedgerPool) {
	ticker := time.NewTicker(blockInterval)
	defer ticker.Stop()

	height := uint64(1)
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			height++
			now := uint64(tick.Unix())
			pool.Accrue(now)
			engine.SetBlockContext(height, now)
		}
	}
}
