package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"givepool/config"
	"givepool/core/events"
	"givepool/core/types"
	"givepool/native/pool"
	"givepool/observability/logging"
	"givepool/observability/metrics"
	"givepool/rpc"
	"givepool/storage"
)

const envName = "GIVEPOOL_ENV"

// logEmitter bridges engine events onto the structured log stream.
type logEmitter struct {
	log *slog.Logger
}

func (e logEmitter) Emit(evt events.Event) {
	typed, ok := evt.(interface{ Event() *types.Event })
	if !ok || typed.Event() == nil {
		return
	}
	payload := typed.Event()
	attrs := make([]any, 0, len(payload.Attributes)+1)
	attrs = append(attrs, slog.String("event", payload.Type))
	for k, v := range payload.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	e.log.Info("pool event", attrs...)
}

// roleTable is the static, config-driven authorization backend.
type roleTable map[string]map[[20]byte]bool

func (t roleTable) HasRole(addr [20]byte, role string) bool {
	return t[role][addr]
}

func buildRoles(grants map[string][][20]byte) roleTable {
	table := roleTable{}
	for role, addrs := range grants {
		members := make(map[[20]byte]bool, len(addrs))
		for _, addr := range addrs {
			members[addr] = true
		}
		table[role] = members
	}
	return table
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("givepoold", env, &logging.Rotation{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	params, err := cfg.PoolParams()
	if err != nil {
		logger.Error("Invalid pool parameters", slog.Any("error", err))
		os.Exit(1)
	}
	policy, err := cfg.TimePolicy()
	if err != nil {
		logger.Error("Invalid time policy", slog.Any("error", err))
		os.Exit(1)
	}
	vault, err := cfg.Vault()
	if err != nil {
		logger.Error("Invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}
	grants, err := cfg.RoleGrants()
	if err != nil {
		logger.Error("Invalid role grants", slog.Any("error", err))
		os.Exit(1)
	}

	store := pool.NewStore(db)
	engine, err := pool.NewEngine(store, params, policy, vault)
	if err != nil {
		logger.Error("Failed to construct engine", slog.Any("error", err))
		os.Exit(1)
	}
	engine.SetRoleChecker(buildRoles(grants))
	engine.SetEmitter(logEmitter{log: logger})
	engine.SetStatsSink(metrics.NewStatsSink())

	if policy.TestMode {
		logger.Warn("test mode enabled, distribution window is always open")
		seeds, err := cfg.SeedBalances()
		if err != nil {
			logger.Error("Invalid seed balances", slog.Any("error", err))
			os.Exit(1)
		}
		for addr, amount := range seeds {
			if err := engine.Credit(addr, amount); err != nil {
				logger.Error("Failed to seed balance", slog.Any("error", err))
				os.Exit(1)
			}
		}
	}

	token, err := cfg.AuthToken()
	if err != nil {
		logger.Error("Failed to resolve RPC token", slog.Any("error", err))
		os.Exit(1)
	}
	if token == "" {
		logger.Warn("RPC authentication disabled")
	}

	server := rpc.NewServer(engine, rpc.Options{
		AuthToken:     token,
		RatePerMinute: cfg.RPC.RateLimitPerMinute,
		Burst:         cfg.RPC.RateLimitBurst,
		Logger:        logger,
	})

	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		logger.Info("serving metrics", slog.String("addr", cfg.Server.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.RPCAddress)
	}()

	logger.Info("givepoold started",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.Server.RPCAddress),
		slog.String("dataDir", cfg.DataDir),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("RPC server failed", slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("Metrics shutdown failed", slog.Any("error", err))
	}
}
