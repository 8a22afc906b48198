package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"energymarket/config"
	"energymarket/core"
	"energymarket/core/events"
	"energymarket/core/genesis"
	"energymarket/crypto"
	"energymarket/observability/logging"
	telemetry "energymarket/observability/otel"
	"energymarket/rpc"
	"energymarket/services/indexer"
	"energymarket/storage"
	"energymarket/storage/journal"
)

const envVar = "ENERGY_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides the config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv(envVar)); override != "" {
		env = override
	}

	logger, closer := logging.Setup("energyd", env, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer closer.Close()

	if err := run(cfg, env, *genesisFlag, logger); err != nil {
		logger.Error("energyd stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, env, genesisOverride string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "energyd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		Node: telemetry.Node{
			Modules:         telemetry.NativeModules,
			Paused:          cfg.Modules.Paused,
			TokenCustodian:  cfg.Modules.TokenCustodian,
			EscrowCustodian: cfg.Modules.EscrowCustodian,
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	supplyCap, err := cfg.Modules.SupplyCapAmount()
	if err != nil {
		return err
	}
	tokenCustodian, err := crypto.ResolvePrincipal(cfg.Modules.TokenCustodian)
	if err != nil {
		return fmt.Errorf("token custodian: %w", err)
	}
	escrowCustodian, err := crypto.ResolvePrincipal(cfg.Modules.EscrowCustodian)
	if err != nil {
		return fmt.Errorf("escrow custodian: %w", err)
	}

	clock := core.NewBlockClock(0, cfg.BlockInterval())
	node, err := core.NewNode(db, core.Options{
		Clock:           clock,
		Logger:          logger,
		SupplyCap:       supplyCap,
		TokenCustodian:  tokenCustodian,
		EscrowCustodian: escrowCustodian,
		Paused:          cfg.Modules.Paused,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	clock.Set(node.Height())

	receipts, err := journal.Open(filepath.Join(cfg.DataDir, "journal.db"), nil)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer receipts.Close()
	node.AddSink("journal", receipts)

	feed := events.NewFeed()
	node.AddSink("feed", feed)

	if cfg.Indexer.Enabled {
		idx, err := indexer.Open(cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer idx.Close()
		if err := idx.CatchUp(ctx, receipts); err != nil {
			return fmt.Errorf("indexer catch-up: %w", err)
		}
		idx.SetSource(receipts)
		node.AddSink("indexer", idx)
	}

	genesisPath := strings.TrimSpace(genesisOverride)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	if genesisPath != "" {
		spec, err := genesis.Load(genesisPath)
		if err != nil {
			return err
		}
		receipt, err := genesis.Apply(ctx, node, spec)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		if receipt != nil {
			logger.Info("genesis applied",
				slog.String("receipt", receipt.ID),
				slog.Int("events", len(receipt.Events)))
		}
	}

	go clock.Run(ctx)

	server, err := rpc.NewServer(node, feed, rpc.Config{
		JWTSecret:          []byte(cfg.RPC.Secret()),
		JWTIssuer:          cfg.RPC.JWTIssuer,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		ReadHeaderTimeout:  time.Duration(cfg.RPC.ReadHeaderTimeoutSecs) * time.Second,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
