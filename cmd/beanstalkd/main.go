package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"beanstalk/config"
	"beanstalk/core"
	"beanstalk/core/genesis"
	"beanstalk/observability"
	"beanstalk/observability/logging"
	telemetry "beanstalk/observability/otel"
	"beanstalk/rpc"
	"beanstalk/storage"
)

const (
	serviceName     = "beanstalkd"
	envVar          = "BEANSTALK_ENV"
	genesisPathEnv  = "BEANSTALK_GENESIS"
	shutdownTimeout = 10 * time.Second
	recentEvents    = 1024
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis YAML file (overrides BEANSTALK_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		slog.Error("beanstalkd exited", "error", err)
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if fromEnv := strings.TrimSpace(os.Getenv(envVar)); fromEnv != "" {
		env = fromEnv
	}
	logger := logging.Setup(serviceName, env, cfg.LogFile)
	logger.Info("starting",
		logging.MaskField("listen_address", cfg.ListenAddress),
		logging.MaskField("data_dir", cfg.DataDir),
		logging.MaskField("otel_endpoint", cfg.Telemetry.Endpoint),
		logging.MaskField("otel_headers", cfg.Telemetry.Headers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	protocolCfg, err := cfg.Protocol.Resolve()
	if err != nil {
		return fmt.Errorf("protocol config: %w", err)
	}

	genesisPath := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)
	spec, err := genesis.LoadSpec(genesisPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eventLog := rpc.NewEventLog(recentEvents)
	protocol, head, err := genesis.Open(spec, db, core.Options{
		Bean:           protocolCfg.Bean,
		Reserve:        protocolCfg.Reserve,
		Silo:           protocolCfg.Silo,
		Params:         protocolCfg.Params,
		MinBeanReserve: protocolCfg.MinBeanReserve,
		Pauses:         cfg.Global.Pauses.View(),
		Emitter:        rpc.Fanout{eventLog, observability.Events()},
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("open protocol: %w", err)
	}
	logger.Info("protocol ready", "height", head.Height, "root", head.Root.Hex())

	server, err := rpc.NewServer(rpc.Config{
		Reader:      protocol,
		Events:      eventLog,
		RateLimiter: rpc.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Logger:      logger,
		Addr:        cfg.ListenAddress,
		Timeouts: rpc.Timeouts{
			ReadHeader: cfg.ReadHeaderTimeout(),
			Read:       cfg.ReadTimeout(),
			Write:      cfg.WriteTimeout(),
			Idle:       cfg.IdleTimeout(),
		},
	})
	if err != nil {
		return err
	}

	producer := core.NewProducer(protocol, head, protocolCfg.Keeper, cfg.BlockInterval(), logger)
	serverDone := make(chan error, 1)
	producerDone := make(chan error, 1)
	go func() { serverDone <- server.Start() }()
	go func() { producerDone <- producer.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-serverDone:
		serverDone = nil
	case runErr = <-producerDone:
		producerDone = nil
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("rpc shutdown: %w", err))
	}
	if serverDone != nil {
		runErr = errors.Join(runErr, <-serverDone)
	}
	if producerDone != nil {
		runErr = errors.Join(runErr, <-producerDone)
	}
	logger.Info("stopped", "height", producer.Head().Height)
	return runErr
}

// resolveGenesisPath prefers the flag, then the environment, then the
// config file.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(configValue)
}
