// Package main is the entry point for the hardware monitoring agent.
// It loads the configuration and the connector library, wires the detection
// and collection engine, then runs the monitoring loop either as a Windows
// service or as a standalone foreground process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vitalis-app/hwmon/internal/buffer"
	"github.com/vitalis-app/hwmon/internal/collector"
	"github.com/vitalis-app/hwmon/internal/compute"
	"github.com/vitalis-app/hwmon/internal/config"
	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/detection"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/oscommand"
	"github.com/vitalis-app/hwmon/internal/pipeline"
	"github.com/vitalis-app/hwmon/internal/scheduler"
	"github.com/vitalis-app/hwmon/internal/sender"
	"github.com/vitalis-app/hwmon/internal/service"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "1.0.0"

type options struct {
	configPath     string
	showVersion    bool
	once           bool
	installService bool
	cli            config.CLIOverrides
}

func parseFlags() options {
	var o options
	pflag.StringVarP(&o.configPath, "config", "c", "", "Path to configuration file (default: auto-discover)")
	pflag.BoolVar(&o.showVersion, "version", false, "Show version and exit")
	pflag.BoolVar(&o.once, "once", false, "Run a single cycle and print the snapshots as JSON")
	pflag.BoolVar(&o.installService, "install-service", false, "Install the agent as a Windows service and exit")
	pflag.StringVar(&o.cli.ConnectorsDir, "connectors", "", "Directory holding the connector files")
	pflag.StringVar(&o.cli.ExportURL, "export-url", "", "Snapshot export endpoint")
	pflag.StringVar(&o.cli.Token, "token", "", "Export authentication token")
	pflag.StringVar(&o.cli.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pflag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("hwmon-agent %s\n", version)
		os.Exit(0)
	}

	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadLayered(opts.cli, embeddedConfig, opts.configPath)
	} else {
		cfg, err = config.LoadLayered(opts.cli, embeddedConfig)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	if opts.installService {
		exe, err := os.Executable()
		if err != nil {
			logger.Fatal("Cannot locate executable", zap.Error(err))
		}
		var args []string
		if opts.configPath != "" {
			args = append(args, "--config", opts.configPath)
		}
		if err := service.Install(exe, args...); err != nil {
			logger.Fatal("Service installation failed", zap.Error(err))
		}
		logger.Info("Service installed")
		return
	}

	logger.Info("Starting hardware monitoring agent",
		zap.String("version", version),
		zap.String("connectors", cfg.Connectors.Directory),
		zap.Int("hosts", len(cfg.Hosts)))

	if opts.once {
		snaps := newAgent(context.Background(), cfg, logger).sched.RunOnce(context.Background())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snaps); err != nil {
			logger.Fatal("Failed to print snapshots", zap.Error(err))
		}
		return
	}

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) {
			runAgent(ctx, cfg, logger)
		})
		if err := svc.Run(); err != nil {
			logger.Fatal("Service failed", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	runAgent(ctx, cfg, logger)
	logger.Info("Agent stopped")
}

type agent struct {
	sched *scheduler.Scheduler
}

// newAgent loads the connectors and wires the engine for every configured
// host. Without configured hosts the local machine is monitored.
func newAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) *agent {
	connectors, err := connector.LoadDir(cfg.Connectors.Directory)
	if err != nil {
		logger.Warn("Some connectors could not be loaded", zap.Error(err))
	}
	logger.Info("Connectors loaded", zap.Int("count", len(connectors)))

	facts := collector.NewHostFactsCollector().Collect(ctx)
	logger.Info("Local host",
		zap.String("os", facts.OSName),
		zap.String("version", facts.OSVersion),
		zap.String("kind", string(facts.DeviceKind)))

	hostConfigs := cfg.Hosts
	if len(hostConfigs) == 0 {
		hostConfigs = []config.HostConfig{config.LocalHost()}
	}
	hosts := make([]*telemetry.Manager, 0, len(hostConfigs))
	for _, h := range hostConfigs {
		hosts = append(hosts, telemetry.NewManager(h.Telemetry(facts.DeviceKind)))
	}

	limiter := oscommand.NewLimiter(oscommand.PermitFactory(int64(cfg.Collection.SSHPermits)), cfg.Collection.PermitTimeout.Duration)
	registry := collector.NewRegistry(logger, oscommand.NewExecutor(logger, limiter))

	engine := detection.NewEngine(logger, registry, version)
	jobs := pipeline.NewJobRunner(logger, registry, compute.New(logger, nil), cfg.Collection.RetryDelay.Duration)
	cycle := pipeline.NewCycle(logger, detection.NewStrategy(logger, engine), jobs)

	return &agent{sched: scheduler.New(cycle, hosts, connectors, cfg.Collection, logger)}
}

// runAgent starts the monitoring loop and blocks until ctx is cancelled.
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	a := newAgent(ctx, cfg, logger)

	if cfg.Export.Enabled() {
		buf, err := buffer.New(cfg.Export.BufferDir, cfg.Export.BufferMaxSizeMB, logger)
		if err != nil {
			logger.Fatal("Failed to initialize buffer", zap.Error(err))
		}
		snd := sender.New(cfg.Export, logger, buf)
		snd.FlushBuffer(ctx)
		a.sched.OnBatchReady(func(batch []models.HostSnapshot) {
			snd.Send(ctx, batch)
		})
	} else {
		a.sched.OnBatchReady(func(batch []models.HostSnapshot) {
			for _, snap := range batch {
				logger.Info("Host snapshot",
					zap.String("host", snap.HostID),
					zap.Int("monitors", len(snap.Monitors)))
			}
		})
	}

	logger.Info("Agent running", zap.Duration("interval", cfg.Collection.Interval.Duration))
	a.sched.Start(ctx)
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
