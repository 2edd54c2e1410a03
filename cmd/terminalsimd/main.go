// Command terminalsimd is the entry point for the terminal-graph
// simulation service (spec.md §1-§2): a message-bus-driven microservice
// that maintains an in-memory terminal multigraph and dispatches
// commands against it.
//
// Startup order (SPEC_FULL.md §6): flags -> config -> logger -> telemetry
// -> metrics server -> single-instance rendezvous -> optional --load
// graph deserialize -> dispatcher wiring -> bus adapter connect ->
// blocking run with SIGINT/SIGTERM graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"terminalsim/internal/busadapter"
	"terminalsim/internal/busadapter/amqp"
	"terminalsim/internal/engine"
	"terminalsim/internal/pathcache"
	"terminalsim/internal/singleton"
	storepostgres "terminalsim/internal/store/postgres"
	"terminalsim/internal/terminal"

	"terminalsim/internal/dispatcher"
	"terminalsim/pkg/config"
	"terminalsim/pkg/database"
	"terminalsim/pkg/logger"
	"terminalsim/pkg/metrics"
	"terminalsim/pkg/telemetry"
)

var version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	var host string
	flag.StringVar(&host, "host", "localhost", "message bus host address")
	flag.StringVar(&host, "H", "localhost", "message bus host address (shorthand)")
	var port int
	flag.IntVar(&port, "port", 5672, "message bus port")
	flag.IntVar(&port, "p", 5672, "message bus port (shorthand)")
	var user string
	flag.StringVar(&user, "user", "guest", "message bus username")
	flag.StringVar(&user, "u", "guest", "message bus username (shorthand)")
	var password string
	flag.StringVar(&password, "password", "guest", "message bus password")
	flag.StringVar(&password, "w", "guest", "message bus password (shorthand)")
	var dataPath string
	flag.StringVar(&dataPath, "data-path", "./data", "path to terminal data directory")
	flag.StringVar(&dataPath, "d", "./data", "path to terminal data directory (shorthand)")
	var loadFile string
	flag.StringVar(&loadFile, "load", "", "load graph from file on startup")
	flag.StringVar(&loadFile, "l", "", "load graph from file on startup (shorthand)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("terminalsimd version", version)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	cfg.Bus.Host = host
	cfg.Bus.Port = port
	cfg.Bus.Username = user
	cfg.Bus.Password = password
	cfg.DataPath = dataPath

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
		logger.Log.Error("failed to create data directory", "path", cfg.DataPath, "error", err)
		return 1
	}

	ctx := context.Background()

	var tp *telemetry.Provider
	if cfg.Tracing.Enabled {
		tp, err = telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("failed to init telemetry", "error", err)
		}
	}

	m := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	m.SetServiceInfo(version, cfg.App.Environment)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	inst, err := singleton.Acquire(singleton.Name)
	if err != nil {
		logger.Log.Error("single-instance check failed", "error", err)
		return 1
	}
	defer inst.Release()

	eng := engine.New()

	if cfg.Database.Enabled {
		pdb, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			logger.Log.Error("failed to connect to container store database", "error", err)
			return 1
		}
		defer pdb.Close()

		if cfg.Database.AutoMigrate {
			if err := storepostgres.Migrate(ctx, pdb.Pool()); err != nil {
				logger.Log.Error("failed to migrate container store", "error", err)
				return 1
			}
		}

		eng = engine.NewWithStorageFactory(func(canonicalName string) terminal.Storage {
			return storepostgres.NewStore(pdb, canonicalName)
		})
		logger.Log.Info("persistent container store enabled", "host", cfg.Database.Host, "database", cfg.Database.Database)
	}

	if loadFile != "" {
		abs, _ := filepath.Abs(loadFile)
		data, err := os.ReadFile(abs)
		if err != nil {
			logger.Log.Warn("failed to load graph", "file", abs, "error", err)
		} else if loaded, err := engine.Deserialize(data); err != nil {
			logger.Log.Warn("failed to deserialize graph", "file", abs, "error", err)
		} else {
			eng = loaded
			logger.Log.Info("graph loaded", "file", abs)
		}
	}

	d := dispatcher.New(eng, serverID(cfg))

	if cfg.Cache.Enabled {
		if c, err := pathcache.New(&cfg.Cache); err != nil {
			logger.Log.Warn("failed to init path cache, continuing without it", "error", err)
		} else {
			defer c.Close()
			d.SetCache(c)
			logger.Log.Info("path cache initialized", "driver", cfg.Cache.Driver)
		}
	}

	adapter := amqp.NewWithTopology(
		busadapter.Topology{
			Exchange:           cfg.Bus.Exchange,
			CommandQueue:       cfg.Bus.CommandQueue,
			CommandRoutingKey:  cfg.Bus.CommandRoutingKey,
			ResponseQueue:      cfg.Bus.ResponseQueue,
			ResponseRoutingKey: cfg.Bus.ResponseRoutingKey,
		},
		busadapter.RetryConfig{
			ConnectMaxAttempts: cfg.Bus.ConnectMaxAttempts,
			ConnectBackoffSecs: int(cfg.Bus.ConnectBackoff.Seconds()),
			PublishMaxAttempts: cfg.Bus.PublishMaxAttempts,
			PublishBackoffSecs: int(cfg.Bus.PublishBackoff.Seconds()),
		},
	)

	adapter.OnCommand(func(envelope []byte) {
		resp := d.DispatchEnvelope(context.Background(), envelope)
		if err := adapter.SendResponse(context.Background(), resp); err != nil {
			logger.Log.Warn("failed to publish response", "error", err)
		}
	})
	adapter.OnConnectionChange(func(connected bool) {
		logger.Log.Info("bus connection changed", "connected", connected)
		if !connected {
			m.RecordBusReconnect()
		}
		if m.BusConnectionStatus != nil {
			if connected {
				m.BusConnectionStatus.Set(1)
			} else {
				m.BusConnectionStatus.Set(0)
			}
		}
	})

	if err := adapter.Connect(ctx, cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Username, cfg.Bus.Password); err != nil {
		logger.Log.Error("failed to connect to message bus", "error", err)
		return 1
	}

	logger.Log.Info("terminalsim server started",
		"host", cfg.Bus.Host, "port", cfg.Bus.Port, "data_path", cfg.DataPath, "version", version)

	return waitForShutdown(adapter, tp)
}

func serverID(cfg *config.Config) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", cfg.App.Name, host)
}

func waitForShutdown(adapter *amqp.Adapter, tp *telemetry.Provider) int {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Info("received shutdown signal", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := adapter.Disconnect(); err != nil {
		logger.Log.Warn("failed to disconnect bus adapter", "error", err)
	}
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Log.Warn("failed to shutdown telemetry", "error", err)
		}
	}

	logger.Log.Info("terminalsim server stopped")
	return 0
}
