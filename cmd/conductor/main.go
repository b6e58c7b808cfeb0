// Conductor Core - Laboratory Orchestration Engine
//
// This is the main entry point for the Conductor Core application.
// Conductor executes long-running cancellable actions against lab
// instruments, arbitrates device access, and sequences actions into
// multi-step runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/oakmere/conductor-core/migrations"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/admission"
	"github.com/oakmere/conductor-core/internal/api"
	"github.com/oakmere/conductor-core/internal/device"
	"github.com/oakmere/conductor-core/internal/drivers/plc"
	"github.com/oakmere/conductor-core/internal/drivers/sim"
	"github.com/oakmere/conductor-core/internal/events"
	"github.com/oakmere/conductor-core/internal/execution"
	"github.com/oakmere/conductor-core/internal/infrastructure/config"
	"github.com/oakmere/conductor-core/internal/infrastructure/database"
	"github.com/oakmere/conductor-core/internal/infrastructure/logging"
	"github.com/oakmere/conductor-core/internal/infrastructure/mqtt"
	"github.com/oakmere/conductor-core/internal/infrastructure/telemetry"
	"github.com/oakmere/conductor-core/internal/registers"
	"github.com/oakmere/conductor-core/internal/run"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runApp(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runApp is the actual application logic, separated from main for
// testability. Deferred Close calls unwind in reverse startup order so
// the API stops accepting work before the engine drains.
func runApp(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Conductor Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var telemetryClient *telemetry.Client
	telemetryClient, err = telemetry.Connect(cfg.Telemetry)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		telemetryClient = nil
		log.Info("telemetry disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing telemetry connection")
			telemetryClient.Close()
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"bucket", cfg.Telemetry.Bucket,
		)
	}

	// Action kind catalogue
	actions := action.NewRegistry()
	if err := sim.RegisterKinds(actions); err != nil {
		return fmt.Errorf("registering simulated action kinds: %w", err)
	}
	if cfg.Registers.TablePath != "" {
		if err := plc.RegisterKinds(actions); err != nil {
			return fmt.Errorf("registering PLC action kinds: %w", err)
		}
	}
	log.Info("action kinds registered", "kinds", actions.Count())

	// Device registry from config
	devices := device.NewRegistry()
	if err := registerDevices(cfg, devices); err != nil {
		return err
	}
	log.Info("devices registered", "devices", len(devices.List()))

	// Event bridge: nil sinks stay nil interfaces when disabled
	var broker events.Publisher
	if mqttClient != nil {
		broker = mqttClient
	}
	var sink events.TelemetrySink
	if telemetryClient != nil {
		sink = telemetryClient
	}
	bridge := events.New(broker, mqtt.Topics{}, sink, log)

	controller := admission.NewController(devices, cfg.Execution.MaxQueueDepth, log)
	manager, err := execution.NewManager(execution.Options{
		Actions:        actions,
		Devices:        devices,
		Admission:      controller,
		Repository:     execution.NewArchive(db),
		Events:         bridge,
		Logger:         log,
		DefaultTimeout: cfg.DefaultActionTimeout(),
		MaxTimeout:     cfg.MaxActionTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating execution manager: %w", err)
	}

	orchestrator := run.NewOrchestrator(manager, run.NewStore(db), log)

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Manager:      manager,
		Orchestrator: orchestrator,
		Devices:      devices,
		Actions:      actions,
		Notifier:     bridge,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	// Shutdown order: API stops intake, the manager drains in-flight
	// executions, then the bridge flushes its event backlog.
	defer func() {
		log.Info("closing event bridge")
		bridge.Close()
	}()
	defer func() {
		log.Info("closing execution manager")
		manager.Close()
	}()
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, telemetryClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// registerDevices builds drivers from config and attaches them to the
// registry. The register table and memory bus are shared across all
// plc devices.
func registerDevices(cfg *config.Config, devices *device.Registry) error {
	var table *registers.Table
	var bus registers.Bus

	for _, dc := range cfg.Devices {
		var driver device.Driver
		switch dc.Driver {
		case "heatchill":
			driver = sim.NewHeatChill(sim.DefaultTick)
		case "pump":
			driver = sim.NewPump(sim.DefaultTick)
		case "liquidhandler":
			driver = sim.NewLiquidHandler(sim.DefaultTick)
		case "agv":
			driver = sim.NewAGV(sim.DefaultTick, "dock")
		case "plc":
			if table == nil {
				var err error
				table, err = registers.Load(cfg.Registers.TablePath)
				if err != nil {
					return fmt.Errorf("loading register table: %w", err)
				}
				bus = registers.NewMemoryBus()
			}
			driver = plc.New(table, bus)
		default:
			return fmt.Errorf("device %s: unknown driver %q", dc.ID, dc.Driver)
		}

		if err := devices.Register(dc.ID, dc.Name, driver); err != nil {
			return fmt.Errorf("registering device %s: %w", dc.ID, err)
		}
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CONDUCTOR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CONDUCTOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections. mqttClient and
// telemetryClient may be nil when those subsystems are disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}
