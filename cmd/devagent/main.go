// devagent - connected device agent
//
// This is the main entry point for the device agent. The agent keeps a
// network link and an MQTT session up, drives one digital actuator from
// inbound commands and publishes a telemetry sample at a fixed interval.
//
// All connectivity work runs on a single scheduler goroutine. The optional
// status listener only reads.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	_ "github.com/nerrad567/devagent/migrations"

	"github.com/nerrad567/devagent/internal/actuator"
	"github.com/nerrad567/devagent/internal/agent"
	"github.com/nerrad567/devagent/internal/api"
	"github.com/nerrad567/devagent/internal/command"
	"github.com/nerrad567/devagent/internal/infrastructure/config"
	"github.com/nerrad567/devagent/internal/infrastructure/database"
	"github.com/nerrad567/devagent/internal/infrastructure/influxdb"
	"github.com/nerrad567/devagent/internal/infrastructure/logging"
	"github.com/nerrad567/devagent/internal/infrastructure/mqtt"
	"github.com/nerrad567/devagent/internal/link"
	"github.com/nerrad567/devagent/internal/metrics"
	"github.com/nerrad567/devagent/internal/session"
	"github.com/nerrad567/devagent/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting devagent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version).With("device_uid", cfg.Device.UID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	bootID := uuid.NewString()
	topics := mqtt.Topics{Namespace: cfg.Device.Namespace, DeviceUID: cfg.Device.UID}

	// Broker client. The session manager owns connecting it.
	broker := mqtt.New(cfg.MQTT, mqtt.Status{Topic: topics.Status(), BootID: bootID})
	broker.SetLogger(log.Component("mqtt"))
	broker.SetOnDisconnect(func(err error) {
		log.Warn("MQTT connection lost", "error", err)
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := broker.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	linkMgr := link.NewManager(link.NewNetTransport(cfg.Link), cfg.Link, nil)
	linkMgr.SetLogger(log.Component("link"))

	sessionMgr := session.NewManager(broker, cfg.Device, cfg.MQTT, nil)
	sessionMgr.SetLogger(log.Component("session"))

	m := metrics.New(func() float64 { return float64(broker.Dropped()) })
	checks := map[string]api.HealthChecker{"mqtt": broker}

	initial, err := actuator.ParseLevel(cfg.Actuator.InitialLevel)
	if err != nil {
		return fmt.Errorf("actuator initial level: %w", err)
	}
	output := actuator.NewOutput(cfg.Actuator.Name, initial)
	output.SetLogger(log.Component("actuator"))

	// Actuator journal (optional)
	var history api.HistorySource
	var journal *actuator.SQLiteJournal
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("actuator journal ready", "path", cfg.Database.Path)

		journal = actuator.NewSQLiteJournal(db.DB)
		output.SetJournal(journal)
		history = journal
		checks["database"] = db
	} else {
		log.Info("actuator journal disabled")
	}

	output.Set(initial, actuator.SourceBoot)
	m.ActuatorChanged(initial == actuator.High)

	dispatcher := command.NewDispatcher(output, 0)
	dispatcher.SetLogger(log.Component("command"))
	if journal != nil {
		dispatcher.SetJournal(journal)
	}
	dispatcher.OnOutcome(func(outcome command.Outcome) {
		m.CommandHandled(string(outcome))
		m.ActuatorChanged(output.Level() == actuator.High)
	})
	sessionMgr.SetInboundHandler(dispatcher.HandleInbound)

	//nolint:gosec // simulated sensor values, not security sensitive
	sampler := telemetry.NewSimulatedSampler(uint64(time.Now().UnixNano()))
	emitter := telemetry.NewEmitter(sessionMgr, sampler, cfg.Device, cfg.Telemetry.MaxPayload, nil)
	emitter.SetLogger(log.Component("telemetry"))
	emitter.OnEmit(m.TelemetryEmitted)

	// InfluxDB mirror (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		emitter.SetMirror(influxClient)
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	scheduler := agent.NewScheduler(linkMgr, sessionMgr, emitter, agent.Config{
		PublishInterval: cfg.Telemetry.Interval,
	}, nil)
	scheduler.SetLogger(log.Component("scheduler"))
	scheduler.SetRecorder(m)

	// Status listener (optional)
	if cfg.Status.Enabled {
		srv, srvErr := api.New(api.Deps{
			Config:    cfg.Status,
			Logger:    log.Component("api"),
			Scheduler: scheduler,
			Actuator:  output,
			Link:      linkMgr,
			Session:   sessionMgr,
			History:   history,
			Metrics:   m.Handler(),
			Checks:    checks,
			DeviceUID: cfg.Device.UID,
			Version:   version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating status server: %w", srvErr)
		}
		if startErr := srv.Start(); startErr != nil {
			return fmt.Errorf("starting status server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	log.Info("devagent running",
		"client_id", cfg.Device.ClientID(),
		"broker", cfg.BrokerAddress(),
		"boot_id", bootID,
		"publish_interval", cfg.Telemetry.Interval,
	)

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}

	log.Info("shutdown signal received, stopping services")
	return nil
}

// loadConfig reads the configuration file. A missing file at the default
// path falls back to built-in defaults; an explicitly configured path must
// exist.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path, explicit := getConfigPath()

	cfg, err := config.Load(path)
	if err == nil {
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating default config: %w", err)
	}
	log.Warn("configuration file not found, using defaults", "path", path)
	return cfg, nil
}

// getConfigPath returns the configuration file path and whether it was set
// explicitly. Checks DEVAGENT_CONFIG environment variable first, then
// falls back to the default path.
func getConfigPath() (string, bool) {
	if path := os.Getenv("DEVAGENT_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}
