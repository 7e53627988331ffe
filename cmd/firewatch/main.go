// Fire Watch - fire-alarm monitoring client
//
// This is the main entry point for the Fire Watch service. It maintains a
// registry of fire-alarm sensor devices, subscribes to their MQTT topics,
// reconciles incoming messages into device state and an alarm ledger, and
// exposes the state over a REST/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Kalashnok/fire-alarm/migrations"

	"github.com/Kalashnok/fire-alarm/internal/alarm"
	"github.com/Kalashnok/fire-alarm/internal/api"
	"github.com/Kalashnok/fire-alarm/internal/device"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/config"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/database"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/influxdb"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/logging"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/mqtt"
	"github.com/Kalashnok/fire-alarm/internal/monitor"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Fire Watch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry. Loading before the first broker connection
	// matters: the subscription set is built from the registry, so persisted
	// devices would otherwise never get their topics subscribed.
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	// Initialise alarm ledger
	ledger := alarm.NewLedger(alarm.NewSQLiteRepository(db.DB))
	ledger.SetLogger(log)
	if loadErr := ledger.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading alarm ledger: %w", loadErr)
	}
	log.Info("alarm ledger initialised",
		"alarms", ledger.Count(),
		"active", ledger.ActiveCount(),
	)

	// Resolve broker configuration: a persisted runtime update takes
	// precedence over the YAML file.
	brokerStore := config.NewBrokerStore(db.DB)
	brokerCfg := cfg.Broker
	if stored, loadErr := brokerStore.Load(ctx); loadErr != nil {
		log.Warn("loading persisted broker config failed, using file config", "error", loadErr)
	} else if stored != nil {
		stored.Reconnect = cfg.Broker.Reconnect
		brokerCfg = *stored
		log.Info("using persisted broker config", "host", brokerCfg.Host, "port", brokerCfg.Port)
	}
	if brokerCfg.ClientID == "" {
		brokerCfg.ClientID = config.GenerateClientID()
	}

	// Create the monitor session over the MQTT transport
	dial := func(c config.BrokerConfig) (monitor.Transport, error) {
		client, dialErr := mqtt.Connect(c)
		if dialErr != nil {
			return nil, dialErr
		}
		client.SetLogger(log)
		return client, nil
	}
	session := monitor.NewSession(registry, ledger, brokerCfg, dial)
	session.SetLogger(log)
	session.Start(ctx)
	defer session.Stop()

	// Connect to InfluxDB (optional status history)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
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
		session.SetHistoryWriter(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the API server and wire its WebSocket hub as the alarm notifier
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		Logger:      log,
		Session:     session,
		Registry:    registry,
		Ledger:      ledger,
		BrokerStore: brokerStore,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	session.SetNotifier(apiServer.Hub())

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Connect to the broker. A failure here is not fatal: the service stays
	// up so the connection can be fixed through the API.
	if connectErr := session.Connect(ctx); connectErr != nil {
		log.Warn("initial broker connection failed, configure and connect via API",
			"error", connectErr)
	} else {
		log.Info("broker connected",
			"broker", fmt.Sprintf("%s:%d", brokerCfg.Host, brokerCfg.Port),
			"client_id", brokerCfg.ClientID,
			"subscriptions", session.ActiveSubscriptions(),
		)
	}

	// Verify infrastructure health
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. Monitor session (broker disconnect)
	// 4. Database

	log.Info("Fire Watch stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FIREWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FIREWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
