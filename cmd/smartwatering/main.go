// Smart Watering Core - condition-triggered irrigation control.
//
// This is the main entry point for the Smart Watering Core service. It
// accepts sensor readings over HTTP (and optionally MQTT), evaluates each
// owner's watering rules against them, and publishes the resulting pump and
// valve commands over MQTT or Kafka.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/smart-watering-core/migrations"

	"github.com/nerrad567/smart-watering-core/internal/api"
	"github.com/nerrad567/smart-watering-core/internal/audit"
	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/camera"
	"github.com/nerrad567/smart-watering-core/internal/device"
	"github.com/nerrad567/smart-watering-core/internal/farm"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/config"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/database"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/kafka"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/logging"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smart-watering-core/internal/ingest"
	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

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
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Smart Watering Core",
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

	db, err := database.Open(cfg.Database)
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

	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log)
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	directory := ingest.NewRegistryDirectory(deviceRegistry)

	ruleRegistry := automation.NewRegistry(automation.NewSQLiteRuleRepository(db.DB), directory)
	ruleRegistry.SetLogger(log)
	if refreshErr := ruleRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading rule registry: %w", refreshErr)
	}
	log.Info("rule registry initialised", "rules", ruleRegistry.GetRuleCount())

	readingRepo := reading.NewSQLiteRepository(db.DB)
	actionRepo := automation.NewSQLiteActionRepository(db.DB)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	publisher, closePublisher, err := newCommandPublisher(cfg, mqttClient)
	if err != nil {
		return fmt.Errorf("creating command publisher: %w", err)
	}
	defer func() {
		if closeErr := closePublisher(); closeErr != nil {
			log.Error("error closing command publisher", "error", closeErr)
		}
	}()
	log.Info("command transport ready", "transport", cfg.Commands.Transport)

	var influxClient *influxdb.Client
	var mirror *influxMirror
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		mirror = &influxMirror{client: influxClient}
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))

	dispatcherDeps := automation.DispatcherDeps{
		Devices:   directory,
		Publisher: publisher,
		State:     deviceRegistry,
		Actions:   actionRepo,
		Hub:       hub,
		Logger:    log.With("component", "dispatcher"),
	}
	ingestDeps := ingest.Deps{
		Devices:  directory,
		Readings: readingRepo,
		Rules:    ruleRegistry,
		Hub:      hub,
		Logger:   log.With("component", "ingest"),
	}
	// Typed nil pointers must not reach the optional Mirror interfaces.
	if mirror != nil {
		dispatcherDeps.Mirror = mirror
		ingestDeps.Mirror = mirror
	}
	dispatcher := automation.NewDispatcher(dispatcherDeps)
	ingestDeps.Dispatcher = dispatcher
	ingestSvc := ingest.NewService(ingestDeps)

	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.With("component", "api"),
		DB:        db.DB,
		Devices:   deviceRegistry,
		Rules:     ruleRegistry,
		Farms:     farm.NewSQLiteRepository(db.DB),
		Cameras:   camera.NewSQLiteRepository(db.DB),
		Readings:  readingRepo,
		Actions:   actionRepo,
		AuditRepo: audit.NewSQLiteRepository(db.DB),
		Ingest:    ingestSvc,
		Commands:  dispatcher,
		Broker:    mqttClient,
		Hub:       hub,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.MQTT.IngestEnabled {
		subscriber := ingest.NewSubscriber(mqttClient, ingestSvc, mqttClient.QoS(), log.With("component", "mqtt_ingest"))
		if startErr := subscriber.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT sensor subscriber: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT sensor subscriber")
			if stopErr := subscriber.Stop(); stopErr != nil {
				log.Error("error stopping MQTT sensor subscriber", "error", stopErr)
			}
		}()
		log.Info("MQTT sensor subscriber started")
	} else {
		log.Info("MQTT sensor ingest disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred functions run in reverse order: subscriber, API, InfluxDB,
	// command publisher, MQTT, database.

	log.Info("Smart Watering Core stopped")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("SMARTWATERING_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newCommandPublisher selects the command transport. The returned close
// function releases transport-specific resources; the MQTT client itself is
// closed by run.
func newCommandPublisher(cfg *config.Config, mqttClient mqttPublishClient) (automation.Publisher, func() error, error) {
	switch cfg.Commands.Transport {
	case config.TransportKafka:
		p, err := kafka.NewPublisher(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return &mqttPublisher{client: mqttClient}, func() error { return nil }, nil
	}
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
