// Lumina Core - smart home control plane.
//
// Lumina ingests device telemetry over MQTT, keeps the latest state in
// SQLite, mirrors sensor history to InfluxDB, and exposes a permission-
// checked REST and WebSocket API for dashboards and automation clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lumina-home/lumina-core/migrations"

	"github.com/lumina-home/lumina-core/internal/api"
	"github.com/lumina-home/lumina-core/internal/audit"
	"github.com/lumina-home/lumina-core/internal/auth"
	"github.com/lumina-home/lumina-core/internal/device"
	"github.com/lumina-home/lumina-core/internal/infrastructure/config"
	"github.com/lumina-home/lumina-core/internal/infrastructure/database"
	"github.com/lumina-home/lumina-core/internal/infrastructure/influxdb"
	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
	"github.com/lumina-home/lumina-core/internal/infrastructure/mqtt"
	"github.com/lumina-home/lumina-core/internal/ingest"
	"github.com/lumina-home/lumina-core/internal/notify"
	"github.com/lumina-home/lumina-core/internal/sensor"
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

// tokenPurgeInterval controls how often expired refresh tokens are
// swept from the database.
const tokenPurgeInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Lumina Core",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

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

	// Token signing keys. Run luminakeys once to generate them.
	keys, err := auth.LoadKeys(cfg.Auth.Keys)
	if err != nil {
		return fmt.Errorf("loading signing keys: %w", err)
	}

	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	rbacRepo := auth.NewRBACRepository(db.DB)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	snapshotRepo := sensor.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	codec := auth.NewCodec(keys, cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL())
	authService := auth.NewService(userRepo, tokenRepo, codec, log,
		auth.WithAuditor(audit.NewRecorder(auditRepo, log)))

	// First boot on an empty database seeds an admin account and prints
	// the generated password once.
	adminPassword, err := auth.SeedAdmin(ctx, userRepo, rbacRepo, log)
	if err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}
	if adminPassword != "" {
		fmt.Printf("\nInitial admin account created.\n  username: admin\n  password: %s\n\nStore this password now; it will not be shown again.\n\n", adminPassword)
	}

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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled; telemetry ingest and device commands are unavailable")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
	} else {
		log.Info("InfluxDB disabled; sensor history limited to SQLite snapshots")
	}

	var mailer notify.Mailer
	if cfg.SMTP.Enabled {
		mailer = notify.NewSMTPMailer(cfg.SMTP)
		log.Info("email alerts enabled", "recipients", len(cfg.SMTP.AlertTo))
	}

	// API server
	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Auth:      authService,
		Users:     userRepo,
		RBAC:      rbacRepo,
		Devices:   deviceRepo,
		Snapshots: snapshotRepo,
		Audit:     auditRepo,
		Influx:    influxClient,
		DB:        db,
		Version:   version,
	}
	if mqttClient != nil {
		deps.Commands = mqttClient
		deps.MQTT = mqttClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Telemetry ingest: room-prefixed MQTT topics feed the device
	// registry, sensor snapshots, InfluxDB, and WebSocket clients.
	if mqttClient != nil {
		opts := []ingest.Option{ingest.WithBroadcaster(server.Hub())}
		if influxClient != nil {
			opts = append(opts, ingest.WithInflux(influxClient))
		}
		if mailer != nil {
			opts = append(opts, ingest.WithMailer(mailer))
		}

		router := ingest.NewRouter(deviceRepo, snapshotRepo, log, opts...)
		if startErr := router.Start(mqttClient); startErr != nil {
			return fmt.Errorf("starting telemetry ingest: %w", startErr)
		}
		log.Info("telemetry ingest started")
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	go purgeExpiredTokens(ctx, authService, log)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LUMINA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LUMINA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// purgeExpiredTokens sweeps dead refresh tokens on an interval until the
// context is cancelled.
func purgeExpiredTokens(ctx context.Context, svc *auth.Service, log *logging.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.PurgeExpiredTokens(ctx)
			if err != nil {
				log.Error("purging expired tokens failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("purged expired refresh tokens", "count", removed)
			}
		}
	}
}

// healthCheck verifies infrastructure connections. Optional clients may
// be nil when their subsystem is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
