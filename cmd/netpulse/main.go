// netpulse is the realtime telemetry broadcaster.
//
// It synthesizes CPU and memory samples for a fixed set of devices, pushes
// them to websocket clients subscribed to per-device groups, and exposes a
// small HTTP control plane for status notifications, maintenance
// broadcasts, history and metrics. SQLite history, an InfluxDB mirror and
// an MQTT bridge are optional.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/netpulse/internal/api"
	"github.com/nerrad567/netpulse/internal/bridges/mqttbridge"
	"github.com/nerrad567/netpulse/internal/hub"
	"github.com/nerrad567/netpulse/internal/infrastructure/config"
	"github.com/nerrad567/netpulse/internal/infrastructure/database"
	"github.com/nerrad567/netpulse/internal/infrastructure/influxdb"
	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/infrastructure/mqtt"
	"github.com/nerrad567/netpulse/internal/producer"
	"github.com/nerrad567/netpulse/internal/telemetry"
	"github.com/nerrad567/netpulse/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// pruneInterval is how often expired history is deleted.
	pruneInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// cleanups run in reverse start order, so the API stops accepting clients
// before the producer stops, and the broadcaster outlives both.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting netpulse", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	var (
		recorders telemetry.MultiRecorder
		history   telemetry.HistoryRepository
		sqlDB     *sql.DB
	)

	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		store := telemetry.NewSQLiteHistory(db.DB)
		history = store
		sqlDB = db.DB
		recorders = append(recorders, store)

		if retention := cfg.GetHistoryRetention(); retention > 0 {
			pruneCtx, stopPrune := context.WithCancel(ctx)
			pruned := make(chan struct{})
			go func() {
				defer close(pruned)
				pruneHistory(pruneCtx, store, retention, log)
			}()
			defer func() {
				stopPrune()
				<-pruned
			}()
		}
	} else {
		log.Info("sample history disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		recorders = append(recorders, telemetry.NewSeriesRecorder(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	broadcaster := hub.New(hub.Options{
		SendBufferSize: cfg.Hub.SendBufferSize,
		Logger:         log.With("component", "hub"),
	})
	defer broadcaster.Close()
	publisher := hub.NewPublisher(broadcaster)

	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		var mqttClient *mqtt.Client
		mqttClient, bridge, err = startMQTT(ctx, cfg, publisher, broadcaster, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		defer bridge.Stop()
		recorders = append(recorders, bridge)
	} else {
		log.Info("MQTT bridge disabled")
	}

	var prod *producer.Producer
	if cfg.Producer.Enabled {
		prod, err = producer.New(publisher, producer.Config{
			Interval:     cfg.GetProducerInterval(),
			Devices:      cfg.Producer.Devices,
			DualDelivery: cfg.Producer.DualDelivery,
			Recorder:     recorderOrNil(recorders),
			Logger:       log.With("component", "producer"),
		})
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}
		if err := prod.Start(ctx); err != nil {
			return fmt.Errorf("starting producer: %w", err)
		}
		defer prod.Stop()
		log.Info("producer started",
			"devices", prod.Devices(),
			"interval", cfg.GetProducerInterval(),
			"dual_delivery", cfg.Producer.DualDelivery)
	} else {
		log.Info("producer disabled")
	}

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Broadcaster: broadcaster,
		History:     history,
		DB:          sqlDB,
		Version:     version,
	}
	// Interface fields stay nil unless the component exists.
	if prod != nil {
		deps.Producer = prod
	}
	if bridge != nil {
		deps.MQTT = bridge
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"hub_path", cfg.WebSocket.Path)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns NETPULSE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("NETPULSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	return db, nil
}

// startMQTT connects to the broker and starts the bridge. On error nothing
// is left running.
func startMQTT(ctx context.Context, cfg *config.Config, notifier mqttbridge.Notifier, stats mqttbridge.StatsSource, log *logging.Logger) (*mqtt.Client, *mqttbridge.Bridge, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.With("component", "mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() { mqttLog.Info("MQTT connected") })

	bridge, err := mqttbridge.New(mqttbridge.Options{
		Client:         client,
		Notifier:       notifier,
		Topics:         client.Topics(),
		QoS:            byte(cfg.MQTT.QoS),
		Stats:          stats,
		HealthInterval: cfg.GetMQTTHealthInterval(),
		Logger:         mqttLog,
	})
	if err == nil {
		client.SetOnDisconnect(bridge.ConnectionLost)
		err = bridge.Start(ctx)
	}
	if err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}

	log.Info("MQTT bridge started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"status_topic", client.Topics().AllStatus())
	return client, bridge, nil
}

// recorderOrNil avoids handing the producer an empty MultiRecorder.
func recorderOrNil(recorders telemetry.MultiRecorder) telemetry.Recorder {
	switch len(recorders) {
	case 0:
		return nil
	case 1:
		return recorders[0]
	default:
		return recorders
	}
}

type pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory deletes samples older than retention once at startup and
// then every pruneInterval until ctx ends.
func pruneHistory(ctx context.Context, store pruner, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		removed, err := store.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("history prune failed", "error", err)
		case removed > 0:
			log.Info("history pruned", "removed", removed, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
