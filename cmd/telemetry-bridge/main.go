// Command telemetry-bridge connects the ESP32 sensor node to the dashboard:
// it ingests readings from MQTT, stores them, serves statistics over HTTP and
// forwards relay commands back to the device.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/aggregate"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/api"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/broker"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/command"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/config"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/ingest"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/logging"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/metrics"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/state"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/store"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/store/postgres"
)

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Logger. The MQTT half of the writer stays silent until the broker
	// connection exists (step 7), so startup lines only reach stdout.
	writers := []io.Writer{os.Stdout}
	var mqttLog *logging.MqttLogWriter
	if cfg.LogTopic != "" {
		mqttLog = logging.NewMqttLogWriter(cfg.LogTopic)
		writers = append(writers, mqttLog)
	}
	logger := logging.New(cfg.LogLevel, writers...)
	slog.SetDefault(logger)
	logger.Info("Starting telemetry bridge",
		"broker", cfg.MQTTBroker,
		"client_id", cfg.MQTTClientID,
		"telemetry_topic", cfg.TelemetryTopic,
		"relay_topic", cfg.RelayTopic,
		"store", cfg.StoreBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// 3. Store
	clock := store.NewClock()
	var backend store.Store
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory store, readings are lost on restart")
		backend = store.NewMemory(clock)
	default:
		pg, err := postgres.Open(ctx, cfg.PostgresURL, clock)
		if err != nil {
			// Without the database there is nothing to aggregate; let the
			// container restart policy try again.
			logger.Error("Cannot connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if cfg.DBAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				logger.Error("Schema bootstrap failed", "error", err)
				os.Exit(1)
			}
		}
		backend = pg
	}
	backend = store.WithBreaker(backend, store.BreakerSettings{
		ConsecutiveFailures: cfg.DBBreakerFailures,
		Cooldown:            cfg.DBBreakerCooldown,
		OnStateChange: func(from, to gobreaker.State) {
			m.StoreBreaker.Set(float64(to))
			logger.Warn("Store circuit breaker changed state", "from", from.String(), "to", to.String())
		},
	})

	// 4. Optional Valkey mirror of the live state
	var mirror state.Mirror
	if cfg.ValkeyAddr != "" {
		vm, err := state.NewValkeyMirror(ctx, cfg.ValkeyAddr, cfg.ValkeyTTL)
		if err != nil {
			// The mirror is a convenience for other consumers, not a dependency.
			logger.Warn("Valkey mirror disabled", "error", err)
		} else {
			defer vm.Close()
			mirror = vm
			logger.Info("Mirroring live state to Valkey", "addr", cfg.ValkeyAddr, "key", state.MirrorKey)
		}
	}

	// 5. Shared state and the ingestion path
	cache := state.New()
	handler := ingest.NewHandler(cache, backend, mirror, m, logger, cfg.PersistTimeout)

	// 6. MQTT session. An unreachable broker is not fatal, paho keeps retrying.
	conn := broker.New(broker.Options{
		Broker:               cfg.MQTTBroker,
		ClientID:             cfg.MQTTClientID,
		KeepAlive:            cfg.MQTTKeepAlive,
		ConnectTimeout:       cfg.MQTTConnectTimeout,
		MaxReconnectInterval: cfg.MQTTMaxReconnectInterval,
		PublishTimeout:       cfg.PublishTimeout,
		QueueSize:            cfg.IngestQueueSize,
	}, logger, m)
	conn.Subscribe(cfg.TelemetryTopic, 0, handler)
	if err := conn.Connect(); err != nil {
		logger.Error("MQTT connect failed, retrying in background", "error", err)
	}
	defer conn.Close()

	go conn.Run(ctx)

	// 7. From here on log lines are mirrored to MQTT as well.
	if mqttLog != nil {
		mqttLog.Attach(conn)
	}

	// 8. HTTP API
	dispatcher := command.NewDispatcher(conn, cfg.RelayTopic, cache, mirror, m, logger)
	reports := aggregate.NewService(backend, cache, cfg.Location())
	router := api.New(api.Deps{
		Reporter:    reports,
		Commander:   dispatcher,
		Cache:       cache,
		Broker:      conn,
		Metrics:     m.Handler(),
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   os.Stdout,
		Logger:      logger,
	})
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 9. Graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (docker stop)
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}
	// Deferred calls disconnect MQTT and close the pools.
}
