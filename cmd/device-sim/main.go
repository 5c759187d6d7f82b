// Command device-sim stands in for the ESP32 board when no hardware is at
// hand: it publishes random readings and obeys relay commands.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/broker"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/config"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/devicesim"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/logging"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/metrics"
)

func main() {
	cfg, err := config.LoadSimulator()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, os.Stdout)
	logger.Info("Starting device simulator", "broker", cfg.MQTTBroker, "interval", cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device := devicesim.New(time.Now().UnixNano())

	conn := broker.New(broker.Options{
		Broker:               cfg.MQTTBroker,
		ClientID:             cfg.MQTTClientID,
		KeepAlive:            60 * time.Second,
		ConnectTimeout:       10 * time.Second,
		MaxReconnectInterval: 30 * time.Second,
		PublishTimeout:       5 * time.Second,
		QueueSize:            16,
	}, logger, metrics.New())
	conn.Subscribe(cfg.RelayTopic, 0, device)
	if err := conn.Connect(); err != nil {
		logger.Error("MQTT connect failed, retrying in background", "error", err)
	}
	defer conn.Close()

	go conn.Run(ctx)
	device.Run(ctx, conn, cfg.TelemetryTopic, cfg.Interval, logger)

	logger.Info("Device simulator stopped", "relay_state", device.Relay())
}
