// Command log-collector writes the log lines the bridge mirrors to MQTT
// (LOG_TOPIC) into a file, for devices without a log shipper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/broker"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/config"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/logging"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/metrics"
)

func main() {
	// Own logger goes to stdout only, to see that the collector runs.
	logger := logging.New("info", os.Stdout)

	cfg, err := config.LoadCollector()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	sink, err := logging.NewFileSink(cfg.LogDir, cfg.LogTopic)
	if err != nil {
		logger.Error("Cannot prepare log file", "error", err)
		os.Exit(1)
	}
	logger.Info("Starting log collector", "topic", cfg.LogTopic, "file", sink.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := broker.New(broker.Options{
		Broker:               cfg.MQTTBroker,
		ClientID:             cfg.MQTTClientID,
		KeepAlive:            60 * time.Second,
		ConnectTimeout:       10 * time.Second,
		MaxReconnectInterval: 30 * time.Second,
		PublishTimeout:       5 * time.Second,
		QueueSize:            1024,
	}, logger, metrics.New())
	conn.Subscribe(cfg.LogTopic, 0, sink)
	if err := conn.Connect(); err != nil {
		logger.Error("MQTT connect failed, retrying in background", "error", err)
	}
	defer conn.Close()

	conn.Run(ctx)
	logger.Info("Log collector stopped")
}
