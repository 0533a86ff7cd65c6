// Package main is the entry point for the copter actor: it bridges a vehicle
// to the hub as the "arduCopter" actor module.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/actor"
	"github.com/flightlink/copter-actor/internal/config"
	"github.com/flightlink/copter-actor/internal/driver/sim"
	"github.com/flightlink/copter-actor/internal/logging"
	"github.com/flightlink/copter-actor/internal/supervisor"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	brokerURL := flag.String("broker-url", "", "MQTT broker URL (overrides config)")
	actorKey := flag.String("actor-key", "", "Actor key on the hub (overrides config)")
	httpAddr := flag.String("http-addr", "", "Local HTTP listen address, e.g. :8081 (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *brokerURL != "" {
		cfg.MQTT.BrokerURL = *brokerURL
	}
	if *actorKey != "" {
		cfg.Actor.Key = *actorKey
	}
	if *httpAddr != "" {
		cfg.Actor.HTTPAddr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *printConfig {
		data, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(data)
		return
	}

	logger, closeLogs, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLogs()

	if err := run(cfg, logger); err != nil {
		logger.Error("Copter actor failed", zap.Error(err))
		closeLogs()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting copter actor",
		zap.String("broker_url", cfg.MQTT.BrokerURL),
		zap.String("actor_key", cfg.Actor.Key),
		zap.String("module", cfg.Actor.Module))

	simCfg, err := cfg.SimulatorConfig()
	if err != nil {
		return err
	}
	supCfg, err := cfg.SupervisorConfig()
	if err != nil {
		return err
	}

	drone := sim.NewDrone(simCfg, logger)
	defer drone.Close()
	tower := sim.NewTower(logger)
	defer tower.Wait()

	actorCfg := cfg.ActorConfig()
	will, err := actor.Will(actorCfg)
	if err != nil {
		return fmt.Errorf("failed to build last will: %w", err)
	}
	client, err := mqtt.NewClient(cfg.MQTTClientConfig(will), logger)
	if err != nil {
		return fmt.Errorf("failed to create MQTT client: %w", err)
	}

	// Events only flow once the supervisor is opened below, after module is set.
	var module *actor.Actor
	sup, err := supervisor.New(supCfg, drone, tower, func(name string, payload interface{}) {
		module.Emit(name, payload)
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	module, err = actor.New(actorCfg, client, sup, logger)
	if err != nil {
		return fmt.Errorf("failed to create actor module: %w", err)
	}
	module.RegisterHealthCheck(sup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := module.Start(ctx); err != nil {
		return fmt.Errorf("failed to start actor module: %w", err)
	}
	if err := sup.Open(); err != nil {
		_ = module.Stop(ctx)
		return fmt.Errorf("failed to open supervisor: %w", err)
	}

	logger.Info("Copter actor running",
		zap.String("calls", module.Topics().Call),
		zap.String("http_addr", actorCfg.HTTPAddr))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sup.Close(); err != nil {
		logger.Error("Error closing supervisor", zap.Error(err))
	}
	if err := module.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	logger.Info("Copter actor stopped")
	return nil
}
