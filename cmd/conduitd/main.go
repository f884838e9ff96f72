package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conduit/internal/config"
	"conduit/internal/logger"
	"conduit/internal/version"
)

var (
	cfgFile     string
	showVersion bool
)

func init() {
	flag.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/conduitd/config.yaml)")
	flag.BoolVar(&showVersion, "version", false, "show version")
}

func main() {
	flag.Parse()

	if showVersion {
		info := version.Get()
		fmt.Printf("conduitd %s\n", info.String())
		fmt.Println(info.Full())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadDaemon(cfgFile)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Close() }()

	log.Info("starting conduitd",
		"endpoint", cfg.Endpoint.Name,
		"parallelism", cfg.Endpoint.Parallelism,
		"current_user_only", cfg.Endpoint.CurrentUserOnly,
		"log_level", cfg.Log.Level,
		"log_format", cfg.Log.Format,
	)

	log.Debug("endpoint configuration",
		"max_read_buffer_size", cfg.Endpoint.MaxReadBufferSize,
		"max_write_buffer_size", cfg.Endpoint.MaxWriteBufferSize,
		"max_connect_faults", cfg.Endpoint.MaxConnectFaults,
	)

	if cfg.Metrics.Enabled {
		log.Info("metrics enabled",
			"host", cfg.Metrics.Host,
			"port", cfg.Metrics.Port,
			"path", cfg.Metrics.Path,
		)
	}

	// Create and start daemon
	daemon := NewDaemon(cfg, cfgFile, log)

	ctx := context.Background()
	if err := daemon.Start(ctx); err != nil {
		log.Error("failed to start daemon", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := daemon.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}

	log.Info("conduitd stopped")
}
