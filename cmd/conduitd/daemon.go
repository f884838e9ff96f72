// Package main provides the conduitd daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"conduit/internal/config"
	"conduit/internal/listener"
	"conduit/internal/logger"
)

// Daemon manages the conduitd components: the endpoint listener, the
// gRPC server on top of it, the metrics endpoint, and the config
// watcher.
type Daemon struct {
	cfg     *config.DaemonConfig
	cfgFile string
	log     *logger.Logger

	lis        *listener.Listener
	grpcServer *grpc.Server
	healthSrv  *health.Server
	watcher    *config.Watcher

	metricsServer   *http.Server
	metricsRegistry *prometheus.Registry
	grpcMetrics     *grpc_prometheus.ServerMetrics

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewDaemon creates a new daemon instance.
func NewDaemon(cfg *config.DaemonConfig, cfgFile string, log *logger.Logger) *Daemon {
	return &Daemon{
		cfg:     cfg,
		cfgFile: cfgFile,
		log:     log,
	}
}

// Start brings up the daemon components in order: metrics registry,
// endpoint listener, gRPC server, metrics HTTP server, config watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}

	d.log.Info("starting daemon components")

	if d.cfg.Metrics.Enabled {
		d.metricsRegistry = prometheus.NewRegistry()
		d.grpcMetrics = grpc_prometheus.NewServerMetrics()
		d.metricsRegistry.MustRegister(d.grpcMetrics)
		d.metricsRegistry.MustRegister(prometheus.NewGoCollector())
		d.metricsRegistry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	if err := d.startListener(); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	if err := d.startGRPC(); err != nil {
		d.stopListener()
		return fmt.Errorf("failed to start gRPC server: %w", err)
	}

	if d.cfg.Metrics.Enabled {
		if err := d.startMetricsServer(); err != nil {
			d.stopGRPC(ctx)
			d.stopListener()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	d.startWatcher()

	d.running = true
	d.log.Info("daemon started successfully")
	return nil
}

// Stop shuts the daemon down in reverse order: watcher, gRPC server
// (draining in-flight calls), listener, metrics server.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.log.Info("stopping daemon components")

	var errs []error

	if d.watcher != nil {
		d.watcher.Stop()
		d.watcher = nil
	}

	if d.healthSrv != nil {
		d.healthSrv.Shutdown()
	}

	if err := d.stopGRPC(ctx); err != nil {
		errs = append(errs, fmt.Errorf("grpc: %w", err))
	}

	if err := d.stopListener(); err != nil {
		errs = append(errs, fmt.Errorf("listener: %w", err))
	}

	if d.metricsServer != nil {
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	// The serve goroutines hold references to the servers; the fields
	// are cleared only once every goroutine has drained.
	d.wg.Wait()
	d.grpcServer = nil
	d.healthSrv = nil
	d.metricsServer = nil
	d.running = false

	if len(errs) > 0 {
		d.log.Error("daemon stopped with errors", "errors", errs)
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	d.log.Info("daemon stopped successfully")
	return nil
}

// startListener claims the endpoint name and starts accepting.
func (d *Daemon) startListener() error {
	ep := d.cfg.Endpoint

	opts := listener.Options{
		Parallelism:           ep.Parallelism,
		MaxReadBufferSize:     ep.MaxReadBufferSize,
		MaxWriteBufferSize:    ep.MaxWriteBufferSize,
		RestrictToCurrentUser: ep.CurrentUserOnly,
		SecurityDescriptor:    ep.SecurityDescriptor,
		MaxConnectFaults:      ep.MaxConnectFaults,
		Logger:                d.log.Logger,
	}
	if d.metricsRegistry != nil {
		opts.Metrics = d.metricsRegistry
	}

	lis, err := listener.Listen(ep.Name, opts)
	if err != nil {
		return err
	}
	d.lis = lis

	d.log.Info("endpoint listener started", "endpoint", ep.Name)
	return nil
}

func (d *Daemon) stopListener() error {
	if d.lis == nil {
		return nil
	}
	err := d.lis.Close()
	d.lis = nil
	return err
}

// startGRPC serves the control-plane gRPC services over the endpoint
// listener.
func (d *Daemon) startGRPC() error {
	var opts []grpc.ServerOption
	if d.grpcMetrics != nil {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(d.grpcMetrics.UnaryServerInterceptor()),
			grpc.ChainStreamInterceptor(d.grpcMetrics.StreamServerInterceptor()),
		)
	}

	srv := grpc.NewServer(opts...)
	d.grpcServer = srv

	d.healthSrv = health.NewServer()
	healthpb.RegisterHealthServer(srv, d.healthSrv)
	d.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if d.grpcMetrics != nil {
		d.grpcMetrics.InitializeMetrics(srv)
	}

	// The goroutine must not touch daemon fields; Stop rewrites them.
	lis := d.lis
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			d.log.Error("gRPC server error", "error", err)
		}
	}()

	d.log.Info("gRPC server listening", "endpoint", d.cfg.Endpoint.Name)
	return nil
}

func (d *Daemon) stopGRPC(ctx context.Context) error {
	srv := d.grpcServer
	if srv == nil {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	var err error
	select {
	case <-stopped:
	case <-ctx.Done():
		srv.Stop()
		err = fmt.Errorf("graceful shutdown timed out, forced stop")
	}
	return err
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func (d *Daemon) startMetricsServer() error {
	addr := fmt.Sprintf("%s:%d", d.cfg.Metrics.Host, d.cfg.Metrics.Port)

	mux := http.NewServeMux()
	mux.Handle(d.cfg.Metrics.Path, promhttp.HandlerFor(d.metricsRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	d.metricsServer = srv

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Error("metrics server error", "error", err)
		}
	}()

	d.log.Info("metrics server listening", "addr", addr, "path", d.cfg.Metrics.Path)
	return nil
}

// startWatcher wires live config reloads. Only the log level is
// applied at runtime; endpoint changes need a restart.
func (d *Daemon) startWatcher() {
	w, err := config.NewWatcher(d.cfgFile)
	if err != nil {
		// No config file in use; nothing to watch.
		d.log.Debug("config watcher disabled", "reason", err)
		return
	}

	w.OnChange(func(cfg *config.DaemonConfig) {
		if cfg.Log.Level != d.cfg.Log.Level {
			if err := d.log.SetLevel(cfg.Log.Level); err != nil {
				d.log.Warn("ignoring invalid log level from config reload", "level", cfg.Log.Level)
				return
			}
			d.log.Info("log level changed", "level", cfg.Log.Level)
			d.cfg.Log.Level = cfg.Log.Level
		}
	})
	w.Start()
	d.watcher = w

	d.log.Debug("config watcher started")
}

// IsRunning returns true if the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
