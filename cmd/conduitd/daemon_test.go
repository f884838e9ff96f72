package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"conduit/internal/config"
	"conduit/internal/endpoint"
	"conduit/internal/logger"
)

func testDaemonConfig(t *testing.T) *config.DaemonConfig {
	t.Helper()
	dir, err := os.MkdirTemp("", "conduitd")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.DefaultDaemonConfig()
	cfg.Log.Output = "stderr"
	cfg.Log.Format = "text"
	cfg.Endpoint.Name = filepath.Join(dir, "d.sock")
	cfg.Endpoint.Parallelism = 2
	return cfg
}

func TestDaemonHealthRoundTrip(t *testing.T) {
	cfg := testDaemonConfig(t)

	log, err := logger.New(cfg.Log)
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Close()

	d := NewDaemon(cfg, "", log)
	if err := d.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	if !d.IsRunning() {
		t.Fatal("daemon not running after Start")
	}

	conn, err := grpc.NewClient("passthrough:///conduitd",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return endpoint.Dial(ctx, cfg.Endpoint.Name)
		}),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestDaemonStartStopCycles(t *testing.T) {
	cfg := testDaemonConfig(t)

	log, err := logger.New(cfg.Log)
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Close()

	// Stopping right after Start races shutdown against the serve
	// goroutines' first steps; each cycle must come down clean.
	for i := 0; i < 3; i++ {
		d := NewDaemon(cfg, "", log)
		if err := d.Start(t.Context()); err != nil {
			t.Fatalf("Start cycle %d: %v", i, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.Stop(ctx); err != nil {
			cancel()
			t.Fatalf("Stop cycle %d: %v", i, err)
		}
		cancel()
		if d.IsRunning() {
			t.Fatalf("daemon still running after Stop cycle %d", i)
		}
	}
}

func TestDaemonStartTwice(t *testing.T) {
	cfg := testDaemonConfig(t)

	log, err := logger.New(cfg.Log)
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Close()

	d := NewDaemon(cfg, "", log)
	if err := d.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(t.Context()); err == nil {
		t.Error("second Start did not fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop again is a no-op.
	if err := d.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
