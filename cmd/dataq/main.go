// Command dataq tracks objects from a detection feed and publishes tracks,
// paths, occupancy and anomaly signals.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/dataq/internal/api"
	"github.com/banshee-data/dataq/internal/config"
	"github.com/banshee-data/dataq/internal/db"
	"github.com/banshee-data/dataq/internal/geospace"
	"github.com/banshee-data/dataq/internal/ingest"
	"github.com/banshee-data/dataq/internal/monitoring"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/scene"
	"github.com/banshee-data/dataq/internal/serialmux"
	"github.com/banshee-data/dataq/internal/version"
	"github.com/banshee-data/dataq/internal/ws"
)

// healthService is the name reported by the gRPC health service.
const healthService = "dataq"

func main() {
	opts, err := parseFlags(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("dataq: %v", err)
	}
	if opts.showVersion {
		fmt.Println(version.Get())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("dataq: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func setupLogging(o *options) {
	w := scene.LogWriters{Ops: os.Stderr}
	if o.debug || o.trace {
		w.Diag = os.Stderr
	}
	if o.trace {
		w.Trace = os.Stderr
	}
	scene.SetLogWriters(w)
}

// loadConfig reads the defaults file and layers the settings persisted by
// earlier /api/config updates over it.
func loadConfig(path string, database *db.DB) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	stored, err := database.LoadSetting(db.SettingsConfigKey)
	if errors.Is(err, db.ErrNotFound) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	merged, err := cfg.Merge(stored)
	if err != nil {
		log.Printf("Warning: ignoring stored settings: %v", err)
		return cfg, nil
	}
	return merged, nil
}

// logPublisher reports anomaly transitions and status on the ops stream.
func logPublisher(_ context.Context, ev pipeline.Event) error {
	switch payload := ev.Payload.(type) {
	case pipeline.AnomalySignal:
		if payload.State {
			scene.Opsf("anomaly raised: %s track=%s class=%s", payload.Reason, payload.TrackID, payload.Class)
		} else {
			scene.Opsf("anomaly cleared")
		}
	case pipeline.Status:
		scene.Opsf("status: uptime=%.2fh queue=%d dropped=%d tracks=%d held=%d",
			payload.UptimeHours, payload.QueueDepth, payload.Dropped, payload.Tracks, payload.Held)
	}
	return nil
}

func run(ctx context.Context, o *options) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	setupLogging(o)
	log.Printf("dataq %s starting", version.Get())

	database, err := db.NewDB(o.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	cfg, err := loadConfig(o.configPath, database)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	geo := geospace.NewTransformer()
	if err := geo.SetMatrix(cfg.Geospace); err != nil {
		return err
	}

	hub := ws.NewHub()
	pipeOpts := cfg.Options()
	pipeOpts.Serial = o.id
	p := pipeline.New(cfg.Settings(), pipeOpts,
		hub,
		db.NewStore(database),
		pipeline.PublisherFunc(logPublisher),
	)
	feed := ingest.NewFeed(ingest.NewDecoder(cfg.GetRotation(), cfg.GetCOG()), p, nil)

	mux := http.NewServeMux()
	api.NewServer(api.Options{
		Pipeline: p,
		DB:       database,
		Geo:      geo,
		Feed:     feed,
		Config:   cfg,
	}).Register(mux)
	mux.Handle("GET /ws/{topic}", hub)
	if err := database.AttachAdminRoutes(mux); err != nil {
		return fmt.Errorf("failed to attach admin routes: %w", err)
	}

	var lines *serialmux.SerialMux[serial.Port]
	if o.serialPort != "" {
		lines, err = serialmux.NewRealSerialMux(o.serialPort, serialmux.PortOptions{BaudRate: o.baudRate})
		if err != nil {
			return err
		}
		lines.AttachAdminRoutes(mux)
	}

	// Bind before starting any routine so a port conflict fails cleanly.
	var grpcLis net.Listener
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	if o.grpcListen != "" {
		grpcLis, err = net.Listen("tcp", o.grpcListen)
		if err != nil {
			if lines != nil {
				lines.Close()
			}
			return fmt.Errorf("failed to listen: %w", err)
		}
	}

	var wg sync.WaitGroup

	// Sources and the pipeline all stop on ctx. Run flushes live tracks to
	// the publishers before returning.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	startSources(ctx, &wg, o, feed, lines)

	server := &http.Server{
		Addr:     o.listen,
		Handler:  api.LoggingMiddleware(mux),
		ErrorLog: log.New(monitoring.Writer("http: "), "", 0),
	}
	serveErr := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", o.listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if grpcLis != nil {
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("gRPC health service listening on %s", o.grpcListen)
			if err := grpcServer.Serve(grpcLis); err != nil {
				serveErr <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		log.Printf("%v", runErr)
	}
	log.Println("shutting down...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
	if lines != nil {
		lines.Close()
	}
	cancelRun()
	wg.Wait()
	return runErr
}
