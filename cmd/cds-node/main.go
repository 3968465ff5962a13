// cds-node runs the Connected Dominating Set control plane for a LoRa
// mesh networking node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/cds"
	"github.com/nu-iot-lab/lora-mesh-cds/internal/config"
	cdsmetrics "github.com/nu-iot-lab/lora-mesh-cds/internal/metrics"
	"github.com/nu-iot-lab/lora-mesh-cds/internal/radio"
	"github.com/nu-iot-lab/lora-mesh-cds/internal/server"
	"github.com/nu-iot-lab/lora-mesh-cds/internal/statussink"
	"github.com/nu-iot-lab/lora-mesh-cds/internal/textforward"
	appversion "github.com/nu-iot-lab/lora-mesh-cds/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	mac, err := resolveMAC(cfg.CDS.MAC)
	if err != nil {
		logger.Error("failed to resolve node MAC", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("cds-node starting",
		slog.String("version", appversion.Version),
		slog.String("mac", mac.String()),
		slog.String("radio_transport", cfg.Radio.Transport),
		slog.String("status_addr", cfg.Status.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := cdsmetrics.NewCollector(reg)

	r, err := newRadio(cfg.Radio, logger)
	if err != nil {
		logger.Error("failed to create radio", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			logger.Warn("failed to close radio", slog.String("error", cerr.Error()))
		}
	}()

	sink := statussink.NewTextSink(os.Stdout)

	engine := cds.NewEngine(mac, r, cds.RealScheduler{}, sink,
		cds.WithMetrics(collector),
		cds.WithLogger(logger),
	)

	fwd := textforward.NewForwarder(r, engine)

	if err := runServers(cfg, engine, r, fwd, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("cds-node exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("cds-node stopped")
	return 0
}

// runServers starts the beacon loop and the status/metrics HTTP servers
// under an errgroup with a signal-aware context for graceful shutdown.
func runServers(
	cfg *config.Config,
	engine *cds.Engine,
	r radio.Radio,
	fwd *textforward.Forwarder,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	engine.Start()
	wireTextForwarding(r, engine, fwd, logger)
	g.Go(func() error {
		return engine.RunBeaconLoop(gCtx)
	})

	statusSrv := newStatusServer(cfg.Status, engine, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	startHTTPServers(gCtx, g, cfg, statusSrv, metricsSrv, logger)
	startSIGHUPHandler(gCtx, g, configPath, logLevel, logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, engine, logger, statusSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startSIGHUPHandler registers a goroutine that reloads the dynamic log
// level from configPath whenever SIGHUP is received. configPath == ""
// (running off defaults) makes reload a no-op beyond re-reading defaults.
func startSIGHUPHandler(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)

	g.Go(func() error {
		defer signal.Stop(sigHUP)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigHUP:
				reloadLogLevel(configPath, logLevel, logger)
			}
		}
	})
}

// reloadLogLevel loads a fresh configuration from configPath and updates
// the dynamic log level. Errors are logged but do not stop the daemon.
func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// startHTTPServers registers the status and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	statusSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("status server listening", slog.String("addr", cfg.Status.Addr))
		return listenAndServe(ctx, &lc, statusSrv, cfg.Status.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newStatusServer creates an HTTP server for the CDS status endpoint.
func newStatusServer(cfg config.StatusConfig, engine *cds.Engine, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	path, handler := server.New(engine, logger)
	mux.Handle(path, handler)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// gracefulShutdown stops the engine's timers and drains the HTTP servers.
func gracefulShutdown(ctx context.Context, engine *cds.Engine, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// newRadio constructs the configured Radio transport.
func newRadio(cfg config.RadioConfig, logger *slog.Logger) (radio.Radio, error) {
	switch cfg.Transport {
	case "udp":
		r, err := radio.NewUDPRadio(cfg.ListenAddr, cfg.BroadcastAddr, cfg.SimulatedRSSI, logger)
		if err != nil {
			return nil, fmt.Errorf("create UDP radio: %w", err)
		}
		return r, nil
	case "loopback":
		return nil, fmt.Errorf("radio.transport=loopback requires an in-process radio.LoopbackBus: %w", errLoopbackNotStandalone)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidTransport, cfg.Transport)
	}
}

var errLoopbackNotStandalone = errors.New("loopback transport is not wireable from a standalone binary")

// wireTextForwarding routes TEXT_MESSAGE frames (tag textforward.PacketTag)
// to the text forwarder and every other non-empty frame to the engine's
// Dispatch.
func wireTextForwarding(r radio.Radio, engine *cds.Engine, fwd *textforward.Forwarder, logger *slog.Logger) {
	cdsDispatch := engine.Dispatch
	r.SetReceiveCallback(func(frame []byte, rssi int) {
		if len(frame) == 0 {
			return
		}
		if frame[0] == textforward.PacketTag {
			if err := fwd.Dispatch(frame); err != nil {
				logger.Warn("text-message dispatch failed", slog.String("error", err.Error()))
			}
			return
		}
		cdsDispatch(frame, rssi)
	})
}

// resolveMAC parses an explicit MAC override from configuration, or
// generates a random one if none was given.
func resolveMAC(override string) (cds.MAC, error) {
	if override == "" {
		mac, err := cds.NewRandomMAC()
		if err != nil {
			return cds.MAC{}, fmt.Errorf("generate random MAC: %w", err)
		}
		return mac, nil
	}

	var mac cds.MAC
	if err := mac.UnmarshalText([]byte(override)); err != nil {
		return cds.MAC{}, fmt.Errorf("parse configured MAC %q: %w", override, err)
	}
	return mac, nil
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
