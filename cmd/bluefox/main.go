// Bluefox - game lobby server.
//
// Bluefox hosts the pre-game lobby: clients connect over direct TCP or an
// HTTP tunnel, log in, browse and join rooms, flag themselves ready, and
// hand off to peer-to-peer gameplay once the owner starts the game. An
// admin REST API and interactive CLI cover monitoring and moderation, with
// optional MQTT telemetry for fleet dashboards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/api"
	"github.com/bluefox-project/bluefox/internal/bluebox"
	"github.com/bluefox-project/bluefox/internal/cli"
	"github.com/bluefox-project/bluefox/internal/config"
	"github.com/bluefox-project/bluefox/internal/db"
	"github.com/bluefox-project/bluefox/internal/events"
	"github.com/bluefox-project/bluefox/internal/health"
	"github.com/bluefox-project/bluefox/internal/lobby"
	"github.com/bluefox-project/bluefox/internal/network"
	"github.com/bluefox-project/bluefox/internal/room"
	"github.com/bluefox-project/bluefox/internal/session"
	"github.com/bluefox-project/bluefox/internal/sweeper"
	"github.com/bluefox-project/bluefox/internal/telemetry"
	"github.com/bluefox-project/bluefox/internal/util"
)

const (
	AppName    = "Bluefox"
	AppVersion = "1.0.0"
	Banner     = `
  ____  _             __
 | __ )| |_   _  ___ / _| _____  __
 |  _ \| | | | |/ _ \ |_ / _ \ \/ /
 | |_) | | |_| |  __/  _| (_) >  <
 |____/|_|\__,_|\___|_|  \___/_/\_\  v%s
 Game Lobby Server
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Bluefox")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.ApplicationData.Logging.Level,
		Directory:  cfg.ApplicationData.Logging.Directory,
		MaxSizeMB:  cfg.ApplicationData.Logging.MaxSizeMB,
		MaxBackups: cfg.ApplicationData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	mdb, err := db.NewModerationDatabase(cfg.ApplicationData.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open moderation database")
	}
	defer mdb.Close()

	sessions := session.NewRegistry()
	rooms := room.NewRegistry()
	svc := lobby.NewService(sessions, rooms, mdb, eventBus)
	svc.SetRoomLimit(cfg.GetServerData().MaxRooms)

	tunnel := bluebox.NewTunnel(svc)
	conns := network.NewConnectionRegistry()

	tcpListener := network.NewTCPListener(cfg, svc, conns)
	udpListener := network.NewUDPPingListener(cfg)
	apiServer := api.NewServer(cfg, eventBus, svc, tunnel, conns, mdb)
	sweep := sweeper.NewSweeper(cfg, sessions, rooms, eventBus)
	healthMgr := health.NewManager(cfg, eventBus, svc, conns)
	cliHandler := cli.NewCLI(cfg, eventBus, svc, conns, mdb)

	// Shutdown requests from the CLI and API arrive on the bus.
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, ev events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	// Persist moderation-relevant events as alerts for the dashboard.
	eventBus.Subscribe(events.EventAlert, "main.alert", func(ctx context.Context, ev events.Event) error {
		if p, ok := ev.Payload.(events.AlertPayload); ok {
			return mdb.CreateAlert(string(ev.Type), p.Level, p.Title+": "+p.Message)
		}
		return nil
	})
	eventBus.Subscribe(events.EventLoginRejected, "main.loginRejected", func(ctx context.Context, ev events.Event) error {
		if p, ok := ev.Payload.(events.ModerationPayload); ok {
			return mdb.CreateAlert(string(ev.Type), "warning",
				fmt.Sprintf("banned account %s attempted login: %s", p.Target, p.Reason))
		}
		return nil
	})

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.ApplicationData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: TCP transport (with retry for port binding)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", cfg.ServerData.TCPPort).Msg("starting TCP listener")
		if err := startWithRetry(ctx, "TCP listener", tcpListener.Start, 15); err != nil {
			log.Error().Err(err).Msg("TCP listener failed after retries")
			errCh <- fmt.Errorf("tcp listener: %w", err)
		}
	}()

	// Task 2: HTTP surfaces (tunnel + admin API, with retry for port binding)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().
			Int("http_port", cfg.ServerData.HTTPPort).
			Int("api_port", cfg.ServerData.APIPort).
			Msg("starting HTTP servers")
		if err := startWithRetry(ctx, "HTTP servers", apiServer.Start, 15); err != nil {
			log.Error().Err(err).Msg("HTTP servers failed after retries")
			errCh <- fmt.Errorf("http servers: %w", err)
		}
	}()

	// Task 3: UDP latency probe responder (non-fatal)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting UDP ping listener")
		if err := startWithRetry(ctx, "UDP ping", udpListener.Start, 15); err != nil {
			log.Warn().Err(err).Msg("UDP ping listener failed after retries (non-fatal)")
		}
	}()

	// Task 4: idle sweeper
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting cleanup sweeper")
		sweep.Start(ctx)
	}()

	// Task 5: health check manager
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting health check manager")
		healthMgr.Start(ctx)
	}()

	// Task 6: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 7: Interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested by operator")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Cancel the root context to signal all goroutines
	cancel()

	// Emit shutdown event
	eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})

	// Close client sockets so blocked reads return
	conns.CloseAll()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last
	eventBus.Stop()

	// Shutdown MQTT
	if mqttHandler != nil {
		mqttHandler.PublishShutdown()
	}

	log.Info().Msg("Bluefox stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind errors.
// Uses a fixed 3-second interval between retries. This gives enough time
// for the OS to release sockets after a process is force-killed.
// Returns nil on success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
