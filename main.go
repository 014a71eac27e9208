package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chapelmedia/broadcastd/cmd"
	"github.com/chapelmedia/broadcastd/internal/api"
	"github.com/chapelmedia/broadcastd/internal/config"
	"github.com/chapelmedia/broadcastd/internal/events"
	"github.com/chapelmedia/broadcastd/internal/gateway"
	"github.com/chapelmedia/broadcastd/internal/liveness"
	"github.com/chapelmedia/broadcastd/internal/logging"
	"github.com/chapelmedia/broadcastd/internal/relay"
	"github.com/chapelmedia/broadcastd/internal/reminder"
	"github.com/chapelmedia/broadcastd/internal/restream"
	"github.com/chapelmedia/broadcastd/internal/vault"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Upstream media server
	UpstreamHLS     string `help:"Upstream HLS base URL" default:"http://127.0.0.1:8888/live" toml:"upstream.hls_url" env:"UPSTREAM_HLS_URL"`
	LivenessTTL     string `help:"Liveness poll cache TTL" default:"5s" toml:"upstream.liveness_ttl" env:"UPSTREAM_LIVENESS_TTL"`
	LivenessTimeout string `help:"Liveness poll timeout" default:"4s" toml:"upstream.liveness_timeout" env:"UPSTREAM_LIVENESS_TIMEOUT"`

	// State files
	BroadcastFile string `help:"Broadcast info file" default:"broadcast.toml" toml:"state.broadcast_file" env:"STATE_BROADCAST_FILE"`
	PlatformsFile string `help:"Restream platforms file" default:"platforms.toml" toml:"state.platforms_file" env:"STATE_PLATFORMS_FILE"`
	StatusFile    string `help:"Restream status file" default:"restream_status.toml" toml:"state.status_file" env:"STATE_STATUS_FILE"`
	RemindersFile string `help:"Reminders file" default:"reminders.toml" toml:"state.reminders_file" env:"STATE_REMINDERS_FILE"`

	// Vault settings
	VaultKey string `help:"32-byte hex encryption key for stored credentials" toml:"vault.key" env:"VAULT_KEY"`

	// Membership platform settings
	PlatformAPIURL    string `help:"Membership platform internal API base URL" default:"http://127.0.0.1:8080" toml:"platform.api_url" env:"PLATFORM_API_URL"`
	PlatformAPISecret string `help:"Shared secret for the membership platform API" toml:"platform.api_secret" env:"PLATFORM_API_SECRET"`

	// Gateway settings
	GatewayHeartbeat string `help:"Websocket heartbeat interval" default:"30s" toml:"gateway.heartbeat" env:"GATEWAY_HEARTBEAT"`

	// Reminder settings
	ReminderInterval string `help:"Reminder scan interval" default:"30s" toml:"reminder.interval" env:"REMINDER_INTERVAL"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingLiveness string `help:"Liveness detector logging level" default:"info" toml:"logging.liveness" env:"LOGGING_LIVENESS"`
	LoggingRelay    string `help:"HLS relay logging level" default:"info" toml:"logging.relay" env:"LOGGING_RELAY"`
	LoggingRestream string `help:"Restream supervisor logging level" default:"info" toml:"logging.restream" env:"LOGGING_RESTREAM"`
	LoggingEncoder  string `help:"Encoder process output logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingGateway  string `help:"Realtime gateway logging level" default:"info" toml:"logging.gateway" env:"LOGGING_GATEWAY"`
	LoggingReminder string `help:"Reminder dispatcher logging level" default:"info" toml:"logging.reminder" env:"LOGGING_REMINDER"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"liveness": opts.LoggingLiveness,
				"relay":    opts.LoggingRelay,
				"restream": opts.LoggingRestream,
				"encoder":  opts.LoggingEncoder,
				"gateway":  opts.LoggingGateway,
				"reminder": opts.LoggingReminder,
				"api":      opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")

		if opts.VaultKey == "" {
			logger.Error("No encryption key configured, set vault.key or BROADCASTD_VAULT_KEY")
			os.Exit(1)
		}
		credVault, err := vault.New(opts.VaultKey)
		if err != nil {
			logger.Error("Invalid encryption key", "error", err)
			os.Exit(1)
		}

		eventBus := events.New()

		// Every log line also feeds the SSE log tail.
		logging.SetCallback(func(entry logging.Entry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		infoStore := liveness.NewInfoStore(opts.BroadcastFile)
		if loadErr := infoStore.Load(); loadErr != nil {
			logger.Warn("Failed to load broadcast info", "error", loadErr)
		}

		manifestURL := opts.UpstreamHLS + "/index.m3u8"
		detector := liveness.NewDetector(liveness.Options{
			ManifestURL: manifestURL,
			TTL:         parseDuration(opts.LivenessTTL, 5*time.Second),
			Timeout:     parseDuration(opts.LivenessTimeout, 4*time.Second),
			Store:       infoStore,
			Bus:         eventBus,
			Logger:      logging.GetLogger("liveness"),
		})

		relayHandler, err := relay.New(opts.UpstreamHLS,
			parseDuration(opts.LivenessTimeout, 4*time.Second),
			logging.GetLogger("relay"))
		if err != nil {
			logger.Error("Invalid upstream HLS URL", "url", opts.UpstreamHLS, "error", err)
			os.Exit(1)
		}

		platformStore := restream.NewPlatformStore(opts.PlatformsFile)
		if loadErr := platformStore.Load(); loadErr != nil {
			logger.Warn("Failed to load platform config", "error", loadErr)
		}
		statusStore := restream.NewStatusStore(opts.StatusFile)
		if loadErr := statusStore.Load(); loadErr != nil {
			logger.Warn("Failed to load restream status", "error", loadErr)
		}

		supervisor := restream.NewSupervisor(restream.SupervisorOptions{
			ManifestURL:   manifestURL,
			Platforms:     platformStore,
			Status:        statusStore,
			Vault:         credVault,
			Bus:           eventBus,
			Logger:        logging.GetLogger("restream"),
			EncoderLogger: logging.GetLogger("encoder"),
		})

		// Pick up platform config edits made outside the API.
		platformWatcher := config.NewConfigWatcher(opts.PlatformsFile, func(path string) (struct{}, error) {
			if reloadErr := platformStore.Load(); reloadErr != nil {
				return struct{}{}, reloadErr
			}
			return struct{}{}, nil
		}, logging.GetLogger("restream"))
		platformWatcher.OnReload(func(struct{}) {
			logger.Info("Platform configuration reloaded", "file", opts.PlatformsFile)
		})

		gatewayLogger := logging.GetLogger("gateway")
		directory := gateway.NewDirectory(opts.PlatformAPIURL, opts.PlatformAPISecret,
			10*time.Second, gatewayLogger)
		hub := gateway.NewHub(parseDuration(opts.GatewayHeartbeat, 30*time.Second), nil, gatewayLogger)
		gatewayHandler := gateway.NewHandler(hub, directory, directory, gatewayLogger)

		reminderStore := reminder.NewStore(opts.RemindersFile)
		if loadErr := reminderStore.Load(); loadErr != nil {
			logger.Warn("Failed to load reminders", "error", loadErr)
		}
		dispatcher := reminder.NewDispatcher(reminderStore, hub,
			parseDuration(opts.ReminderInterval, 30*time.Second),
			nil, eventBus, logging.GetLogger("reminder"))
		dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Detector:          detector,
			InfoStore:         infoStore,
			Platforms:         platformStore,
			Supervisor:        supervisor,
			Vault:             credVault,
			EventBus:          eventBus,
			RelayHandler:      relayHandler,
			GatewayHandler:    gatewayHandler,
			PrometheusHandler: promhttp.Handler(),
			RelayBasePath:     "/live/hls",
		})

		hooks.OnStart(func() {
			go dispatcher.Run(dispatcherCtx)
			if watchErr := platformWatcher.Start(); watchErr != nil {
				logger.Warn("Platform config watcher unavailable", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			platformWatcher.Stop()
			stopDispatcher()
			supervisor.StopAll()
			hub.Stop()
		})
	})

	cli.Root().AddCommand(cmd.CreateEncryptKeyCmd())

	cli.Run()
}
