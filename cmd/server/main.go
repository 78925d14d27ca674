// Package main provides the player server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/tunedeck/internal/api/httpapi"
	"github.com/osa030/tunedeck/internal/app/filter"
	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/app/radio"
	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/infra/config"
	"github.com/osa030/tunedeck/internal/infra/engine"
	"github.com/osa030/tunedeck/internal/infra/logger"
	"github.com/osa030/tunedeck/internal/infra/prefs"
	"github.com/osa030/tunedeck/internal/infra/spotify"
)

var (
	app        = kingpin.New("tunedeck-server", "tunedeck music player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	filters, err := filter.NewChainFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	if err := validatePlaylists(ctx, cfg, spotifyClient); err != nil {
		return fmt.Errorf("playlist validation failed: %w", err)
	}

	store := prefs.NewStore(cfg.Player.StateFile)
	mode, err := store.LoadMode(cfg.DefaultMode())
	if err != nil {
		zlog.Warn().Msgf("Failed to load saved mode, using %s: %v", mode, err)
	}
	zlog.Info().Msgf("Initial loop mode: %s", mode)

	opts := []playback.Option{
		playback.WithFilters(filters),
		playback.WithModeStore(store),
	}
	if len(cfg.Radio.Providers) > 0 {
		station, err := radio.NewChainFromConfig(cfg, spotifyClient)
		if err != nil {
			return fmt.Errorf("failed to create radio station: %w", err)
		}
		opts = append(opts, playback.WithStation(station))
	} else {
		zlog.Info().Msg("No radio providers configured, radio is disabled")
	}

	player := playback.NewController(
		queue.New(queue.WithMode(mode)),
		engine.NewTimerEngine(cfg.Tick()),
		spotifyClient,
		playback.Config{
			NoMoreMessage:  cfg.Player.NoMoreMessage,
			RadioBatchSize: cfg.Radio.BatchSize,
		},
		opts...,
	)

	notifier := notification.NewManager()
	forwardCtx, stopForward := context.WithCancel(ctx)
	defer stopForward()
	go notifier.Forward(forwardCtx, player.Events())

	api := httpapi.New(player, spotifyClient, notifier, cfg.Server.Token)
	if cfg.Server.Token == "" {
		zlog.Warn().Msg("No API token configured, the control API is open to anyone who can reach it")
	}

	// Request contexts derive from baseCtx so open event streams end on shutdown.
	baseCtx, cancelRequests := context.WithCancel(ctx)
	defer cancelRequests()

	// h2c lets HTTP/2 clients keep event streams open without TLS.
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(api.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	if err := player.Stop(); err != nil {
		zlog.Debug().Msgf("Stop on shutdown: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	player.Close()
	notifier.Close()
	cancelRequests()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	fmt.Printf("  %-30s - %s\n", "market_filter", "Always on: rejects tracks not playable in the configured market")
	for _, factory := range filter.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validatePlaylists checks that the playlists backing radio providers exist
// on Spotify. It retries to ride out transient errors during startup.
func validatePlaylists(ctx context.Context, cfg *config.Config, spotifyClient *spotify.Client) error {
	maxRetries := 5
	baseDelay := 1 * time.Second

	var errs []string

	validate := func(name, url string) error {
		zlog.Info().Msgf("Validating %s playlist: url=%s", name, url)

		var lastErr error
		for i := 0; i < maxRetries; i++ {
			if i > 0 {
				delay := baseDelay * time.Duration(1<<uint(i-1))
				zlog.Info().Msgf("Retrying %s playlist validation in %v...", name, delay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if err := spotifyClient.CheckPlaylistExists(ctx, url); err != nil {
				lastErr = err
				zlog.Warn().Msgf("Failed to validate %s playlist (attempt %d/%d): %v", name, i+1, maxRetries, err)
				continue
			}

			zlog.Info().Msgf("Playlist for %s validated successfully", name)
			return nil
		}
		return fmt.Errorf("failed after %d attempts: %v", maxRetries, lastErr)
	}

	for _, p := range cfg.Radio.Providers {
		if p.Type != "playlist" {
			continue
		}
		var settings radio.PlaylistProviderConfig
		if err := mapstructure.Decode(p.Settings, &settings); err != nil || settings.PlaylistURL == "" {
			// NewChainFromConfig reports the settings error
			continue
		}
		if err := validate(p.DisplayName, settings.PlaylistURL); err != nil {
			errs = append(errs, fmt.Sprintf("%s (%s): %v", p.DisplayName, settings.PlaylistURL, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("playlist validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
