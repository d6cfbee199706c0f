// Package main provides the audio service entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/nativeaudio/internal/api/connect"
	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/app/facade"
	"github.com/osa030/nativeaudio/internal/app/metadata"
	"github.com/osa030/nativeaudio/internal/app/session"
	"github.com/osa030/nativeaudio/internal/infra/config"
	"github.com/osa030/nativeaudio/internal/infra/fetch"
	"github.com/osa030/nativeaudio/internal/infra/lastfm"
	"github.com/osa030/nativeaudio/internal/infra/logger"
	"github.com/osa030/nativeaudio/internal/infra/player"
	"github.com/osa030/nativeaudio/internal/infra/snapshot"
	"github.com/osa030/nativeaudio/internal/infra/spotify"
)

const userAgent = "nativeaudio/1.0"

var (
	app        = kingpin.New("audiod", "Native audio playback service")
	configPath = app.Flag("config", "Path to config file (defaults are used when empty)").Default("config/audiod.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the service (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configPath)
	if command == checkConfigCmd.FullCommand() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
			os.Exit(1)
		}
		printConfig(cfg)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: cfg.Logging.Output,
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loaded config from %s", *configPath)

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// loadConfig reads path, or returns the defaults when path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default()
	}
	return config.Load(path)
}

func printConfig(cfg *config.Config) {
	fmt.Println("Config OK")
	fmt.Printf("  %-20s %s\n", "server.addr", cfg.Server.Addr)
	fmt.Printf("  %-20s %t\n", "server.token", cfg.Server.Token != "")
	fmt.Printf("  %-20s %s\n", "session.host_origin", cfg.Session.HostOrigin)
	fmt.Printf("  %-20s %s\n", "snapshot.store", cfg.Snapshot.Store)
	fmt.Printf("  %-20s %t\n", "spotify", cfg.SpotifyEnabled())
	fmt.Printf("  %-20s %t\n", "lastfm", cfg.LastFM.APIKey != "")
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return err
	}
	enricher, err := newEnricher(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := newSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	probe := player.ProbeMP3
	if !cfg.Player.ProbeLocal {
		probe = player.NoProbe
	}

	coordinator := session.NewCoordinator(session.Options{
		HostOrigin:    cfg.Session.HostOrigin,
		PlayerFactory: player.NewFactory(player.Config{Tick: cfg.Tick(), Probe: probe}),
		Fetcher:       fetcher,
		Enricher:      enricher,
		Store:         store,
		Pool: coord.PoolConfig{
			Workers:   cfg.Metadata.Workers,
			QueueSize: cfg.Metadata.QueueSize,
			Rate:      cfg.Metadata.Rate,
			Burst:     cfg.Metadata.Burst,
		},
		FetchTimeout:    cfg.FetchTimeout(),
		SnapshotTimeout: cfg.SnapshotTimeout(),
		DefaultVolume:   cfg.Player.Volume,
		DefaultRate:     cfg.Player.Rate,
		UpdateInterval:  cfg.MetadataInterval(),
		SurfaceOptions: session.SurfaceOptions{
			ShowSeekBackward: cfg.ShowSeekBackward(),
			ShowSeekForward:  cfg.ShowSeekForward(),
		},
	})

	audioService := apiconnect.NewAudioService(facade.New(coordinator), coordinator, cfg.Callbacks.Buffer)
	router := apiconnect.NewRouter(audioService, cfg.Server.Token)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s host_id=%s", cfg.Server.Addr, coordinator.Status().HostID)
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

	var runErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received shutdown signal: %s", sig)
	case <-coordinator.Done():
		zlog.Info().Msg("Coordinator closed, shutting down...")
	case err := <-serverErrCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the coordinator first so callback streams end before the server drains
	if err := coordinator.Close(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to close coordinator: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// newFetcher routes spotify: track URLs to the Spotify API and everything
// else to the plain HTTP fetcher.
func newFetcher(ctx context.Context, cfg *config.Config) (metadata.Fetcher, error) {
	httpFetcher := fetch.NewHTTP(fetch.HTTPConfig{
		Timeout:   cfg.FetchTimeout(),
		MaxBody:   int64(cfg.Metadata.MaxBodyKB) << 10,
		UserAgent: userAgent,
	})

	route := fetch.Route{Name: "spotify", Match: spotify.Handles}
	if cfg.SpotifyEnabled() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify client: %w", err)
		}
		route.Fetcher = client
		zlog.Info().Msgf("Spotify metadata enabled: market=%s", cfg.Spotify.Market)
	}
	return fetch.NewRouter(httpFetcher, route), nil
}

func newEnricher(cfg *config.Config) (metadata.Enricher, error) {
	if cfg.LastFM.APIKey == "" {
		zlog.Info().Msg("Last.fm API key not configured, artwork enrichment disabled")
		return nil, nil
	}
	client, err := lastfm.New(lastfm.Config{
		APIKey:  cfg.LastFM.APIKey,
		BaseURL: cfg.LastFM.BaseURL,
		Timeout: cfg.FetchTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Last.fm client: %w", err)
	}
	return client, nil
}

func newSnapshotStore(ctx context.Context, cfg *config.Config) (session.SnapshotStore, func(), error) {
	switch cfg.Snapshot.Store {
	case "redis":
		store, err := snapshot.NewRedis(ctx, snapshot.RedisConfig{
			Addr:     cfg.Snapshot.Addr,
			Password: cfg.Snapshot.Password,
			DB:       cfg.Snapshot.DB,
			TTL:      cfg.SnapshotTTL(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create snapshot store: %w", err)
		}
		return store, func() { closeQuietly(store) }, nil
	case "none":
		return nil, func() {}, nil
	default:
		return snapshot.NewMemory(), func() {}, nil
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		zlog.Warn().Msgf("Failed to close: %v", err)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
