package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfunk/modetrader/internal/api"
	"github.com/openfunk/modetrader/internal/cache"
	"github.com/openfunk/modetrader/internal/config"
	"github.com/openfunk/modetrader/internal/settings"
	"github.com/openfunk/modetrader/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("version", cfg.App.Version).Msg("Starting ModeTrader settings service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	repo, err := store.NewPostgres(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer repo.Close()

	client := cache.NewClient(cache.Options{
		Addr:             cfg.Redis.GetRedisAddr(),
		Password:         cfg.Redis.Password,
		DB:               cfg.Redis.DB,
		PoolSize:         cfg.Redis.PoolSize,
		FailureThreshold: cfg.Redis.FailureThreshold,
		ProbeInterval:    cfg.Redis.GetProbeInterval(),
	})
	defer client.Close()

	loader := settings.NewLoader(cfg.Defaults.FilePath)
	users := cache.NewSettingsCache(client, repo, loader, config.NewLogger("settings_cache"))
	admin := cache.NewAdminDefaultsCache(client, loader, config.NewLogger("admin_defaults"))

	if err := admin.LoadAdminDefaults(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial admin defaults load failed, will retry on demand")
	}

	// Periodic sweep so a defaults file edit propagates to the mirror
	// without a restart.
	go runDefaultsSweep(ctx, admin, cfg.Defaults.GetCheckInterval())

	server := api.NewServer(api.Config{
		Host:          cfg.API.Host,
		Port:          cfg.API.Port,
		Client:        client,
		Users:         users,
		Admin:         admin,
		EnableMetrics: cfg.Monitoring.EnableMetrics,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop server gracefully")
		os.Exit(1)
	}

	log.Info().Msg("Server stopped successfully")
}

// runDefaultsSweep periodically re-fingerprints the defaults file and
// refreshes the admin mirror when it changed.
func runDefaultsSweep(ctx context.Context, admin *cache.AdminDefaultsCache, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshed, err := admin.CheckAndRefreshIfChanged(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Admin defaults change check failed")
				continue
			}
			if refreshed {
				log.Info().Msg("Admin defaults changed on disk, mirror refreshed")
			}
		}
	}
}
