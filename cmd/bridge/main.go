package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/amctechnology/AmazonConnect/internal/app"
	"github.com/amctechnology/AmazonConnect/internal/config"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	version    = "1.0.0"
	buildTime  = "unknown"
	gitCommit  = "unknown"
)

func main() {
	flag.Parse()

	fmt.Printf("Amazon Connect Presence Bridge v%s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	logger := setupLogging(cfg, *logLevel)
	logger.Info().
		Str("version", version).
		Str("config_path", *configPath).
		Msg("Starting presence bridge")

	executor := app.NewExecutor(app.ExecutorConfig{
		Config:  cfg,
		Logger:  logger,
		Version: version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := executor.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start service")
	}

	logger.Info().Msg("Service is running. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	case <-executor.Done():
		logger.Info().Msg("Session ended")
	}

	logger.Info().Msg("Shutting down service...")
	if err := executor.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}

	logger.Info().Msg("Service stopped successfully")
}

func setupLogging(cfg *config.Config, logLevelFlag string) zerolog.Logger {
	levelStr := cfg.Service.LogLevel
	if logLevelFlag != "" {
		levelStr = logLevelFlag
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("| %-6s|", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		},
	}

	logger := zerolog.New(consoleWriter).With().
		Timestamp().
		Str("service", "presence-bridge").
		Logger()

	logger.Info().
		Str("level", level.String()).
		Msg("Logging initialized")

	return logger
}
