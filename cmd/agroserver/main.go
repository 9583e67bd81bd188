// agroserver is the bundled MCP capability provider for mcprouter. It serves
// the weather, post-listing and agriculture-information tools over stdio;
// the router spawns it as a subprocess and speaks newline-delimited JSON-RPC
// on its stdin/stdout. All logging goes to stderr to keep the frame stream
// clean.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/i2y/mcprouter/internal/provider"
)

// Config holds provider configuration loaded from environment variables.
type Config struct {
	HTTPClientTimeout time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	WeatherBaseURL    string        `envconfig:"WEATHER_BASE_URL"`
	PostsBaseURL      string        `envconfig:"POSTS_BASE_URL"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg Config
	if err := envconfig.Process("agroserver", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	// Stdout carries JSON-RPC frames only; logs must go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	upstream := provider.NewUpstream(httpClient, provider.UpstreamConfig{
		WeatherBaseURL: cfg.WeatherBaseURL,
		PostsBaseURL:   cfg.PostsBaseURL,
	}, logger)

	mcpSrv := mcpGoServer.NewMCPServer("agroserver", "0.1.0")
	provider.NewTools(upstream, logger).Register(mcpSrv)
	logger.Info("Tools registered, serving on stdio.")

	stdioServer := mcpGoServer.NewStdioServer(mcpSrv)
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("STDIO server error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Shut down.")
}
