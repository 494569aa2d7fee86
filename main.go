package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eventsearch/mcp-server/internal/config"
	"github.com/eventsearch/mcp-server/internal/connection"
	"github.com/eventsearch/mcp-server/internal/logging"
	"github.com/eventsearch/mcp-server/internal/service"
	"github.com/eventsearch/mcp-server/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	version     = "0.3.0"
	serverName  = "eventsearch-mcp-server"
	description = "MCP server for storing and searching event documents"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s version %s\n", serverName, version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serverName, err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout carries the MCP protocol
	logger := logging.Must(cfg.Logging())
	defer logger.Sync()
	logger.Info("starting", zap.String("server", serverName), zap.String("version", version),
		zap.String("engine", cfg.Engine), zap.String("index", cfg.Index))

	if err := connection.Init(cfg.EngineFactory(logger)); err != nil {
		logger.Fatal("failed to configure connection", zap.Error(err))
	}
	defer func() {
		if err := connection.CloseConnection(); err != nil && !errors.Is(err, connection.ErrNotOpen) {
			logger.Warn("error closing connection", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prepareIndex(ctx, cfg, logger)

	server := createMCPServer()
	count := tools.RegisterEventTools(server, tools.NewEventTools(connection.Default(), cfg.Index, logger))
	logger.Info("server ready", zap.Int("tools", count))

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", zap.Error(err))
	}
}

// prepareIndex creates the events index when the engine is reachable.
// The server still starts if it is not; tools report the error per call.
func prepareIndex(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	e, err := connection.GetConnection(ctx)
	if err != nil {
		logger.Warn("search engine unavailable at startup", zap.Error(err))
		return
	}
	service.NewEventSearchService(e, service.WithIndex(cfg.Index), service.WithLogger(logger)).
		EnsureEventsIndex(ctx)
}

func createMCPServer() *mcp.Server {
	return mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Title:   description,
			Version: version,
		},
		nil,
	)
}
