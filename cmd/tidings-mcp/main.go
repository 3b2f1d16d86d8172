// tidings-mcp is a standalone MCP server for the tidings news tracker. It
// opens the tidings database directly and serves article and summary tools
// over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings"
	"github.com/matthewjhunter/tidings/internal/storage"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path (.yaml or .toml)")
	dbPath := flag.String("db", "", "path to tidings database (default: database.path)")
	poll := flag.Duration("poll", 0, "check the listing in the background at this interval (0 disables)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tidings-mcp: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// stdout carries the protocol; zap's production config logs to stderr.
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tidings-mcp: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	engineCfg := tidings.NewEngineConfig(cfg)
	engineCfg.Logger = logger
	engine, err := tidings.NewEngine(engineCfg)
	if err != nil {
		logger.Fatal("create tidings engine", zap.Error(err))
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var p *poller
	if *poll > 0 {
		p = newPoller(engine, max(*poll, time.Minute), logger.Named("poller"))
		p.start(ctx)
		defer p.stop()
	}

	srv := newServer(engine, p)
	logger.Info("tidings-mcp starting", zap.String("db", cfg.Database.Path))
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
