package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings"
	"github.com/matthewjhunter/tidings/internal/storage"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path (.yaml or .toml)")
	addr := flag.String("addr", "", "listen address (default: web.addr)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tidings-web: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}

	logger, err := newLogger(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tidings-web: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	engineCfg := tidings.NewEngineConfig(cfg)
	engineCfg.Logger = logger
	engine, err := tidings.NewEngine(engineCfg)
	if err != nil {
		logger.Fatal("failed to open engine", zap.Error(err))
	}
	defer engine.Close()

	if cfg.Log.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(engine, cfg, logger)

	srv := &http.Server{
		Addr:        cfg.Web.Addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Summary generation waits on the model.
		WriteTimeout: cfg.Ollama.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Web.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-done
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		return
	}
	logger.Info("stopped")
}

func newLogger(mode string) (*zap.Logger, error) {
	switch strings.ToLower(mode) {
	case "development", "dev":
		return zap.NewDevelopment()
	case "off", "none":
		return zap.NewNop(), nil
	default:
		return zap.NewProduction()
	}
}
