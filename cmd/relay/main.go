package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	relay "github.com/bt-bridge/convai-relay"
	"github.com/bt-bridge/convai-relay/shared"
	"go.uber.org/zap"
)

const (
	logFilename   = "relay.log"
	logMaxSizeMB  = 10
	logMaxBackups = 2
	logMaxAgeDays = 3
	logCompress   = false
)

func main() {
	logger := shared.NewFileLogger(logFilename, logMaxSizeMB, logMaxBackups, logMaxAgeDays, logCompress).
		With(
			zap.String("component", "relay"),
			zap.String("version", shared.Version),
		)

	cfgPath := shared.Getenv("RELAY_CONFIG", "config.yaml")
	cfg, err := relay.LoadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", err, zap.String("path", cfgPath))
		os.Exit(1)
	}

	srv, err := relay.NewServer(logger, cfg)
	if err != nil {
		logger.Error("failed to create server", err)
		os.Exit(1)
	}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.Run()
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errC:
		if err != nil {
			logger.Error("server stopped", err)
			os.Exit(1)
		}
	case sig := <-sigC:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", err)
			os.Exit(1)
		}
	}
}
