package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"earmark/internal/config"
	"earmark/internal/daemon"
	"earmark/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolvedPath, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("create directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if exists {
		logger.Info("config loaded", logging.String("path", resolvedPath))
	} else {
		logger.Info("no config file found, using defaults")
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		d.Stop()
		return
	}

	<-ctx.Done()
	logger.Info("earmarkd shutting down")
	d.Stop()
}
