// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rapidaai/checkin/config"
	internal_pipeline "github.com/rapidaai/checkin/internal/pipeline"
	"github.com/rapidaai/checkin/pkg/commons"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("unable to read configuration %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("unable to parse configuration %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Fatalf("unable to create logger %v", err)
	}
	defer logger.Sync()

	pipeline, err := internal_pipeline.New(logger, cfg)
	if err != nil {
		logger.Fatalf("unable to assemble pipeline %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipeline.Start(ctx); err != nil {
		logger.Fatalf("unable to start pipeline %v", err)
	}
	logger.Infof("%s %s ready (realtime=%v)", cfg.Name, cfg.Version, pipeline.RealtimeUpdates())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := pipeline.Close(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
