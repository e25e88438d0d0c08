package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/internal/app"
	"github.com/partnerforge/progression/internal/config"
	"github.com/partnerforge/progression/pkg/common"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.Infof("starting progression server..")

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}

	common.ConfigureLogging(cfg.LogFormat, cfg.LogLevel)

	ctx := context.Background()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		logrus.Errorf("application stopped with error: %v", err)
		os.Exit(1)
	}
}
