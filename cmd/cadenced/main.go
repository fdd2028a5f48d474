package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"cadence/internal/app"
	"cadence/pkg/config"
	"cadence/pkg/logger"
	"cadence/pkg/shutdown"
)

// build metadata, set via ldflags during release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	cfgPath := flag.String("config", os.Getenv("CADENCE_CONFIG"), "path to config file")
	addr := flag.String("addr", "", "ops listen address (overrides config)")
	dbPath := flag.String("db", "", "local cache path (overrides config)")
	flag.Parse()

	logger.Init()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		shutdown.Abort("config load failed", err, "")
	}
	// flags win over env and file
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Cache.Path = *dbPath
	}
	if cfg.Logging.Level != "" {
		logger.InitWithLevel(cfg.Logging.Level)
	}

	a, err := app.New(cfg, version)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Cache.Path)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server failed", err, cfg.Cache.Path)
	}
}
