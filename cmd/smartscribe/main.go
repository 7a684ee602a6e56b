package main

import (
	"log"

	"github.com/joho/godotenv"

	"smartscribe/internal/app"
	"smartscribe/pkg/config"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/shutdown"
)

// version is set via ldflags during release builds.
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(eff.Config.Logging.Level)

	a, err := app.New(eff, version)
	if err != nil {
		shutdown.Abort("startup_failed", err, eff.DBPath)
	}

	ctx, cancel := shutdown.Context()
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server_failed", err, eff.DBPath)
	}
}
