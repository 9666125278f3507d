// @title EduPath Backend API
// @version 1.0
// @description Learner progression, assessment and roadmap engine.

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"edupath_backend/internal/app"
	"edupath_backend/internal/config"
	"edupath_backend/pkg/configwatcher"
	"edupath_backend/pkg/logger"
	"flag"
	"log"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run database migration and exit")
	migrate := flag.Bool("migrate", false, "force database migration on startup, even in release mode")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	if *migrateOnly {
		log.Println("Database migration completed, exiting")
		return
	}

	application.RegisterConfigCallback(func(c *config.Config) {
		logger.SetMode(c.Server.Mode)
	})
	go configwatcher.WatchConfig("configs/config.yaml", cfg, application.ReloadConfig)

	application.Run()
}
