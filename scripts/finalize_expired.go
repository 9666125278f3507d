// Manual sweep of expired timed attempts.
//
// The sweep runs inside the main application on a 30-second ticker;
// this script is only for triggering it by hand, for example after the
// service was down long enough for timed attempts to pile up.
//
// Usage: go run scripts/finalize_expired.go
package main

import (
	"context"
	"edupath_backend/internal/config"
	"edupath_backend/internal/repository"
	"edupath_backend/internal/service"
	"edupath_backend/pkg/database"
	"edupath_backend/pkg/logger"
	"log"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("failed to initialize redis: %v", err)
	}

	learnerRepo := repository.NewLearnerRepository(db)
	contentRepo := repository.NewContentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	roadmapRepo := repository.NewRoadmapRepository(db)

	events := service.NewEventService(rdb)
	locker := service.NewLearnerLocker(rdb)
	gate := service.NewGateService(learnerRepo, contentRepo, progressRepo, assessmentRepo, roadmapRepo, events)
	advisor := service.NewOpenAIAdvisor(cfg.Advisor)
	roadmap := service.NewRoadmapService(roadmapRepo, contentRepo, learnerRepo, progressRepo, assessmentRepo, gate, advisor, locker, events, cfg.Advisor)
	assessment := service.NewAssessmentService(assessmentRepo, contentRepo, progressRepo, gate, roadmap, locker, events)

	assessment.FinalizeExpired(context.Background())
	log.Println("expired attempt sweep finished")
}
