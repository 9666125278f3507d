package app

import (
	"context"
	"edupath_backend/internal/config"
	"edupath_backend/internal/controller"
	"edupath_backend/internal/repository"
	"edupath_backend/internal/service"
	"edupath_backend/pkg/database"
	"edupath_backend/pkg/logger"
	"edupath_backend/pkg/monitoring"
	"edupath_backend/pkg/security"
	"edupath_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	stopSweeper     chan struct{}
	configCallbacks []func(*config.Config)
}

type repositories struct {
	learner    *repository.LearnerRepository
	content    *repository.ContentRepository
	assessment *repository.AssessmentRepository
	progress   *repository.ProgressRepository
	roadmap    *repository.RoadmapRepository
}

type services struct {
	auth       *service.AuthService
	content    *service.ContentService
	gate       *service.GateService
	assessment *service.AssessmentService
	roadmap    *service.RoadmapService
	events     *service.EventService
	locker     *service.LearnerLocker
}

type controllers struct {
	auth       *controller.AuthController
	content    *controller.ContentController
	progress   *controller.ProgressController
	assessment *controller.AssessmentController
	roadmap    *controller.RoadmapController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ReloadConfig distributes a hot-reloaded configuration to the
// registered callbacks. Fed by the config watcher.
func (a *App) ReloadConfig(cfg interface{}) {
	newCfg, ok := cfg.(*config.Config)
	if !ok {
		return
	}
	logger.Log.Info("Configuration reloaded")
	for _, callback := range a.configCallbacks {
		callback(newCfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		learner:    repository.NewLearnerRepository(db),
		content:    repository.NewContentRepository(db),
		assessment: repository.NewAssessmentRepository(db),
		progress:   repository.NewProgressRepository(db),
		roadmap:    repository.NewRoadmapRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.events = service.NewEventService(rdb)
	s.locker = service.NewLearnerLocker(rdb)

	s.auth = service.NewAuthService(repos.learner, cfg)
	s.content = service.NewContentService(repos.content, repos.learner)
	s.gate = service.NewGateService(repos.learner, repos.content, repos.progress, repos.assessment, repos.roadmap, s.events)

	advisor := service.NewOpenAIAdvisor(cfg.Advisor)
	s.roadmap = service.NewRoadmapService(
		repos.roadmap,
		repos.content,
		repos.learner,
		repos.progress,
		repos.assessment,
		s.gate,
		advisor,
		s.locker,
		s.events,
		cfg.Advisor,
	)

	s.assessment = service.NewAssessmentService(
		repos.assessment,
		repos.content,
		repos.progress,
		s.gate,
		s.roadmap,
		s.locker,
		s.events,
	)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		content:    controller.NewContentController(s.content, s.gate),
		progress:   controller.NewProgressController(s.gate, s.roadmap),
		assessment: controller.NewAssessmentController(s.assessment),
		roadmap:    controller.NewRoadmapController(s.roadmap),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks runs the expired-attempt sweeper. Timed
// attempts that were never submitted get finalized here.
func (a *App) startBackgroundTasks(s *services) {
	a.stopSweeper = make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.assessment.FinalizeExpired(context.Background())
			case <-a.stopSweeper:
				return
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("edupath-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		_ = tp
	}

	app.registerRoutes(router, controllers, cfg)

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.stopSweeper != nil {
		close(a.stopSweeper)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
