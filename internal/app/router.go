package app

import (
	"edupath_backend/docs"
	"edupath_backend/internal/config"
	"edupath_backend/internal/middleware"
	"edupath_backend/internal/model"
	"edupath_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// Content catalog and progression gate
		authGroup.GET("/content", c.content.ListContent)
		authGroup.GET("/content/:id", c.content.GetContent)
		authGroup.GET("/content/:id/access", c.content.CheckAccess)
		authGroup.PUT("/content/:id/progress", c.progress.UpdateProgress)
		authGroup.GET("/courses", c.content.ListCourses)
		authGroup.GET("/courses/:id/content", c.content.ListCourseContent)
		authGroup.POST("/courses/:id/enroll", c.content.Enroll)
		authGroup.GET("/enrollments", c.content.EnrolledCourses)
		authGroup.GET("/progress", c.progress.ListProgress)

		// Assessment engine
		authGroup.GET("/assessments", c.assessment.ListAssessments)
		authGroup.GET("/assessments/:id", c.assessment.GetAssessment)
		authGroup.POST("/assessments/:id/attempts", c.assessment.StartAttempt)
		authGroup.GET("/assessments/:id/attempts", c.assessment.ListAttempts)
		authGroup.POST("/assessments/:id/submit", c.assessment.SubmitAttempt)
		authGroup.PUT("/attempts/:id/answers", c.assessment.SaveAnswers)
		authGroup.GET("/attempts/:id/feedback", c.assessment.Feedback)

		// Roadmap engine
		authGroup.GET("/roadmap", c.roadmap.GetRoadmap)
		authGroup.POST("/roadmap/generate", c.roadmap.GenerateRoadmap)
		authGroup.POST("/roadmap/pause", c.roadmap.PauseRoadmap)
		authGroup.POST("/roadmap/resume", c.roadmap.ResumeRoadmap)
		authGroup.POST("/roadmap/complete", c.roadmap.CompleteRoadmap)

		// Authoring, restricted to authors and admins
		authoring := authGroup.Group("/")
		authoring.Use(middleware.RoleMiddleware(model.RoleAuthor))
		{
			authoring.POST("/content", c.content.CreateContent)
			authoring.PUT("/content/:id/prerequisites", c.content.UpdatePrerequisites)
			authoring.POST("/assessments", c.assessment.CreateAssessment)
			authoring.POST("/attempts/:id/grade", c.assessment.GradeEssay)
		}
	}
}
