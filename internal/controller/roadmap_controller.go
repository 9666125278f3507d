package controller

import (
	"edupath_backend/internal/service"
	"edupath_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RoadmapController struct {
	RoadmapService *service.RoadmapService
}

func NewRoadmapController(roadmapService *service.RoadmapService) *RoadmapController {
	return &RoadmapController{RoadmapService: roadmapService}
}

// GetRoadmap godoc
// @Summary Get the learner's roadmap
// @Tags roadmap
// @Produce  json
// @Success 200 {object} util.Response{data=model.Roadmap}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/roadmap [get]
func (c *RoadmapController) GetRoadmap(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	rm, err := c.RoadmapService.Get(claims.LearnerID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, rm)
}

// GenerateRoadmap godoc
// @Summary Generate or regenerate the learner's roadmap
// @Description Consults the advisor; when unavailable a deterministic path is generated instead, never an error
// @Tags roadmap
// @Produce  json
// @Success 200 {object} util.Response{data=model.Roadmap}
// @Failure 400 {object} util.Response "No enrollments"
// @Security BearerAuth
// @Router /api/roadmap/generate [post]
func (c *RoadmapController) GenerateRoadmap(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	rm, err := c.RoadmapService.Generate(ctx.Request.Context(), claims.LearnerID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, rm)
}

// PauseRoadmap godoc
// @Summary Pause the learner's roadmap
// @Tags roadmap
// @Produce  json
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Security BearerAuth
// @Router /api/roadmap/pause [post]
func (c *RoadmapController) PauseRoadmap(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.RoadmapService.Pause(claims.LearnerID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ResumeRoadmap godoc
// @Summary Resume a paused roadmap
// @Tags roadmap
// @Produce  json
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Security BearerAuth
// @Router /api/roadmap/resume [post]
func (c *RoadmapController) ResumeRoadmap(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.RoadmapService.Resume(claims.LearnerID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// CompleteRoadmap godoc
// @Summary Mark the learner's roadmap completed
// @Tags roadmap
// @Produce  json
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Security BearerAuth
// @Router /api/roadmap/complete [post]
func (c *RoadmapController) CompleteRoadmap(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.RoadmapService.Complete(claims.LearnerID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
