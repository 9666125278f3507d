package controller

import (
	"edupath_backend/internal/service"
	"edupath_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	GateService    *service.GateService
	RoadmapService *service.RoadmapService
}

func NewProgressController(gateService *service.GateService, roadmapService *service.RoadmapService) *ProgressController {
	return &ProgressController{GateService: gateService, RoadmapService: roadmapService}
}

// UpdateProgress godoc
// @Summary Record progress on a content node
// @Description Reaching 100% completes the content, unlocks its direct dependents and adapts the roadmap
// @Tags progress
// @Accept  json
// @Produce  json
// @Param   id path string true "Content ID"
// @Param   body body service.ProgressUpdate true "Progress delta"
// @Success 200 {object} util.Response{data=model.ProgressRecord}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/content/{id}/progress [put]
func (c *ProgressController) UpdateProgress(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.ProgressUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	contentID := ctx.Param("id")
	record, completed, err := c.GateService.UpdateProgress(ctx.Request.Context(), claims.LearnerID, contentID, &req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	if completed {
		if err := c.RoadmapService.Adapt(ctx.Request.Context(), claims.LearnerID, service.TriggerContentCompleted, contentID); err != nil {
			util.LogInternalError(ctx, err)
			return
		}
	}
	util.Success(ctx, record)
}

// ListProgress godoc
// @Summary List the learner's progress records
// @Tags progress
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.ProgressRecord}
// @Security BearerAuth
// @Router /api/progress [get]
func (c *ProgressController) ListProgress(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	records, err := c.GateService.ListProgress(claims.LearnerID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, records)
}
