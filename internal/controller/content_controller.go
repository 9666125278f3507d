package controller

import (
	"edupath_backend/internal/service"
	"edupath_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ContentController struct {
	ContentService *service.ContentService
	GateService    *service.GateService
}

func NewContentController(contentService *service.ContentService, gateService *service.GateService) *ContentController {
	return &ContentController{ContentService: contentService, GateService: gateService}
}

// CreateContent godoc
// @Summary Create a content node
// @Description Authors a course, lesson or assessment node with ordered prerequisites; cyclic prerequisites are rejected
// @Tags content
// @Accept  json
// @Produce  json
// @Param   body body service.CreateContentRequest true "Content payload"
// @Success 201 {object} util.Response{data=model.ContentNode}
// @Failure 400 {object} util.Response
// @Security BearerAuth
// @Router /api/content [post]
func (c *ContentController) CreateContent(ctx *gin.Context) {
	var req service.CreateContentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	node, err := c.ContentService.CreateContent(&req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, node)
}

type updatePrerequisitesRequest struct {
	PrerequisiteIDs []string `json:"prerequisiteIds"`
}

// UpdatePrerequisites godoc
// @Summary Replace a node's prerequisites
// @Tags content
// @Accept  json
// @Produce  json
// @Param   id path string true "Content ID"
// @Param   body body updatePrerequisitesRequest true "New prerequisite list"
// @Success 200 {object} util.Response{data=model.ContentNode}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/content/{id}/prerequisites [put]
func (c *ContentController) UpdatePrerequisites(ctx *gin.Context) {
	var req updatePrerequisitesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	node, err := c.ContentService.UpdatePrerequisites(ctx.Param("id"), req.PrerequisiteIDs)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, node)
}

// GetContent godoc
// @Summary Get a content node
// @Tags content
// @Produce  json
// @Param   id path string true "Content ID"
// @Success 200 {object} util.Response{data=model.ContentNode}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/content/{id} [get]
func (c *ContentController) GetContent(ctx *gin.Context) {
	node, err := c.ContentService.GetContent(ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, node)
}

// ListContent godoc
// @Summary List content nodes
// @Tags content
// @Produce  json
// @Param   page query int false "Page" default(1)
// @Param   limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Security BearerAuth
// @Router /api/content [get]
func (c *ContentController) ListContent(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	nodes, total, err := c.ContentService.ListContent(page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: nodes, Total: total, Page: page, Limit: limit})
}

// ListCourses godoc
// @Summary List courses
// @Tags content
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.ContentNode}
// @Security BearerAuth
// @Router /api/courses [get]
func (c *ContentController) ListCourses(ctx *gin.Context) {
	courses, err := c.ContentService.ListCourses()
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// ListCourseContent godoc
// @Summary List a course's content in declared order
// @Tags content
// @Produce  json
// @Param   id path string true "Course ID"
// @Success 200 {object} util.Response{data=[]model.ContentNode}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/courses/{id}/content [get]
func (c *ContentController) ListCourseContent(ctx *gin.Context) {
	nodes, err := c.ContentService.ListCourseContent(ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nodes)
}

// Enroll godoc
// @Summary Enroll the learner in a course
// @Tags content
// @Produce  json
// @Param   id path string true "Course ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/courses/{id}/enroll [post]
func (c *ContentController) Enroll(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.ContentService.Enroll(claims.LearnerID, ctx.Param("id")); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// EnrolledCourses godoc
// @Summary List the learner's enrolled courses
// @Tags content
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.ContentNode}
// @Security BearerAuth
// @Router /api/enrollments [get]
func (c *ContentController) EnrolledCourses(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	courses, err := c.ContentService.EnrolledCourses(claims.LearnerID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// CheckAccess godoc
// @Summary Evaluate the progression gate for a content node
// @Description Returns whether the learner may open the content, with every failing prerequisite in declared order
// @Tags content
// @Produce  json
// @Param   id path string true "Content ID"
// @Success 200 {object} util.Response{data=service.AccessDecision}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/content/{id}/access [get]
func (c *ContentController) CheckAccess(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	decision, err := c.GateService.CanAccess(claims.LearnerID, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, decision)
}
