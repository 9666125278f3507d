package controller

import (
	"edupath_backend/internal/model"
	"edupath_backend/internal/service"
	"edupath_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	AssessmentService *service.AssessmentService
}

func NewAssessmentController(assessmentService *service.AssessmentService) *AssessmentController {
	return &AssessmentController{AssessmentService: assessmentService}
}

// CreateAssessment godoc
// @Summary Author an assessment
// @Description Creates an assessment with its questions; malformed questions are rejected at this boundary
// @Tags assessment
// @Accept  json
// @Produce  json
// @Param   body body service.CreateAssessmentRequest true "Assessment payload"
// @Success 201 {object} util.Response{data=model.Assessment}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/assessments [post]
func (c *AssessmentController) CreateAssessment(ctx *gin.Context) {
	var req service.CreateAssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	assessment, err := c.AssessmentService.CreateAssessment(&req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, assessment)
}

// GetAssessment godoc
// @Summary Get an assessment with its questions
// @Tags assessment
// @Produce  json
// @Param   id path string true "Assessment ID"
// @Success 200 {object} util.Response{data=model.Assessment}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/assessments/{id} [get]
func (c *AssessmentController) GetAssessment(ctx *gin.Context) {
	assessment, err := c.AssessmentService.GetAssessment(ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, assessment)
}

// ListAssessments godoc
// @Summary List assessments
// @Tags assessment
// @Produce  json
// @Param   page query int false "Page" default(1)
// @Param   limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Security BearerAuth
// @Router /api/assessments [get]
func (c *AssessmentController) ListAssessments(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	assessments, total, err := c.AssessmentService.ListAssessments(page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: assessments, Total: total, Page: page, Limit: limit})
}

// StartAttempt godoc
// @Summary Start an attempt
// @Description Opens a timed or untimed attempt; an already-open attempt is returned unchanged
// @Tags assessment
// @Produce  json
// @Param   id path string true "Assessment ID"
// @Success 201 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 303 {object} util.Response "Already passed"
// @Failure 409 {object} util.Response "Attempt limit exceeded"
// @Security BearerAuth
// @Router /api/assessments/{id}/attempts [post]
func (c *AssessmentController) StartAttempt(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempt, err := c.AssessmentService.StartAttempt(ctx.Request.Context(), claims.LearnerID, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

type submitAttemptRequest struct {
	Answers       []model.SubmittedAnswer `json:"answers" binding:"required"`
	TimeSpent     int                     `json:"timeSpent" binding:"min=0"` // seconds, untimed assessments only
	AttemptNumber int                     `json:"attemptNumber" binding:"min=0"`
}

// SubmitAttempt godoc
// @Summary Submit and grade an attempt
// @Tags assessment
// @Accept  json
// @Produce  json
// @Param   id path string true "Assessment ID"
// @Param   body body submitAttemptRequest true "Answers"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 303 {object} util.Response "Already passed"
// @Failure 409 {object} util.Response "Attempt limit or time limit exceeded"
// @Security BearerAuth
// @Router /api/assessments/{id}/submit [post]
func (c *AssessmentController) SubmitAttempt(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req submitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.AssessmentService.SubmitAttempt(ctx.Request.Context(), claims.LearnerID, ctx.Param("id"), req.Answers, req.TimeSpent, req.AttemptNumber)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

type saveAnswersRequest struct {
	Answers []model.SubmittedAnswer `json:"answers" binding:"required"`
}

// SaveAnswers godoc
// @Summary Save partial answers on an open attempt
// @Tags assessment
// @Accept  json
// @Produce  json
// @Param   id path int true "Attempt ID"
// @Param   body body saveAnswersRequest true "Answers"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/attempts/{id}/answers [put]
func (c *AssessmentController) SaveAnswers(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	var req saveAnswersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.AssessmentService.SaveAnswers(ctx.Request.Context(), claims.LearnerID, uint(attemptID), req.Answers); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListAttempts godoc
// @Summary List the learner's attempts at an assessment
// @Tags assessment
// @Produce  json
// @Param   id path string true "Assessment ID"
// @Success 200 {object} util.Response{data=[]model.AssessmentAttempt}
// @Security BearerAuth
// @Router /api/assessments/{id}/attempts [get]
func (c *AssessmentController) ListAttempts(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempts, err := c.AssessmentService.ListAttempts(ctx.Param("id"), claims.LearnerID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// Feedback godoc
// @Summary Feedback for a finalized attempt
// @Description Per-question results and weak topics; correct answers are never disclosed
// @Tags assessment
// @Produce  json
// @Param   id path int true "Attempt ID"
// @Success 200 {object} util.Response{data=service.AttemptFeedback}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/attempts/{id}/feedback [get]
func (c *AssessmentController) Feedback(ctx *gin.Context) {
	claims := util.GetLearnerFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	feedback, err := c.AssessmentService.Feedback(claims.LearnerID, uint(attemptID))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, feedback)
}

type gradeEssayRequest struct {
	Grades []service.EssayGrade `json:"grades" binding:"required,min=1"`
}

// GradeEssay godoc
// @Summary Apply manual essay grades to an attempt
// @Tags assessment
// @Accept  json
// @Produce  json
// @Param   id path int true "Attempt ID"
// @Param   body body gradeEssayRequest true "Grades"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/attempts/{id}/grade [post]
func (c *AssessmentController) GradeEssay(ctx *gin.Context) {
	attemptID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	var req gradeEssayRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.AssessmentService.GradeEssay(ctx.Request.Context(), uint(attemptID), req.Grades)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
