package util

import (
	"edupath_backend/pkg/logger"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// RespondError maps the service error taxonomy onto HTTP status codes.
// Advisor errors never reach here: the roadmap engine swallows them.
func RespondError(c *gin.Context, err error) {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		limit      *AttemptLimitExceededError
		passed     *AlreadyPassedError
		timeLimit  *TimeLimitExceededError
		conflict   *ConcurrencyConflictError
	)

	switch {
	case errors.As(err, &validation):
		BadRequest(c, validation.Error())
	case errors.As(err, &notFound):
		NotFound(c)
	case errors.As(err, &limit):
		Error(c, http.StatusConflict, limit.Error())
	case errors.As(err, &passed):
		c.JSON(http.StatusSeeOther, Response{
			Code:    http.StatusSeeOther,
			Message: "assessment already passed",
			Data:    gin.H{"attemptId": passed.AttemptID},
		})
	case errors.As(err, &timeLimit):
		Error(c, http.StatusConflict, timeLimit.Error())
	case errors.As(err, &conflict):
		Error(c, http.StatusConflict, conflict.Error())
	case errors.Is(err, ErrCycleDetected):
		BadRequest(c, err.Error())
	default:
		LogInternalError(c, err)
	}
}
