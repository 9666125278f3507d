package controller

import (
	"edupath_backend/internal/service"
	"edupath_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// Register godoc
// @Summary Register a learner
// @Description Creates a learner account and returns a JWT
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body service.RegisterRequest true "Registration payload"
// @Success 201 {object} util.Response{data=service.AuthResponse}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/auth/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req service.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.AuthService.Register(&req)
	if err != nil {
		if errors.Is(err, util.ErrEmailRegistered) {
			util.Error(ctx, 409, "email already registered")
		} else {
			util.RespondError(ctx, err)
		}
		return
	}
	util.Created(ctx, resp)
}

// Login godoc
// @Summary Log in
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body service.LoginRequest true "Credentials"
// @Success 200 {object} util.Response{data=service.AuthResponse}
// @Failure 401 {object} util.Response
// @Router /api/auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req service.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.AuthService.Login(&req)
	if err != nil {
		if errors.Is(err, util.ErrInvalidCredentials) {
			util.Unauthorized(ctx)
		} else {
			util.RespondError(ctx, err)
		}
		return
	}
	util.Success(ctx, resp)
}
