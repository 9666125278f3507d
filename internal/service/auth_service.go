package service

import (
	"edupath_backend/internal/config"
	"edupath_backend/internal/model"
	"edupath_backend/internal/repository"
	"edupath_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	learnerRepo *repository.LearnerRepository
	cfg         *config.Config
}

func NewAuthService(learnerRepo *repository.LearnerRepository, cfg *config.Config) *AuthService {
	return &AuthService{learnerRepo: learnerRepo, cfg: cfg}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Language string `json:"language"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token   string         `json:"token"`
	Learner *model.Learner `json:"learner"`
}

func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	if _, err := s.learnerRepo.FindByEmail(req.Email); err == nil {
		return nil, util.ErrEmailRegistered
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	learner := &model.Learner{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
		Role:     model.RoleLearner,
		Language: req.Language,
	}
	if learner.Language == "" {
		learner.Language = "en"
	}
	if err := s.learnerRepo.Create(learner); err != nil {
		return nil, err
	}

	return s.issueToken(learner)
}

func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	learner, err := s.learnerRepo.FindByEmail(req.Email)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if learner.Disabled {
		return nil, util.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(learner.Password), []byte(req.Password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	if err := s.learnerRepo.UpdateLastLogin(learner.ID); err != nil {
		return nil, err
	}

	return s.issueToken(learner)
}

func (s *AuthService) issueToken(learner *model.Learner) (*AuthResponse, error) {
	token, err := util.GenerateJWT(learner.ID, string(learner.Role), learner.Email, s.cfg.JWT.Secret, s.cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, Learner: learner}, nil
}
