package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"schoolfest-backend/internal/config"
	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type SchoolService interface {
	Register(ctx context.Context, req *dto.RegisterSchoolRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
	// AdminLogin checks against the statically configured admin account.
	AdminLogin(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
}

type schoolServiceImpl struct {
	schoolRepo repository.SchoolRepository
	authCfg    *config.Auth
}

func NewSchoolService(
	schoolRepo repository.SchoolRepository,
	authCfg *config.Auth,
) SchoolService {
	return &schoolServiceImpl{
		schoolRepo: schoolRepo,
		authCfg:    authCfg,
	}
}

func (s *schoolServiceImpl) Register(ctx context.Context, req *dto.RegisterSchoolRequest) (*dto.AuthResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	school := &model.School{
		ID:           model.NewID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Phone:        req.Phone,
		Address:      req.Address,
	}
	if err := s.schoolRepo.Create(ctx, school); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email %s already registered", ErrValidation, req.Email)
		}
		return nil, fmt.Errorf("create school: %w", err)
	}

	return s.issueToken(school.ID, "school")
}

func (s *schoolServiceImpl) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	school, err := s.schoolRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(school.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	return s.issueToken(school.ID, "school")
}

func (s *schoolServiceImpl) AdminLogin(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	// Refuse admin access outright when no password is configured.
	if s.authCfg.AdminPassword == "" {
		return nil, fmt.Errorf("%w: admin login disabled", ErrUnauthorized)
	}
	emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(s.authCfg.AdminEmail)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.authCfg.AdminPassword)) == 1
	if !emailOK || !passOK {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	return s.issueToken(s.authCfg.AdminEmail, "admin")
}

func (s *schoolServiceImpl) issueToken(sub, role string) (*dto.AuthResponse, error) {
	now := time.Now()
	expiresAt := now.Add(s.authCfg.TokenTTL)
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.authCfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	resp := &dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      role,
	}
	if role == "school" {
		resp.SchoolID = sub
	}
	return resp, nil
}
