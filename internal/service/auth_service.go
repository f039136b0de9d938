package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/pkg/apperr"
	"github.com/d60-Lab/market-chat/pkg/jwt"
)

// RegisterInput 注册参数；admin 不能自助注册
type RegisterInput struct {
	Name     string `validate:"required,max=100"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
	Role     string `validate:"omitempty,oneof=buyer seller"`
}

// AuthService 身份解析与注册登录
type AuthService interface {
	// ResolvePrincipal 校验凭证并解析为已认证身份，任何失败都返回 AuthError
	ResolvePrincipal(ctx context.Context, credential string) (*model.Principal, error)
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	// SwitchRole 在 buyer 与 seller 之间切换，返回新角色
	SwitchRole(ctx context.Context, userID string) (string, error)
}

type authService struct {
	users  repository.UserRepository
	tokens *jwt.Manager
}

func NewAuthService(users repository.UserRepository, tokens *jwt.Manager) AuthService {
	return &authService{users: users, tokens: tokens}
}

func (s *authService) ResolvePrincipal(ctx context.Context, credential string) (*model.Principal, error) {
	if credential == "" {
		return nil, apperr.Auth("not logged in")
	}
	claims, err := s.tokens.Parse(credential)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Auth("token expired")
		}
		return nil, apperr.Auth("invalid token")
	}
	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Auth("user no longer exists")
		}
		return nil, apperr.Internal("resolve principal", err)
	}
	if !u.IsActive {
		return nil, apperr.Auth("account disabled")
	}
	return u.Principal(), nil
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Validation("email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("check email", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	role := in.Role
	if role == "" {
		role = model.RoleBuyer
	}
	u := &model.User{Name: in.Name, Email: in.Email, Password: string(hash), Role: role, IsActive: true}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperr.Internal("create user", err)
	}
	return u, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	if email == "" || password == "" {
		return "", nil, apperr.Validation("email and password are required")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.Auth("invalid email or password")
		}
		return "", nil, apperr.Internal("find user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", nil, apperr.Auth("invalid email or password")
	}
	if !u.IsActive {
		return "", nil, apperr.Auth("account disabled")
	}
	token, err := s.tokens.Generate(u.ID)
	if err != nil {
		return "", nil, apperr.Internal("sign token", err)
	}
	return token, u, nil
}

func (s *authService) SwitchRole(ctx context.Context, userID string) (string, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", lookupError("user", err)
	}
	var next string
	switch u.Role {
	case model.RoleBuyer:
		next = model.RoleSeller
	case model.RoleSeller:
		next = model.RoleBuyer
	default:
		return "", apperr.Forbidden("role cannot be switched")
	}
	if err := s.users.UpdateRole(ctx, userID, next); err != nil {
		return "", lookupError("user", err)
	}
	return next, nil
}
