package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/opshub/pkg/auth"
	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/model"
	"go.uber.org/zap"
)

var errBadCredentials = errors.Unauthorized("用户名或密码错误")

// Service 用户与登录
type Service struct {
	repo   Repository
	logins LoginLogRepository
	jwt    *auth.JWTManager
	log    *zap.Logger
}

// NewService 创建用户服务
func NewService(repo Repository, logins LoginLogRepository, jwt *auth.JWTManager) *Service {
	return &Service{repo: repo, logins: logins, jwt: jwt, log: logger.Named("user")}
}

// Login 校验用户名密码并签发令牌，成功与失败都写登录日志
func (s *Service) Login(ctx context.Context, req *LoginRequest, client ClientInfo) (*LoginResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	u, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	record := &model.LoginLog{Username: username, IP: client.IP, UserAgent: client.UserAgent}
	if u != nil {
		record.UserID = u.ID
	}

	resp, err := s.login(u, req.Password)
	if err != nil {
		record.Status = model.LoginFailed
		record.Message = errors.GetMessage(err)
	} else {
		record.Status = model.LoginSuccess
		record.Message = "登录成功"
	}
	if logErr := s.logins.Create(ctx, record); logErr != nil {
		s.log.Warn("write login log failed", zap.String("username", username), zap.Error(logErr))
	}
	return resp, err
}

func (s *Service) login(u *model.User, password string) (*LoginResponse, error) {
	if u == nil || !auth.CheckPassword(password, u.Password) {
		return nil, errBadCredentials
	}
	if u.Status != model.UserStatusActive {
		return nil, errors.Forbidden("用户已被禁用")
	}
	token, err := s.jwt.CreateTokenInfo(u.ID, u.Username)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "生成令牌失败")
	}
	s.log.Info("user logged in", logger.UserID(u.ID))
	return &LoginResponse{Token: token, User: u}, nil
}

// LoginLogs 登录日志
func (s *Service) LoginLogs(ctx context.Context, username string, status *int8, p *dal.Pagination) (*dal.PagedResult[model.LoginLog], error) {
	result, err := s.logins.List(ctx, strings.TrimSpace(username), status, p)
	if err != nil {
		return nil, fmt.Errorf("list login logs: %w", err)
	}
	return result, nil
}

// Refresh 用未过期令牌换取新令牌，禁用用户不再续期
func (s *Service) Refresh(ctx context.Context, token string) (*auth.TokenInfo, error) {
	claims, err := s.jwt.ParseToken(token)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnauthorized, errors.ErrTokenInvalid.Message)
	}
	if _, err := s.active(ctx, claims.UserID); err != nil {
		return nil, err
	}
	info, err := s.jwt.RefreshToken(token)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnauthorized, errors.ErrTokenInvalid.Message)
	}
	return info, nil
}

// Me 当前用户
func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	return s.active(ctx, userID)
}

// Create 创建用户
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*model.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	existing, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return nil, errors.Duplicate("用户名")
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "密码加密失败")
	}
	u := &model.User{
		Username: username,
		Password: hash,
		Nickname: req.Nickname,
		Email:    req.Email,
		Status:   model.UserStatusActive,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// List 用户列表
func (s *Service) List(ctx context.Context, keyword string, p *dal.Pagination) (*dal.PagedResult[model.User], error) {
	result, err := s.repo.List(ctx, strings.TrimSpace(keyword), p)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return result, nil
}

// SetStatus 启用或禁用用户
func (s *Service) SetStatus(ctx context.Context, id int64, status int8) error {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return errors.NotFound("用户")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// ChangePassword 修改自己的密码
func (s *Service) ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	u, err := s.active(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(req.OldPassword, u.Password) {
		return errors.BadRequest("原密码错误")
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "密码加密失败")
	}
	return s.repo.UpdatePassword(ctx, userID, hash)
}

// EnsureUser 用户不存在时创建，已存在时原样返回
func (s *Service) EnsureUser(ctx context.Context, username, password string) (*model.User, bool, error) {
	u, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, false, fmt.Errorf("find user: %w", err)
	}
	if u != nil {
		return u, false, nil
	}
	u, err = s.Create(ctx, &CreateRequest{Username: username, Password: password, Nickname: username})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *Service) active(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, errors.Unauthorized("用户不存在")
	}
	if u.Status != model.UserStatusActive {
		return nil, errors.Forbidden("用户已被禁用")
	}
	return u, nil
}
