package project

import (
	"context"
	"fmt"
	"strings"

	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/model"
	"go.uber.org/zap"
)

// ParticipantSyncer 项目会话成员同步，由 chat.Coordinator 实现
type ParticipantSyncer interface {
	SyncProjectParticipant(ctx context.Context, projectID, userID int64) (int, error)
}

// Notifier 站内通知
type Notifier interface {
	Dispatch(ctx context.Context, userID int64, typ, title, message string, payload any) (*model.Notification, error)
}

// Service 项目与里程碑指派
type Service struct {
	repo     Repository
	chat     ParticipantSyncer
	notifier Notifier
	log      *zap.Logger
}

// NewService 创建项目服务
func NewService(repo Repository, chat ParticipantSyncer, notifier Notifier) *Service {
	return &Service{repo: repo, chat: chat, notifier: notifier, log: logger.Named("project")}
}

// Create 创建项目
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*model.Project, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	p := &model.Project{Name: strings.TrimSpace(req.Name), ClientID: req.ClientID}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// Get 项目详情，包含里程碑与负责人
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	if p == nil {
		return nil, errors.NotFound("项目")
	}
	milestones, err := s.repo.ListMilestones(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	detail := &Detail{Project: *p, Milestones: make([]MilestoneView, 0, len(milestones))}
	for _, m := range milestones {
		ids, err := s.repo.AssigneeIDs(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("list assignees: %w", err)
		}
		if ids == nil {
			ids = []int64{}
		}
		detail.Milestones = append(detail.Milestones, MilestoneView{Milestone: m, AssigneeIDs: ids})
	}
	return detail, nil
}

// CreateMilestone 创建里程碑
func (s *Service) CreateMilestone(ctx context.Context, projectID int64, req *CreateMilestoneRequest) (*model.Milestone, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	exists, err := s.repo.Exists(ctx, map[string]interface{}{"id": projectID})
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	if !exists {
		return nil, errors.NotFound("项目")
	}
	m := &model.Milestone{ProjectID: projectID, Name: strings.TrimSpace(req.Name)}
	if err := s.repo.CreateMilestone(ctx, m); err != nil {
		return nil, fmt.Errorf("create milestone: %w", err)
	}
	return m, nil
}

// Assign 指派里程碑负责人，随后同步项目会话成员并发送通知
func (s *Service) Assign(ctx context.Context, projectID, milestoneID, userID int64) (*AssignResult, error) {
	m, err := s.milestone(ctx, projectID, milestoneID)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Assign(ctx, milestoneID, userID)
	if err != nil {
		return nil, fmt.Errorf("assign milestone: %w", err)
	}
	if !created {
		return nil, errors.Conflict("该用户已是里程碑负责人")
	}

	result := &AssignResult{MilestoneID: milestoneID, UserID: userID}
	// 同步可重放，失败只记录
	joined, err := s.chat.SyncProjectParticipant(ctx, projectID, userID)
	if err != nil {
		s.log.Error("sync project participant failed",
			zap.Int64("projectId", projectID),
			zap.Int64("userId", userID),
			zap.Error(err),
		)
	}
	result.ConversationsJoined = joined

	if _, err := s.notifier.Dispatch(ctx, userID, NotificationMilestoneAssigned, "里程碑指派",
		fmt.Sprintf("你已被指派为里程碑「%s」的负责人", m.Name),
		map[string]any{"projectId": projectID, "milestoneId": milestoneID},
	); err != nil {
		s.log.Warn("milestone notification failed", zap.Int64("userId", userID), zap.Error(err))
	}
	return result, nil
}

// Unassign 取消指派，不会自动移出项目会话
func (s *Service) Unassign(ctx context.Context, projectID, milestoneID, userID int64) error {
	if _, err := s.milestone(ctx, projectID, milestoneID); err != nil {
		return err
	}
	removed, err := s.repo.Unassign(ctx, milestoneID, userID)
	if err != nil {
		return fmt.Errorf("unassign milestone: %w", err)
	}
	if !removed {
		return errors.NotFound("里程碑负责人")
	}
	return nil
}

func (s *Service) milestone(ctx context.Context, projectID, milestoneID int64) (*model.Milestone, error) {
	m, err := s.repo.FindMilestone(ctx, projectID, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("find milestone: %w", err)
	}
	if m == nil {
		return nil, errors.NotFound("里程碑")
	}
	return m, nil
}
