package project

import (
	"context"
	"fmt"

	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/services/ops/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 项目仓储接口，同时作为会话模块的项目目录
type Repository interface {
	dal.Repository[model.Project]

	ClientID(ctx context.Context, projectID int64) (int64, error)
	IsAssigned(ctx context.Context, projectID, userID int64) (bool, error)

	CreateMilestone(ctx context.Context, m *model.Milestone) error
	FindMilestone(ctx context.Context, projectID, milestoneID int64) (*model.Milestone, error)
	ListMilestones(ctx context.Context, projectID int64) ([]model.Milestone, error)
	AssigneeIDs(ctx context.Context, milestoneID int64) ([]int64, error)
	Assign(ctx context.Context, milestoneID, userID int64) (bool, error)
	Unassign(ctx context.Context, milestoneID, userID int64) (bool, error)
}

type repository struct {
	*dal.BaseRepository[model.Project]
	milestones *dal.BaseRepository[model.Milestone]
}

// NewRepository 创建项目仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.Project](db),
		milestones:     dal.NewBaseRepository[model.Milestone](db),
	}
}

// ClientID 项目客户，项目不存在时返回 NotFound
func (r *repository) ClientID(ctx context.Context, projectID int64) (int64, error) {
	p, err := r.FindByID(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("find project: %w", err)
	}
	if p == nil {
		return 0, errors.NotFound("项目")
	}
	return p.ClientID, nil
}

// IsAssigned 用户是否负责该项目的任一里程碑
func (r *repository) IsAssigned(ctx context.Context, projectID, userID int64) (bool, error) {
	var count int64
	err := r.DB().WithContext(ctx).
		Table("biz_milestone_assignee AS a").
		Joins("JOIN biz_milestone AS m ON m.id = a.milestone_id").
		Where("m.project_id = ? AND a.user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateMilestone(ctx context.Context, m *model.Milestone) error {
	return r.milestones.Create(ctx, m)
}

// FindMilestone 里程碑不属于该项目时视为不存在
func (r *repository) FindMilestone(ctx context.Context, projectID, milestoneID int64) (*model.Milestone, error) {
	return r.milestones.FindOne(ctx, map[string]interface{}{"id": milestoneID, "project_id": projectID})
}

func (r *repository) ListMilestones(ctx context.Context, projectID int64) ([]model.Milestone, error) {
	return r.milestones.FindAll(ctx, map[string]interface{}{"project_id": projectID}, dal.WithOrder("id"))
}

func (r *repository) AssigneeIDs(ctx context.Context, milestoneID int64) ([]int64, error) {
	var ids []int64
	err := r.DB().WithContext(ctx).Model(&model.MilestoneAssignee{}).
		Where("milestone_id = ?", milestoneID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// Assign 已指派时返回 false
func (r *repository) Assign(ctx context.Context, milestoneID, userID int64) (bool, error) {
	res := r.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.MilestoneAssignee{MilestoneID: milestoneID, UserID: userID})
	return res.RowsAffected > 0, res.Error
}

// Unassign 未指派时返回 false
func (r *repository) Unassign(ctx context.Context, milestoneID, userID int64) (bool, error) {
	res := r.DB().WithContext(ctx).
		Where("milestone_id = ? AND user_id = ?", milestoneID, userID).
		Delete(&model.MilestoneAssignee{})
	return res.RowsAffected > 0, res.Error
}
