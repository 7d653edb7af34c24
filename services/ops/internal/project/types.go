package project

import "github.com/opshub/services/ops/internal/model"

// CreateRequest 创建项目请求
type CreateRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	ClientID int64  `json:"clientId" validate:"required,gt=0"`
}

// CreateMilestoneRequest 创建里程碑请求
type CreateMilestoneRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// AssignRequest 指派请求
type AssignRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

// MilestoneView 里程碑及负责人
type MilestoneView struct {
	model.Milestone
	AssigneeIDs []int64 `json:"assigneeIds"`
}

// Detail 项目详情
type Detail struct {
	model.Project
	Milestones []MilestoneView `json:"milestones"`
}

// AssignResult 指派结果
type AssignResult struct {
	MilestoneID         int64 `json:"milestoneId"`
	UserID              int64 `json:"userId"`
	ConversationsJoined int   `json:"conversationsJoined"`
}

// NotificationMilestoneAssigned 里程碑指派通知类型
const NotificationMilestoneAssigned = "project.milestone_assigned"
