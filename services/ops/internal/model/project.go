package model

import (
	"time"

	"github.com/opshub/pkg/dal"
)

// Project 项目
type Project struct {
	dal.Model
	Name     string `gorm:"size:100;not null" json:"name"`
	ClientID int64  `gorm:"index" json:"clientId"`
}

// TableName 表名
func (Project) TableName() string {
	return "biz_project"
}

// Milestone 项目里程碑
type Milestone struct {
	dal.Model
	ProjectID int64  `gorm:"not null;index" json:"projectId"`
	Name      string `gorm:"size:100;not null" json:"name"`
}

// TableName 表名
func (Milestone) TableName() string {
	return "biz_milestone"
}

// MilestoneAssignee 里程碑负责人
type MilestoneAssignee struct {
	MilestoneID int64     `gorm:"primaryKey;autoIncrement:false" json:"milestoneId"`
	UserID      int64     `gorm:"primaryKey;autoIncrement:false;index" json:"userId"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 表名
func (MilestoneAssignee) TableName() string {
	return "biz_milestone_assignee"
}
