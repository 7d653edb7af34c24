package model

// All 需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&LoginLog{},
		&Role{},
		&Permission{},
		&RoleGrant{},
		&UserRole{},
		&Project{},
		&Milestone{},
		&MilestoneAssignee{},
		&Conversation{},
		&Participant{},
		&Message{},
		&Notification{},
	}
}
