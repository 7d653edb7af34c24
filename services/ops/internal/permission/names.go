package permission

import (
	"encoding/json"
	"sort"
)

// Name 权限名称，只能取自下方目录
type Name string

// 权限目录
const (
	ReadProject       Name = "read_project"
	ManageProject     Name = "manage_project"
	AssignMilestone   Name = "assign_milestone"
	ReadLeave         Name = "read_leave"
	RequestLeave      Name = "request_leave"
	ApproveLeave      Name = "approve_leave"
	ReadBilling       Name = "read_billing"
	ManageBilling     Name = "manage_billing"
	ReadBlog          Name = "read_blog"
	ManageBlog        Name = "manage_blog"
	ManageUsers       Name = "manage_users"
	ManageRoles       Name = "manage_roles"
	ManagePermissions Name = "manage_permissions"
	SendNotification  Name = "send_notification"
	AdministerChat    Name = "administer_chat"
	ViewConnections   Name = "view_connections"
)

// Definition 目录项
type Definition struct {
	Name        Name
	Group       string
	Description string
}

var catalog = []Definition{
	{ReadProject, "project", "查看项目"},
	{ManageProject, "project", "管理项目"},
	{AssignMilestone, "project", "分配里程碑负责人"},
	{ReadLeave, "leave", "查看请假"},
	{RequestLeave, "leave", "提交请假"},
	{ApproveLeave, "leave", "审批请假"},
	{ReadBilling, "billing", "查看账单"},
	{ManageBilling, "billing", "管理账单"},
	{ReadBlog, "blog", "查看博客"},
	{ManageBlog, "blog", "管理博客"},
	{ManageUsers, "system", "管理用户"},
	{ManageRoles, "system", "管理角色"},
	{ManagePermissions, "system", "管理权限"},
	{SendNotification, "system", "发送通知"},
	{AdministerChat, "chat", "管理所有会话"},
	{ViewConnections, "system", "查看在线连接"},
}

var known = func() map[Name]Definition {
	m := make(map[Name]Definition, len(catalog))
	for _, d := range catalog {
		m[d.Name] = d
	}
	return m
}()

// Catalog 返回完整权限目录
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Parse 将外部字符串转换为权限名，未知名称返回 false
func Parse(s string) (Name, bool) {
	_, ok := known[Name(s)]
	return Name(s), ok
}

// Valid 是否为目录中的权限
func (n Name) Valid() bool {
	_, ok := known[n]
	return ok
}

// Set 权限集合
type Set map[Name]struct{}

// NewSet 创建集合
func NewSet(names ...Name) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has 是否包含
func (s Set) Has(n Name) bool {
	_, ok := s[n]
	return ok
}

// HasAny 至少包含一个，空参数视为不满足
func (s Set) HasAny(names ...Name) bool {
	for _, n := range names {
		if s.Has(n) {
			return true
		}
	}
	return false
}

// HasAll 全部包含，空参数视为满足
func (s Set) HasAll(names ...Name) bool {
	for _, n := range names {
		if !s.Has(n) {
			return false
		}
	}
	return true
}

// Names 排序后的名称列表
func (s Set) Names() []Name {
	out := make([]Name, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON 序列化为有序数组
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON 从数组反序列化
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []Name
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewSet(names...)
	return nil
}
