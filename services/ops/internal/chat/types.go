package chat

import (
	"time"

	"github.com/opshub/services/ops/internal/model"
)

// CreateConversationRequest 创建会话请求
type CreateConversationRequest struct {
	Type           model.ConversationType `json:"type" validate:"required,oneof=direct group project"`
	Name           string                 `json:"name" validate:"max=100"`
	ProjectID      *int64                 `json:"projectId" validate:"omitempty,gt=0"`
	ParticipantIDs []int64                `json:"participantIds" validate:"dive,gt=0"`
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	ConversationID int64             `json:"conversationId" validate:"required,gt=0"`
	Content        string            `json:"content" validate:"max=10000"`
	Attachments    model.Attachments `json:"attachments" validate:"max=20,dive"`
}

// EditMessageRequest 编辑消息请求
type EditMessageRequest struct {
	MessageID int64  `json:"messageId" validate:"required,gt=0"`
	Content   string `json:"content" validate:"max=10000"`
}

// MessageRef 只携带消息ID的请求
type MessageRef struct {
	MessageID int64 `json:"messageId" validate:"required,gt=0"`
}

// AddParticipantRequest 添加成员请求
type AddParticipantRequest struct {
	UserID  int64 `json:"userId" validate:"required,gt=0"`
	IsAdmin bool  `json:"isAdmin"`
}

// ConversationView 会话列表项
type ConversationView struct {
	model.Conversation
	UnreadCount int64 `json:"unreadCount"`
}

// MessageDeleted message:deleted 事件体
type MessageDeleted struct {
	MessageID      int64 `json:"messageId"`
	ConversationID int64 `json:"conversationId"`
}

// ReadReceipt read:receipt 事件体
type ReadReceipt struct {
	ConversationID int64     `json:"conversationId"`
	UserID         int64     `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

// ConversationRemoved conversation:removed 事件体
type ConversationRemoved struct {
	ConversationID int64 `json:"conversationId"`
}

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

// NotificationParticipantAdded 加入会话通知类型
const NotificationParticipantAdded = "chat.participant_added"
