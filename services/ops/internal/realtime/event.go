package realtime

import (
	"encoding/json"
	"time"
)

// 客户端事件
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventMessageEdit       = "message:edit"
	EventMessageDelete     = "message:delete"
	EventMessageRead       = "message:read"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
)

// 服务端事件
const (
	EventInitialStatus       = "conversation:initial-status"
	EventUserStatus          = "user:status"
	EventTyping              = "typing"
	EventMessageNew          = "message:new"
	EventMessageUpdated      = "message:updated"
	EventMessageDeleted      = "message:deleted"
	EventReadReceipt         = "read:receipt"
	EventConversationNew     = "conversation:new"
	EventConversationUpdated = "conversation:updated"
	EventConversationRemoved = "conversation:removed"
	EventNotificationNew     = "notification:new"
	EventError               = "error"
)

// 在线状态
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope 客户端上行帧
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame 服务端下行帧
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ConversationRef 只携带会话ID的事件体
type ConversationRef struct {
	ConversationID int64 `json:"conversationId" validate:"required,gt=0"`
}

// ParticipantStatus 参与者在线状态
type ParticipantStatus struct {
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

// InitialStatus conversation:initial-status 事件体
type InitialStatus struct {
	ConversationID int64               `json:"conversationId"`
	Statuses       []ParticipantStatus `json:"statuses"`
}

// UserStatus user:status 事件体
type UserStatus struct {
	UserID   int64      `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// Typing typing 事件体
type Typing struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	IsTyping       bool  `json:"isTyping"`
}

// ErrorEvent error 事件体
type ErrorEvent struct {
	Event   string `json:"event"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
