package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opshub/pkg/dal"
)

// ConversationType 会话类型
type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationGroup   ConversationType = "group"
	ConversationProject ConversationType = "project"
)

// Valid 是否为已知类型
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationDirect, ConversationGroup, ConversationProject:
		return true
	}
	return false
}

// Conversation 会话
type Conversation struct {
	dal.Model
	Type          ConversationType `gorm:"size:20;not null;index" json:"type"`
	Name          string           `gorm:"size:100" json:"name"`
	ProjectID     *int64           `gorm:"index" json:"projectId,omitempty"`
	CreatedBy     int64            `gorm:"not null" json:"createdBy"`
	LastMessageAt *time.Time       `json:"lastMessageAt,omitempty"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// TableName 表名
func (Conversation) TableName() string {
	return "chat_conversation"
}

// Participant 会话成员，会话级授权的唯一依据
type Participant struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64      `gorm:"not null;uniqueIndex:uk_conversation_user" json:"conversationId"`
	UserID         int64      `gorm:"not null;uniqueIndex:uk_conversation_user;index" json:"userId"`
	IsAdmin        bool       `gorm:"not null;default:false" json:"isAdmin"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joinedAt"`
}

// TableName 表名
func (Participant) TableName() string {
	return "chat_participant"
}

// Attachment 消息附件
type Attachment struct {
	URL      string `json:"url" validate:"required,url"`
	Name     string `json:"name" validate:"required,max=255"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Attachments 附件列表，以JSON存储
type Attachments []Attachment

// Value 实现 driver.Valuer
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner
func (a *Attachments) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported attachments type %T", src)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Message 消息，删除为逻辑删除
type Message struct {
	dal.Model
	ConversationID int64       `gorm:"not null;index:idx_conversation_id" json:"conversationId"`
	SenderID       int64       `gorm:"not null;index" json:"senderId"`
	Content        string      `gorm:"type:text" json:"content"`
	Attachments    Attachments `gorm:"type:text" json:"attachments"`
	Edited         bool        `gorm:"not null;default:false" json:"edited"`
	EditedAt       *time.Time  `json:"editedAt,omitempty"`
	Deleted        bool        `gorm:"not null;default:false" json:"deleted"`
	DeletedAt      *time.Time  `json:"deletedAt,omitempty"`
}

// TableName 表名
func (Message) TableName() string {
	return "chat_message"
}
