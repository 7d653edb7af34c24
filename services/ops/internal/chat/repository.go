package chat

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/opshub/pkg/dal"
	"github.com/opshub/services/ops/internal/model"
	"gorm.io/gorm"
)

// Repository 会话仓储接口，同时为实时网关提供成员查询
type Repository interface {
	dal.Repository[model.Conversation]

	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ConversationIDs(ctx context.Context, userID int64) ([]int64, error)
	ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error)
	FindParticipant(ctx context.Context, conversationID, userID int64) (*model.Participant, error)
	AddParticipant(ctx context.Context, p *model.Participant) error
	RemoveParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error

	CreateWithParticipants(ctx context.Context, conv *model.Conversation, participants []model.Participant) error
	FindDirect(ctx context.Context, userA, userB int64) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error)
	ProjectConversationIDs(ctx context.Context, projectID int64) ([]int64, error)
	UnreadCount(ctx context.Context, conversationID, userID int64) (int64, error)

	CreateMessage(ctx context.Context, msg *model.Message) error
	FindMessage(ctx context.Context, id int64) (*model.Message, error)
	SaveMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error)
}

var preloadParticipants = dal.WithPreload("Participants")

// repository 会话仓储实现
type repository struct {
	*dal.BaseRepository[model.Conversation]
	messages *dal.BaseRepository[model.Message]
}

// NewRepository 创建会话仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.Conversation](db),
		messages:       dal.NewBaseRepository[model.Message](db),
	}
}

func (r *repository) participants(ctx context.Context) *gorm.DB {
	return r.DB().WithContext(ctx).Model(&model.Participant{})
}

// IsParticipant 每次都查库，不做缓存
func (r *repository) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var count int64
	err := r.participants(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// ConversationIDs 用户参与的全部会话
func (r *repository) ConversationIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.participants(ctx).Where("user_id = ?", userID).Order("conversation_id").Pluck("conversation_id", &ids).Error
	return ids, err
}

// ParticipantIDs 会话的全部成员
func (r *repository) ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	var ids []int64
	err := r.participants(ctx).Where("conversation_id = ?", conversationID).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// FindParticipant 不存在时返回 nil, nil
func (r *repository) FindParticipant(ctx context.Context, conversationID, userID int64) (*model.Participant, error) {
	var p model.Participant
	err := r.DB().WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddParticipant 重复添加返回 gorm.ErrDuplicatedKey
func (r *repository) AddParticipant(ctx context.Context, p *model.Participant) error {
	return r.DB().WithContext(ctx).Create(p).Error
}

// RemoveParticipant 返回是否确有删除
func (r *repository) RemoveParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	res := r.DB().WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&model.Participant{})
	return res.RowsAffected > 0, res.Error
}

// MarkRead 更新最后已读时间
func (r *repository) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	return r.participants(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", at).Error
}

// CreateWithParticipants 会话与成员同一事务写入
func (r *repository) CreateWithParticipants(ctx context.Context, conv *model.Conversation, participants []model.Participant) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(conv).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].ConversationID = conv.ID
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		conv.Participants = participants
		return nil
	})
}

// FindDirect 查找两人之间已有的私聊
func (r *repository) FindDirect(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB().WithContext(ctx).
		Where("type = ?", model.ConversationDirect).
		Where("id IN (?)", r.DB().Model(&model.Participant{}).Select("conversation_id").Where("user_id = ?", userA)).
		Where("id IN (?)", r.DB().Model(&model.Participant{}).Select("conversation_id").Where("user_id = ?", userB)).
		Preload("Participants").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByUser 用户参与的会话，最近有消息的在前
func (r *repository) ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	var list []model.Conversation
	err := r.DB().WithContext(ctx).
		Where("id IN (?)", r.DB().Model(&model.Participant{}).Select("conversation_id").Where("user_id = ?", userID)).
		Preload("Participants").
		Order("CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END, last_message_at DESC, id DESC").
		Find(&list).Error
	return list, err
}

// ProjectConversationIDs 关联到项目的会话
func (r *repository) ProjectConversationIDs(ctx context.Context, projectID int64) ([]int64, error) {
	var ids []int64
	err := r.DB().WithContext(ctx).Model(&model.Conversation{}).
		Where("type = ? AND project_id = ?", model.ConversationProject, projectID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// UnreadCount 他人发送、未删除且晚于最后已读时间的消息数
func (r *repository) UnreadCount(ctx context.Context, conversationID, userID int64) (int64, error) {
	p, err := r.FindParticipant(ctx, conversationID, userID)
	if err != nil || p == nil {
		return 0, err
	}
	db := r.DB().WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND deleted = ?", conversationID, userID, false)
	if p.LastReadAt != nil {
		db = db.Where("created_at > ?", *p.LastReadAt)
	}
	var count int64
	err = db.Count(&count).Error
	return count, err
}

// CreateMessage 写入消息并刷新会话最后消息时间
func (r *repository) CreateMessage(ctx context.Context, msg *model.Message) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("last_message_at", msg.CreatedAt).Error
	})
}

// FindMessage 不存在时返回 nil, nil
func (r *repository) FindMessage(ctx context.Context, id int64) (*model.Message, error) {
	return r.messages.FindByID(ctx, id)
}

// SaveMessage 保存消息
func (r *repository) SaveMessage(ctx context.Context, msg *model.Message) error {
	return r.messages.Update(ctx, msg)
}

// ListMessages 取 beforeID 之前最近的 limit 条，按时间正序返回
func (r *repository) ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error) {
	db := r.messages.DB().WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		db = db.Where("id < ?", beforeID)
	}
	var list []model.Message
	if err := db.Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	slices.Reverse(list)
	return list, nil
}
