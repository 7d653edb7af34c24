package chat

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/utils"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/model"
	"github.com/opshub/services/ops/internal/permission"
	"github.com/opshub/services/ops/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RoomEmitter 房间推送，由 realtime.Gateway 实现
type RoomEmitter interface {
	EmitToRoom(room, event string, payload any, exceptSocketID string) int
	EmitToUser(userID int64, event string, payload any) int
	JoinUser(userID int64, room string)
	RemoveUser(userID int64, room string)
}

// Streamer SSE 推送，由 stream.Registry 实现
type Streamer interface {
	Broadcast(userID int64, event string, payload any) int
}

// ProjectDirectory 项目归属查询
type ProjectDirectory interface {
	// ClientID 项目不存在时返回 NotFound
	ClientID(ctx context.Context, projectID int64) (int64, error)
	IsAssigned(ctx context.Context, projectID, userID int64) (bool, error)
}

// PermissionChecker 权限判断，由 permission.Resolver 实现
type PermissionChecker interface {
	HasAny(ctx context.Context, userID int64, names ...permission.Name) (bool, error)
}

// Notifier 站内通知
type Notifier interface {
	Dispatch(ctx context.Context, userID int64, typ, title, message string, payload any) (*model.Notification, error)
}

// Coordinator 会话授权、持久化与推送
//
// 会话内的一切操作只看成员关系，与角色无关；项目会话额外受项目范围约束。
type Coordinator struct {
	repo     Repository
	rooms    RoomEmitter
	streams  Streamer
	projects ProjectDirectory
	perms    PermissionChecker
	notifier Notifier
	now      func() time.Time
	log      *zap.Logger
}

// NewCoordinator 创建会话协调器
func NewCoordinator(repo Repository, rooms RoomEmitter, streams Streamer, projects ProjectDirectory, perms PermissionChecker, notifier Notifier) *Coordinator {
	return &Coordinator{
		repo:     repo,
		rooms:    rooms,
		streams:  streams,
		projects: projects,
		perms:    perms,
		notifier: notifier,
		now:      time.Now,
		log:      logger.Named("chat"),
	}
}

func (c *Coordinator) requireParticipant(ctx context.Context, conversationID, userID int64) (*model.Participant, error) {
	p, err := c.repo.FindParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	if p == nil {
		return nil, errors.ErrNotParticipant
	}
	return p, nil
}

func (c *Coordinator) findConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	conv, err := c.repo.FindByID(ctx, id, preloadParticipants)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv == nil {
		return nil, errors.NotFound("会话")
	}
	return conv, nil
}

// inProjectScope 项目范围：拥有 administer_chat 的用户、项目客户、项目里程碑的负责人
func (c *Coordinator) inProjectScope(ctx context.Context, projectID, userID int64) (bool, error) {
	clientID, err := c.projects.ClientID(ctx, projectID)
	if err != nil {
		return false, err
	}
	if clientID == userID {
		return true, nil
	}
	assigned, err := c.projects.IsAssigned(ctx, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	if assigned {
		return true, nil
	}
	return c.perms.HasAny(ctx, userID, permission.AdministerChat)
}

// CreateConversation 创建会话，私聊已存在时直接返回
func (c *Coordinator) CreateConversation(ctx context.Context, actor int64, req *CreateConversationRequest) (*model.Conversation, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	others := make([]int64, 0, len(req.ParticipantIDs))
	for _, id := range utils.Unique(req.ParticipantIDs) {
		if id != actor {
			others = append(others, id)
		}
	}

	conv := &model.Conversation{Type: req.Type, Name: strings.TrimSpace(req.Name), CreatedBy: actor}
	participants := []model.Participant{{UserID: actor}}

	switch req.Type {
	case model.ConversationDirect:
		if len(others) != 1 {
			return nil, errors.Validation("私聊必须指定且只能指定一个对象")
		}
		existing, err := c.repo.FindDirect(ctx, actor, others[0])
		if err != nil {
			return nil, fmt.Errorf("find direct conversation: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	case model.ConversationGroup:
		participants[0].IsAdmin = true
	case model.ConversationProject:
		if req.ProjectID == nil {
			return nil, errors.Validation("项目会话必须指定项目")
		}
		for _, id := range append([]int64{actor}, others...) {
			ok, err := c.inProjectScope(ctx, *req.ProjectID, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.Forbidden(fmt.Sprintf("用户 %d 不在项目范围内", id))
			}
		}
		conv.ProjectID = req.ProjectID
		participants[0].IsAdmin = true
	}

	for _, id := range others {
		participants = append(participants, model.Participant{UserID: id})
	}
	if err := c.repo.CreateWithParticipants(ctx, conv, participants); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	room := realtime.ConversationRoom(conv.ID)
	for _, p := range participants {
		c.rooms.JoinUser(p.UserID, room)
		if p.UserID != actor {
			c.pushToUser(p.UserID, realtime.EventConversationNew, conv)
		}
	}
	c.log.Info("conversation created",
		zap.Int64("conversationId", conv.ID),
		zap.String("type", string(conv.Type)),
		zap.Int64("createdBy", actor),
	)
	return conv, nil
}

// ListConversations 用户参与的会话及未读数
func (c *Coordinator) ListConversations(ctx context.Context, actor int64) ([]ConversationView, error) {
	list, err := c.repo.ListByUser(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	views := make([]ConversationView, 0, len(list))
	for _, conv := range list {
		unread, err := c.repo.UnreadCount(ctx, conv.ID, actor)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}
		views = append(views, ConversationView{Conversation: conv, UnreadCount: unread})
	}
	return views, nil
}

// GetConversation 会话详情
func (c *Coordinator) GetConversation(ctx context.Context, actor, conversationID int64) (*model.Conversation, error) {
	if _, err := c.requireParticipant(ctx, conversationID, actor); err != nil {
		return nil, err
	}
	return c.findConversation(ctx, conversationID)
}

// ListMessages 按 beforeID 向前翻页
func (c *Coordinator) ListMessages(ctx context.Context, actor, conversationID, beforeID int64, limit int) ([]model.Message, error) {
	if _, err := c.requireParticipant(ctx, conversationID, actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}
	list, err := c.repo.ListMessages(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return list, nil
}

// SendMessage 先落库，再推送到房间和其他成员的 SSE 通道
func (c *Coordinator) SendMessage(ctx context.Context, actor int64, req *SendMessageRequest) (*model.Message, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if _, err := c.requireParticipant(ctx, req.ConversationID, actor); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return nil, errors.ErrEmptyMessage
	}

	msg := &model.Message{
		ConversationID: req.ConversationID,
		SenderID:       actor,
		Content:        content,
		Attachments:    req.Attachments,
	}
	if err := c.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	c.rooms.EmitToRoom(realtime.ConversationRoom(msg.ConversationID), realtime.EventMessageNew, msg, "")
	c.streamToOthers(ctx, msg.ConversationID, actor, realtime.EventMessageNew, msg)
	return msg, nil
}

// EditMessage 只能编辑自己未删除的消息
func (c *Coordinator) EditMessage(ctx context.Context, actor int64, req *EditMessageRequest) (*model.Message, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	msg, err := c.ownMessage(ctx, actor, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, errors.Conflict("消息已删除，不能编辑")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errors.Validation("消息内容不能为空")
	}

	now := c.now()
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &now
	if err := c.repo.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	c.rooms.EmitToRoom(realtime.ConversationRoom(msg.ConversationID), realtime.EventMessageUpdated, msg, "")
	return msg, nil
}

// DeleteMessage 逻辑删除，重复删除不再推送
func (c *Coordinator) DeleteMessage(ctx context.Context, actor, messageID int64) (*model.Message, error) {
	msg, err := c.ownMessage(ctx, actor, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return msg, nil
	}

	now := c.now()
	msg.Deleted = true
	msg.DeletedAt = &now
	msg.Content = ""
	msg.Attachments = nil
	if err := c.repo.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	c.rooms.EmitToRoom(realtime.ConversationRoom(msg.ConversationID), realtime.EventMessageDeleted, MessageDeleted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	}, "")
	return msg, nil
}

// ownMessage 先校验成员身份，再校验发送者
func (c *Coordinator) ownMessage(ctx context.Context, actor, messageID int64) (*model.Message, error) {
	msg, err := c.repo.FindMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	if msg == nil {
		return nil, errors.NotFound("消息")
	}
	if _, err := c.requireParticipant(ctx, msg.ConversationID, actor); err != nil {
		return nil, err
	}
	if msg.SenderID != actor {
		return nil, errors.Forbidden("只能操作自己发送的消息")
	}
	return msg, nil
}

// MarkRead 更新已读时间并广播已读回执
func (c *Coordinator) MarkRead(ctx context.Context, actor, conversationID int64) (*ReadReceipt, error) {
	if _, err := c.requireParticipant(ctx, conversationID, actor); err != nil {
		return nil, err
	}
	receipt := &ReadReceipt{ConversationID: conversationID, UserID: actor, ReadAt: c.now()}
	if err := c.repo.MarkRead(ctx, conversationID, actor, receipt.ReadAt); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	c.rooms.EmitToRoom(realtime.ConversationRoom(conversationID), realtime.EventReadReceipt, receipt, "")
	return receipt, nil
}

// AddParticipant 会话管理员添加成员
func (c *Coordinator) AddParticipant(ctx context.Context, actor, conversationID int64, req *AddParticipantRequest) (*model.Participant, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	self, err := c.requireParticipant(ctx, conversationID, actor)
	if err != nil {
		return nil, err
	}
	if !self.IsAdmin {
		return nil, errors.Forbidden("需要会话管理员权限")
	}
	conv, err := c.findConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Type == model.ConversationDirect {
		return nil, errors.Conflict("私聊不能添加成员")
	}
	if conv.ProjectID != nil {
		ok, err := c.inProjectScope(ctx, *conv.ProjectID, req.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Forbidden("该用户不在项目范围内")
		}
	}

	p, err := c.addParticipant(ctx, conv, req.UserID, req.IsAdmin)
	if err != nil {
		return nil, err
	}
	c.log.Info("participant added",
		zap.Int64("conversationId", conversationID),
		zap.Int64("userId", req.UserID),
		zap.Int64("by", actor),
	)
	return p, nil
}

// addParticipant 写入成员并同步推送状态
func (c *Coordinator) addParticipant(ctx context.Context, conv *model.Conversation, userID int64, isAdmin bool) (*model.Participant, error) {
	existing, err := c.repo.FindParticipant(ctx, conv.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	if existing != nil {
		return nil, errors.Conflict("用户已在会话中")
	}
	p := &model.Participant{ConversationID: conv.ID, UserID: userID, IsAdmin: isAdmin}
	if err := c.repo.AddParticipant(ctx, p); err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("用户已在会话中")
		}
		return nil, fmt.Errorf("add participant: %w", err)
	}

	fresh, err := c.findConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	room := realtime.ConversationRoom(conv.ID)
	c.rooms.JoinUser(userID, room)
	c.pushToUser(userID, realtime.EventConversationNew, fresh)
	c.rooms.EmitToRoom(room, realtime.EventConversationUpdated, fresh, "")

	if _, err := c.notifier.Dispatch(ctx, userID, NotificationParticipantAdded, "加入会话",
		fmt.Sprintf("你已被加入会话「%s」", conversationTitle(fresh)),
		map[string]any{"conversationId": conv.ID},
	); err != nil {
		c.log.Warn("participant notification failed", zap.Int64("userId", userID), zap.Error(err))
	}
	return p, nil
}

// RemoveParticipant 管理员移除成员，或成员自行退出
func (c *Coordinator) RemoveParticipant(ctx context.Context, actor, conversationID, userID int64) error {
	self, err := c.requireParticipant(ctx, conversationID, actor)
	if err != nil {
		return err
	}
	if actor != userID && !self.IsAdmin {
		return errors.Forbidden("需要会话管理员权限")
	}
	conv, err := c.findConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Type == model.ConversationDirect {
		return errors.Conflict("私聊不能移除成员")
	}
	if conv.ProjectID != nil {
		assigned, err := c.projects.IsAssigned(ctx, *conv.ProjectID, userID)
		if err != nil {
			return fmt.Errorf("check assignment: %w", err)
		}
		if assigned {
			return errors.Conflict("该成员仍负责项目里程碑，不能移出项目会话")
		}
	}

	removed, err := c.repo.RemoveParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if !removed {
		return errors.NotFound("会话成员")
	}

	room := realtime.ConversationRoom(conversationID)
	c.rooms.RemoveUser(userID, room)
	c.pushToUser(userID, realtime.EventConversationRemoved, ConversationRemoved{ConversationID: conversationID})
	if fresh, err := c.findConversation(ctx, conversationID); err == nil {
		c.rooms.EmitToRoom(room, realtime.EventConversationUpdated, fresh, "")
	}
	c.log.Info("participant removed",
		zap.Int64("conversationId", conversationID),
		zap.Int64("userId", userID),
		zap.Int64("by", actor),
	)
	return nil
}

// SyncProjectParticipant 将用户加入项目下所有尚未加入的项目会话，返回新加入的会话数
func (c *Coordinator) SyncProjectParticipant(ctx context.Context, projectID, userID int64) (int, error) {
	ids, err := c.repo.ProjectConversationIDs(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("list project conversations: %w", err)
	}
	added := 0
	for _, id := range ids {
		ok, err := c.repo.IsParticipant(ctx, id, userID)
		if err != nil {
			return added, fmt.Errorf("check participant: %w", err)
		}
		if ok {
			continue
		}
		conv, err := c.findConversation(ctx, id)
		if err != nil {
			return added, err
		}
		if _, err := c.addParticipant(ctx, conv, userID, false); err != nil {
			if errors.IsConflict(err) {
				continue
			}
			return added, err
		}
		added++
	}
	if added > 0 {
		c.log.Info("project participant synced",
			zap.Int64("projectId", projectID),
			zap.Int64("userId", userID),
			zap.Int("conversations", added),
		)
	}
	return added, nil
}

// pushToUser 同时推送到实时通道和 SSE 通道
func (c *Coordinator) pushToUser(userID int64, event string, payload any) {
	c.rooms.EmitToUser(userID, event, payload)
	c.streams.Broadcast(userID, event, payload)
}

func (c *Coordinator) streamToOthers(ctx context.Context, conversationID, sender int64, event string, payload any) {
	ids, err := c.repo.ParticipantIDs(ctx, conversationID)
	if err != nil {
		c.log.Warn("list participants for stream failed", zap.Int64("conversationId", conversationID), zap.Error(err))
		return
	}
	for _, id := range ids {
		if id != sender {
			c.streams.Broadcast(id, event, payload)
		}
	}
}

func conversationTitle(conv *model.Conversation) string {
	if conv.Name != "" {
		return conv.Name
	}
	return fmt.Sprintf("#%d", conv.ID)
}
