package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/validate"
	"go.uber.org/zap"
)

// Socket 单个实时连接的写入端
type Socket interface {
	ID() string
	UserID() int64
	WriteJSON(v any) error
	Close() error
}

// ParticipantStore 会话成员查询
type ParticipantStore interface {
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ConversationIDs(ctx context.Context, userID int64) ([]int64, error)
	ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error)
}

// HandlerFunc 客户端事件处理函数
type HandlerFunc func(ctx context.Context, client *Client, data json.RawMessage) error

// State 连接状态
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// Client 网关内的一个已认证连接
type Client struct {
	socket Socket
	state  atomic.Int32
	rooms  map[string]struct{} // 由 Gateway.mu 保护
}

// ID 连接ID
func (c *Client) ID() string { return c.socket.ID() }

// UserID 用户ID
func (c *Client) UserID() int64 { return c.socket.UserID() }

// State 当前状态
func (c *Client) State() State { return State(c.state.Load()) }

// Send 仅向该连接发送事件
func (c *Client) Send(event string, payload any) error {
	return c.socket.WriteJSON(Frame{Event: event, Data: payload})
}

// Gateway 房间与连接管理
type Gateway struct {
	mu      sync.RWMutex
	clients map[string]*Client
	users   map[int64]map[string]*Client
	rooms   map[string]map[string]*Client

	handlers map[string]HandlerFunc
	store    ParticipantStore
	now      func() time.Time
	log      *zap.Logger
}

// NewGateway 创建网关并注册内置事件
func NewGateway(store ParticipantStore) *Gateway {
	g := &Gateway{
		clients:  make(map[string]*Client),
		users:    make(map[int64]map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		handlers: make(map[string]HandlerFunc),
		store:    store,
		now:      time.Now,
		log:      logger.Named("realtime"),
	}
	g.On(EventConversationJoin, g.handleJoin)
	g.On(EventConversationLeave, g.handleLeave)
	g.On(EventTypingStart, g.handleTyping(true))
	g.On(EventTypingStop, g.handleTyping(false))
	return g
}

// On 注册客户端事件处理函数，同名覆盖
func (g *Gateway) On(event string, h HandlerFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[event] = h
}

// Connect 接入已认证连接，加入用户房间和所有参与的会话房间
//
// 先登记连接再加载会话，加载期间的 JoinUser 对该连接同样生效。
func (g *Gateway) Connect(ctx context.Context, socket Socket) (*Client, error) {
	client := &Client{socket: socket, rooms: make(map[string]struct{})}
	userID := socket.UserID()

	g.mu.Lock()
	if _, dup := g.clients[socket.ID()]; dup {
		g.mu.Unlock()
		return nil, fmt.Errorf("realtime: socket %s already connected", socket.ID())
	}
	client.state.Store(int32(StateOpen))
	g.clients[socket.ID()] = client
	sockets, ok := g.users[userID]
	if !ok {
		sockets = make(map[string]*Client)
		g.users[userID] = sockets
	}
	sockets[socket.ID()] = client
	g.joinLocked(client, UserRoom(userID))
	g.mu.Unlock()

	conversationIDs, err := g.store.ConversationIDs(ctx, userID)
	if err != nil {
		g.unregister(client)
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	rooms := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		rooms = append(rooms, ConversationRoom(id))
	}
	g.mu.Lock()
	for _, room := range rooms {
		g.joinLocked(client, room)
	}
	g.mu.Unlock()

	g.log.Debug("socket connected", zap.Int64("userId", userID), zap.String("socket", socket.ID()))

	status := UserStatus{UserID: userID, Status: StatusOnline}
	for _, room := range rooms {
		g.EmitToRoom(room, EventUserStatus, status, socket.ID())
	}
	return client, nil
}

// unregister 撤销未完成的接入
func (g *Gateway) unregister(client *Client) {
	client.state.Store(int32(StateClosed))
	g.mu.Lock()
	defer g.mu.Unlock()
	for room := range client.rooms {
		g.leaveLocked(client, room)
	}
	delete(g.clients, client.ID())
	if sockets, ok := g.users[client.UserID()]; ok {
		delete(sockets, client.ID())
		if len(sockets) == 0 {
			delete(g.users, client.UserID())
		}
	}
}

// Disconnect 断开连接，只生效一次
//
// 用户最后一个连接断开时才向其会话房间广播离线。
func (g *Gateway) Disconnect(client *Client) {
	if !client.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return
	}
	userID := client.UserID()

	g.mu.Lock()
	var conversationRooms []string
	for room := range client.rooms {
		if _, ok := ConversationIDFromRoom(room); ok {
			conversationRooms = append(conversationRooms, room)
		}
		g.leaveLocked(client, room)
	}
	delete(g.clients, client.ID())
	lastSocket := false
	if sockets, ok := g.users[userID]; ok {
		delete(sockets, client.ID())
		if len(sockets) == 0 {
			delete(g.users, userID)
			lastSocket = true
		}
	}
	g.mu.Unlock()

	_ = client.socket.Close()
	g.log.Debug("socket disconnected", zap.Int64("userId", userID), zap.String("socket", client.ID()))

	if !lastSocket {
		return
	}
	lastSeen := g.now()
	status := UserStatus{UserID: userID, Status: StatusOffline, LastSeen: &lastSeen}
	for _, room := range conversationRooms {
		g.EmitToRoom(room, EventUserStatus, status, "")
	}
}

// Dispatch 处理一条客户端上行帧，错误只回给该连接
func (g *Gateway) Dispatch(ctx context.Context, client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		g.replyError(client, env.Event, errors.BadRequest("无效的消息格式"))
		return
	}

	g.mu.RLock()
	h, ok := g.handlers[env.Event]
	g.mu.RUnlock()
	if !ok {
		g.replyError(client, env.Event, errors.BadRequest("未知事件: "+env.Event))
		return
	}

	if err := h(ctx, client, env.Data); err != nil {
		g.replyError(client, env.Event, err)
	}
}

func (g *Gateway) replyError(client *Client, event string, err error) {
	code := errors.GetCode(err)
	message := errors.GetMessage(err)
	if code >= errors.CodeInternal {
		g.log.Error("socket event failed",
			zap.String("event", event),
			zap.Int64("userId", client.UserID()),
			zap.Error(err),
		)
		message = "服务器内部错误"
	}
	g.send(client, Frame{Event: EventError, Data: ErrorEvent{Event: event, Code: code, Message: message}})
}

// send 写入失败时关闭连接，由读循环完成断开
func (g *Gateway) send(client *Client, frame Frame) bool {
	if client.State() != StateOpen {
		return false
	}
	if err := client.socket.WriteJSON(frame); err != nil {
		g.log.Debug("socket write failed",
			zap.String("socket", client.ID()),
			zap.String("event", frame.Event),
			zap.Error(err),
		)
		_ = client.socket.Close()
		return false
	}
	return true
}

// EmitToRoom 向房间广播，exceptSocketID 非空时跳过该连接，返回送达数
func (g *Gateway) EmitToRoom(room, event string, payload any, exceptSocketID string) int {
	g.mu.RLock()
	members := g.rooms[room]
	snapshot := make([]*Client, 0, len(members))
	for id, c := range members {
		if id != exceptSocketID {
			snapshot = append(snapshot, c)
		}
	}
	g.mu.RUnlock()

	frame := Frame{Event: event, Data: payload}
	n := 0
	for _, c := range snapshot {
		if g.send(c, frame) {
			n++
		}
	}
	return n
}

// EmitToUser 向用户的全部连接推送
func (g *Gateway) EmitToUser(userID int64, event string, payload any) int {
	return g.EmitToRoom(UserRoom(userID), event, payload, "")
}

// JoinUser 将用户的全部连接加入房间
func (g *Gateway) JoinUser(userID int64, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.users[userID] {
		g.joinLocked(c, room)
	}
}

// RemoveUser 将用户的全部连接移出房间
func (g *Gateway) RemoveUser(userID int64, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.users[userID] {
		g.leaveLocked(c, room)
	}
}

// IsOnline 用户是否有任一连接
func (g *Gateway) IsOnline(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.users[userID]) > 0
}

// OnlineInRoom 用户是否有连接在该房间
func (g *Gateway) OnlineInRoom(room string, userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id := range g.users[userID] {
		if _, ok := g.rooms[room][id]; ok {
			return true
		}
	}
	return false
}

// InRoom 连接是否在房间内
func (g *Gateway) InRoom(client *Client, room string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := client.rooms[room]
	return ok
}

// Join 将单个连接加入房间
func (g *Gateway) Join(client *Client, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if client.State() == StateOpen {
		g.joinLocked(client, room)
	}
}

// Leave 将单个连接移出房间
func (g *Gateway) Leave(client *Client, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(client, room)
}

// ConnectionCount 当前连接数
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Close 断开全部连接
func (g *Gateway) Close() {
	g.mu.RLock()
	all := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		all = append(all, c)
	}
	g.mu.RUnlock()

	for _, c := range all {
		g.Disconnect(c)
	}
	g.log.Info("realtime gateway closed", zap.Int("sockets", len(all)))
}

func (g *Gateway) joinLocked(c *Client, room string) {
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		g.rooms[room] = members
	}
	members[c.ID()] = c
	c.rooms[room] = struct{}{}
}

func (g *Gateway) leaveLocked(c *Client, room string) {
	if members, ok := g.rooms[room]; ok {
		delete(members, c.ID())
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Decode 解析并校验事件体
func Decode(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return errors.BadRequest("缺少事件数据")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.BadRequest("无效的事件数据")
	}
	return validate.Struct(out)
}
