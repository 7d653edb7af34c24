package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/opshub/pkg/auth"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/response"
	"github.com/opshub/pkg/router"
	"go.uber.org/zap"
)

const localSocketUser = "socketUserId"

// wsSocket websocket 连接适配，写入串行化
type wsSocket struct {
	id           string
	userID       int64
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func (s *wsSocket) ID() string    { return s.id }
func (s *wsSocket) UserID() int64 { return s.userID }

func (s *wsSocket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(v)
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}

// Transport websocket 接入
type Transport struct {
	gateway      *Gateway
	jwtManager   *auth.JWTManager
	writeTimeout time.Duration
}

// NewTransport 创建 websocket 接入
func NewTransport(gateway *Gateway, jwtManager *auth.JWTManager, writeTimeout time.Duration) *Transport {
	return &Transport{gateway: gateway, jwtManager: jwtManager, writeTimeout: writeTimeout}
}

// Prefix 返回路由前缀
func (t *Transport) Prefix() string {
	return "/ws"
}

// Routes 返回路由配置
func (t *Transport) Routes(router.Middlewares) []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "", Handler: websocket.New(t.serve), Middlewares: []fiber.Handler{t.handshake}},
	}
}

// handshake 升级前校验令牌，失败直接返回 401
func (t *Transport) handshake(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	claims, err := middleware.Authenticate(c, t.jwtManager)
	if err != nil {
		return response.FromError(c, err)
	}
	c.Locals(localSocketUser, claims.UserID)
	return c.Next()
}

// serve 读循环，返回即断开
func (t *Transport) serve(conn *websocket.Conn) {
	userID, _ := conn.Locals(localSocketUser).(int64)
	socket := &wsSocket{
		id:           uuid.NewString(),
		userID:       userID,
		conn:         conn,
		writeTimeout: t.writeTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := t.gateway.Connect(ctx, socket)
	if err != nil {
		t.gateway.log.Error("socket connect failed", zap.Int64("userId", userID), zap.Error(err))
		_ = conn.Close()
		return
	}
	defer t.gateway.Disconnect(client)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		t.gateway.Dispatch(ctx, client, data)
	}
}
