package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/opshub/pkg/logger"
	"github.com/opshub/services/ops/internal/model"
	"github.com/opshub/services/ops/internal/realtime"
	"go.uber.org/zap"
)

// RoomPusher 实时通道，由 realtime.Gateway 实现
type RoomPusher interface {
	EmitToUser(userID int64, event string, payload any) int
}

// StreamPusher SSE 通道，由 stream.Registry 实现
type StreamPusher interface {
	Broadcast(userID int64, event string, payload any) int
}

// Dispatcher 通知分发：先落库，再分别推送到两个通道
//
// 推送互不等待，失败或 panic 只记录日志，不影响 Dispatch 的返回值。
type Dispatcher struct {
	repo    Repository
	rooms   RoomPusher
	streams StreamPusher
	log     *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher 创建通知分发器
func NewDispatcher(repo Repository, rooms RoomPusher, streams StreamPusher) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		rooms:   rooms,
		streams: streams,
		log:     logger.Named("notification"),
	}
}

// Dispatch 持久化通知并触发推送，持久化失败时不推送
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, typ, title, message string, payload any) (*model.Notification, error) {
	n := &model.Notification{UserID: userID, Type: typ, Title: title, Message: message}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal notification payload: %w", err)
		}
		n.Payload = raw
	}
	if err := d.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}

	d.push("realtime", n, func() { d.rooms.EmitToUser(userID, realtime.EventNotificationNew, n) })
	d.push("stream", n, func() { d.streams.Broadcast(userID, realtime.EventNotificationNew, n) })
	return n, nil
}

func (d *Dispatcher) push(channel string, n *model.Notification, fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notification push panicked",
					zap.String("channel", channel),
					zap.Int64("notificationId", n.ID),
					zap.Int64("userId", n.UserID),
					zap.Any("panic", r),
				)
			}
		}()
		fn()
	}()
}

// Wait 等待进行中的推送结束
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
