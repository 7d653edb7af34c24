package chat

import (
	"context"
	"encoding/json"

	"github.com/opshub/services/ops/internal/realtime"
)

// EventBinder 客户端事件注册，由 realtime.Gateway 实现
type EventBinder interface {
	On(event string, h realtime.HandlerFunc)
}

// BindSocketEvents 注册消息相关的客户端事件，推送由协调器完成
func (c *Coordinator) BindSocketEvents(b EventBinder) {
	b.On(realtime.EventMessageSend, func(ctx context.Context, client *realtime.Client, data json.RawMessage) error {
		var req SendMessageRequest
		if err := realtime.Decode(data, &req); err != nil {
			return err
		}
		_, err := c.SendMessage(ctx, client.UserID(), &req)
		return err
	})
	b.On(realtime.EventMessageEdit, func(ctx context.Context, client *realtime.Client, data json.RawMessage) error {
		var req EditMessageRequest
		if err := realtime.Decode(data, &req); err != nil {
			return err
		}
		_, err := c.EditMessage(ctx, client.UserID(), &req)
		return err
	})
	b.On(realtime.EventMessageDelete, func(ctx context.Context, client *realtime.Client, data json.RawMessage) error {
		var req MessageRef
		if err := realtime.Decode(data, &req); err != nil {
			return err
		}
		_, err := c.DeleteMessage(ctx, client.UserID(), req.MessageID)
		return err
	})
	b.On(realtime.EventMessageRead, func(ctx context.Context, client *realtime.Client, data json.RawMessage) error {
		var req realtime.ConversationRef
		if err := realtime.Decode(data, &req); err != nil {
			return err
		}
		_, err := c.MarkRead(ctx, client.UserID(), req.ConversationID)
		return err
	})
}
