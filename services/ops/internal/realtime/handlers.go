package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opshub/pkg/errors"
)

// handleJoin 每次加入都重新校验成员身份
func (g *Gateway) handleJoin(ctx context.Context, client *Client, data json.RawMessage) error {
	var req ConversationRef
	if err := Decode(data, &req); err != nil {
		return err
	}
	ok, err := g.store.IsParticipant(ctx, req.ConversationID, client.UserID())
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return errors.ErrNotParticipant
	}

	room := ConversationRoom(req.ConversationID)
	g.Join(client, room)

	participantIDs, err := g.store.ParticipantIDs(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	statuses := make([]ParticipantStatus, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id == client.UserID() {
			continue
		}
		status := StatusOffline
		if g.OnlineInRoom(room, id) {
			status = StatusOnline
		}
		statuses = append(statuses, ParticipantStatus{UserID: id, Status: status})
	}
	g.send(client, Frame{Event: EventInitialStatus, Data: InitialStatus{
		ConversationID: req.ConversationID,
		Statuses:       statuses,
	}})
	return nil
}

func (g *Gateway) handleLeave(_ context.Context, client *Client, data json.RawMessage) error {
	var req ConversationRef
	if err := Decode(data, &req); err != nil {
		return err
	}
	g.Leave(client, ConversationRoom(req.ConversationID))
	return nil
}

// handleTyping 输入状态不落库，不回发给发送方连接
func (g *Gateway) handleTyping(isTyping bool) HandlerFunc {
	return func(_ context.Context, client *Client, data json.RawMessage) error {
		var req ConversationRef
		if err := Decode(data, &req); err != nil {
			return err
		}
		room := ConversationRoom(req.ConversationID)
		if !g.InRoom(client, room) {
			return errors.Forbidden("未加入该会话")
		}
		g.EmitToRoom(room, EventTyping, Typing{
			ConversationID: req.ConversationID,
			UserID:         client.UserID(),
			IsTyping:       isTyping,
		}, client.ID())
		return nil
	}
}
