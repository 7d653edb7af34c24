package realtime

import (
	"strconv"
	"strings"
)

const (
	conversationRoomPrefix = "conversation:"
	userRoomPrefix         = "user:"
)

// ConversationRoom 会话房间名
func ConversationRoom(conversationID int64) string {
	return conversationRoomPrefix + strconv.FormatInt(conversationID, 10)
}

// UserRoom 用户私有房间名
func UserRoom(userID int64) string {
	return userRoomPrefix + strconv.FormatInt(userID, 10)
}

// ConversationIDFromRoom 解析会话房间名
func ConversationIDFromRoom(room string) (int64, bool) {
	rest, ok := strings.CutPrefix(room, conversationRoomPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}
