package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/opshub/pkg/errors"
)

type fakeSocket struct {
	id     string
	userID int64

	mu     sync.Mutex
	frames []Frame
	closed bool
	broken bool
}

func (s *fakeSocket) ID() string    { return s.id }
func (s *fakeSocket) UserID() int64 { return s.userID }

func (s *fakeSocket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return errors.New("broken pipe")
	}
	s.frames = append(s.frames, v.(Frame))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// events 返回收到的事件名
func (s *fakeSocket) events(names ...string) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Frame
	for _, f := range s.frames {
		for _, n := range names {
			if f.Event == n {
				out = append(out, f)
			}
		}
	}
	return out
}

func (s *fakeSocket) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

// memberStore conversationID -> participant ids
type memberStore map[int64][]int64

func (m memberStore) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	for _, id := range m[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m memberStore) ConversationIDs(_ context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for cid, members := range m {
		for _, id := range members {
			if id == userID {
				ids = append(ids, cid)
			}
		}
	}
	return ids, nil
}

func (m memberStore) ParticipantIDs(_ context.Context, conversationID int64) ([]int64, error) {
	return m[conversationID], nil
}

var socketSeq int

func connect(t *testing.T, g *Gateway, userID int64) (*Client, *fakeSocket) {
	t.Helper()
	socketSeq++
	s := &fakeSocket{id: fmt.Sprintf("s%d", socketSeq), userID: userID}
	c, err := g.Connect(context.Background(), s)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c, s
}

func dispatch(g *Gateway, c *Client, event string, data any) {
	raw, _ := json.Marshal(map[string]any{"event": event, "data": data})
	g.Dispatch(context.Background(), c, raw)
}

func TestConnectJoinsRoomsAndAnnouncesOnline(t *testing.T) {
	g := NewGateway(memberStore{10: {1, 2}, 11: {1}})
	_, bob := connect(t, g, 2)
	alice, aliceSocket := connect(t, g, 1)

	if !g.InRoom(alice, UserRoom(1)) || !g.InRoom(alice, ConversationRoom(10)) || !g.InRoom(alice, ConversationRoom(11)) {
		t.Fatal("socket not joined to its rooms")
	}
	online := bob.events(EventUserStatus)
	if len(online) != 1 || online[0].Data.(UserStatus).Status != StatusOnline {
		t.Fatalf("bob frames = %+v", online)
	}
	if len(aliceSocket.events(EventUserStatus)) != 0 {
		t.Fatal("own online status echoed to self")
	}
}

func TestDisconnectOnceAndOfflineOnLastSocket(t *testing.T) {
	g := NewGateway(memberStore{10: {1, 2}})
	_, bob := connect(t, g, 2)
	first, firstSocket := connect(t, g, 1)
	second, _ := connect(t, g, 1)
	bob.reset()

	g.Disconnect(first)
	g.Disconnect(first)
	if !firstSocket.closed {
		t.Fatal("socket not closed")
	}
	if got := bob.events(EventUserStatus); len(got) != 0 {
		t.Fatalf("offline sent while another socket is open: %+v", got)
	}
	if !g.IsOnline(1) {
		t.Fatal("user should still be online")
	}

	g.Disconnect(second)
	got := bob.events(EventUserStatus)
	if len(got) != 1 {
		t.Fatalf("offline frames = %d", len(got))
	}
	status := got[0].Data.(UserStatus)
	if status.Status != StatusOffline || status.LastSeen == nil {
		t.Fatalf("status = %+v", status)
	}
	if g.IsOnline(1) || g.ConnectionCount() != 1 {
		t.Fatal("user still registered")
	}
}

func TestJoinChecksParticipantEveryTime(t *testing.T) {
	store := memberStore{10: {1, 2}}
	g := NewGateway(store)
	_, _ = connect(t, g, 2)
	alice, aliceSocket := connect(t, g, 1)
	stranger, strangerSocket := connect(t, g, 3)

	dispatch(g, stranger, EventConversationJoin, ConversationRef{ConversationID: 10})
	errs := strangerSocket.events(EventError)
	if len(errs) != 1 || errs[0].Data.(ErrorEvent).Code != apperrors.CodeForbidden {
		t.Fatalf("stranger frames = %+v", errs)
	}
	if g.InRoom(stranger, ConversationRoom(10)) {
		t.Fatal("stranger joined room")
	}

	dispatch(g, alice, EventConversationJoin, ConversationRef{ConversationID: 10})
	initial := aliceSocket.events(EventInitialStatus)
	if len(initial) != 1 {
		t.Fatalf("initial-status frames = %d", len(initial))
	}
	statuses := initial[0].Data.(InitialStatus).Statuses
	if len(statuses) != 1 || statuses[0].UserID != 2 || statuses[0].Status != StatusOnline {
		t.Fatalf("statuses = %+v", statuses)
	}

	// 成员被移除后再次加入必须失败
	store[10] = []int64{2}
	aliceSocket.reset()
	dispatch(g, alice, EventConversationJoin, ConversationRef{ConversationID: 10})
	if len(aliceSocket.events(EventError)) != 1 {
		t.Fatal("join allowed after removal")
	}
}

func TestTypingExcludesSenderAndRequiresRoom(t *testing.T) {
	g := NewGateway(memberStore{10: {1, 2}})
	alice, aliceSocket := connect(t, g, 1)
	_, bobSocket := connect(t, g, 2)
	stranger, strangerSocket := connect(t, g, 3)

	dispatch(g, alice, EventTypingStart, ConversationRef{ConversationID: 10})
	typing := bobSocket.events(EventTyping)
	if len(typing) != 1 || !typing[0].Data.(Typing).IsTyping || typing[0].Data.(Typing).UserID != 1 {
		t.Fatalf("bob typing frames = %+v", typing)
	}
	if len(aliceSocket.events(EventTyping)) != 0 {
		t.Fatal("typing echoed to sender socket")
	}

	dispatch(g, stranger, EventTypingStop, ConversationRef{ConversationID: 10})
	if len(strangerSocket.events(EventError)) != 1 {
		t.Fatal("typing outside room must fail")
	}
}

func TestDispatchErrors(t *testing.T) {
	g := NewGateway(memberStore{})
	c, s := connect(t, g, 1)

	g.Dispatch(context.Background(), c, []byte("not json"))
	dispatch(g, c, "nope", nil)
	dispatch(g, c, EventConversationLeave, map[string]any{"conversationId": 0})

	errs := s.events(EventError)
	if len(errs) != 3 {
		t.Fatalf("error frames = %d", len(errs))
	}
	if errs[1].Data.(ErrorEvent).Event != "nope" {
		t.Fatalf("error = %+v", errs[1].Data)
	}
	if errs[2].Data.(ErrorEvent).Code != apperrors.CodeValidation {
		t.Fatalf("validation error = %+v", errs[2].Data)
	}
}

func TestCustomHandlerInternalErrorIsMasked(t *testing.T) {
	g := NewGateway(memberStore{})
	g.On("boom", func(context.Context, *Client, json.RawMessage) error {
		return errors.New("db exploded")
	})
	c, s := connect(t, g, 1)

	dispatch(g, c, "boom", map[string]any{})
	errs := s.events(EventError)
	if len(errs) != 1 {
		t.Fatalf("frames = %d", len(errs))
	}
	if e := errs[0].Data.(ErrorEvent); e.Code != apperrors.CodeInternal || e.Message == "db exploded" {
		t.Fatalf("error = %+v", e)
	}
}

func TestPushAPI(t *testing.T) {
	g := NewGateway(memberStore{})
	_, s1 := connect(t, g, 1)
	_, s2 := connect(t, g, 1)
	_, other := connect(t, g, 2)

	if n := g.EmitToUser(1, EventNotificationNew, map[string]any{"id": 1}); n != 2 {
		t.Fatalf("EmitToUser delivered %d", n)
	}
	if len(other.events(EventNotificationNew)) != 0 {
		t.Fatal("notification leaked to another user")
	}

	room := ConversationRoom(99)
	g.JoinUser(1, room)
	if !g.OnlineInRoom(room, 1) || g.OnlineInRoom(room, 2) {
		t.Fatal("JoinUser membership wrong")
	}
	if n := g.EmitToRoom(room, EventConversationUpdated, nil, s1.ID()); n != 1 {
		t.Fatalf("EmitToRoom delivered %d", n)
	}
	if len(s2.events(EventConversationUpdated)) != 1 {
		t.Fatal("second socket missed room event")
	}

	g.RemoveUser(1, room)
	if g.OnlineInRoom(room, 1) {
		t.Fatal("RemoveUser left a socket in the room")
	}
	if g.EmitToUser(42, EventNotificationNew, nil) != 0 {
		t.Fatal("offline user delivery")
	}
}

func TestWriteFailureClosesSocket(t *testing.T) {
	g := NewGateway(memberStore{})
	_, s := connect(t, g, 1)
	s.broken = true

	if n := g.EmitToUser(1, EventNotificationNew, nil); n != 0 {
		t.Fatalf("delivered = %d", n)
	}
	if !s.closed {
		t.Fatal("failed socket not closed")
	}
}

func TestClose(t *testing.T) {
	g := NewGateway(memberStore{})
	connect(t, g, 1)
	connect(t, g, 2)
	g.Close()
	if g.ConnectionCount() != 0 || g.IsOnline(1) {
		t.Fatal("gateway not drained")
	}
}

// gatedStore 在 ConversationIDs 中等待放行
type gatedStore struct {
	memberStore
	entered chan struct{}
	release chan struct{}
	err     error
}

func (s *gatedStore) ConversationIDs(ctx context.Context, userID int64) ([]int64, error) {
	close(s.entered)
	<-s.release
	if s.err != nil {
		return nil, s.err
	}
	return s.memberStore.ConversationIDs(ctx, userID)
}

func TestJoinUserDuringConnect(t *testing.T) {
	store := &gatedStore{
		memberStore: memberStore{1: {7}},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	g := NewGateway(store)
	sock := &fakeSocket{id: "s1", userID: 7}

	type result struct {
		client *Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := g.Connect(context.Background(), sock)
		done <- result{c, err}
	}()

	<-store.entered
	// 加载会话期间被加入新会话
	g.JoinUser(7, ConversationRoom(2))
	close(store.release)

	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	for _, cid := range []int64{1, 2} {
		if !g.OnlineInRoom(ConversationRoom(cid), 7) {
			t.Errorf("socket not in room of conversation %d", cid)
		}
	}
}

func TestConnectLoadFailureUnregisters(t *testing.T) {
	store := &gatedStore{
		memberStore: memberStore{},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
		err:         errors.New("db down"),
	}
	close(store.release)
	g := NewGateway(store)

	if _, err := g.Connect(context.Background(), &fakeSocket{id: "s1", userID: 7}); err == nil {
		t.Fatal("expected load error")
	}
	if g.IsOnline(7) {
		t.Fatal("failed connect left the user online")
	}
	if g.OnlineInRoom(UserRoom(7), 7) {
		t.Fatal("failed connect left the user room joined")
	}
}
