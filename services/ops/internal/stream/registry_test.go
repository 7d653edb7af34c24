package stream

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder 记录写入的帧，可模拟断线
type recorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	broken bool
	// 非空时写入阻塞到通道关闭，模拟停止读取的对端
	stall chan struct{}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.stall != nil {
		<-r.stall
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		return 0, errors.New("broken pipe")
	}
	r.writes++
	return r.buf.Write(p)
}

func (r *recorder) Flush() error { return nil }

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *recorder) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *recorder) Break() {
	r.mu.Lock()
	r.broken = true
	r.mu.Unlock()
}

func newConn(t *testing.T, reg *Registry, userID int64) (*Conn, *recorder) {
	t.Helper()
	return serveConn(t, reg, userID, &recorder{})
}

// serveConn 登记连接并在后台写出
func serveConn(t *testing.T, reg *Registry, userID int64, rec *recorder) (*Conn, *recorder) {
	t.Helper()
	c := NewConn(userID, rec)
	if err := reg.Add(userID, c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	go reg.Serve(userID, c)
	return c, rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastFrameFormat(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(0))
	_, rec1 := newConn(t, reg, 1)
	_, rec2 := newConn(t, reg, 1)
	_, other := newConn(t, reg, 2)

	n := reg.Broadcast(1, "notification:new", map[string]any{"id": 7})
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	want := "event: notification:new\ndata: {\"id\":7}\n\n"
	for _, rec := range []*recorder{rec1, rec2} {
		waitFor(t, func() bool { return rec.Writes() == 1 })
		if got := rec.String(); got != want {
			t.Errorf("frame = %q, want %q", got, want)
		}
	}
	if other.Writes() != 0 {
		t.Error("other user received a frame")
	}
}

func TestBroadcastWithoutConnections(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(0))
	if n := reg.Broadcast(42, "message:new", map[string]any{}); n != 0 {
		t.Fatalf("delivered = %d", n)
	}
	if reg.UserCount() != 0 {
		t.Fatal("broadcast must not create entries")
	}
}

func TestFailedWriterIsPruned(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(0))
	bad, badRec := newConn(t, reg, 1)
	_, goodRec := newConn(t, reg, 1)
	badRec.Break()

	reg.Broadcast(1, "ping", 1)
	waitFor(t, func() bool { return reg.ConnectionCount(1) == 1 })
	if bad.State() != StateClosed {
		t.Fatalf("failed conn state = %s", bad.State())
	}
	waitFor(t, func() bool { return strings.Contains(goodRec.String(), "event: ping") })
}

func TestStalledPeerDoesNotBlockBroadcast(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(0))
	stalled := &recorder{stall: make(chan struct{})}
	defer close(stalled.stall)
	slow, _ := serveConn(t, reg, 1, stalled)
	_, fast := newConn(t, reg, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultQueueSize+2; i++ {
			reg.Broadcast(1, "tick", i)
		}
		reg.Broadcast(2, "tick", 0)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a stalled peer")
	}

	if reg.ConnectionCount(1) != 0 {
		t.Fatalf("stalled conn still registered, count = %d", reg.ConnectionCount(1))
	}
	if slow.State() != StateClosed {
		t.Fatalf("stalled conn state = %s", slow.State())
	}
	waitFor(t, func() bool { return fast.Writes() == 1 })
}

func TestCloseAllWithStalledPeer(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(0))
	stalled := &recorder{stall: make(chan struct{})}
	defer close(stalled.stall)
	c, _ := serveConn(t, reg, 1, stalled)
	reg.Broadcast(1, "tick", 1)

	done := make(chan struct{})
	go func() {
		reg.CloseAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CloseAll blocked on a stalled writer")
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %s", c.State())
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(time.Hour))
	c, _ := newConn(t, reg, 5)

	reg.Remove(5, c)
	reg.Remove(5, c)

	if reg.ConnectionCount(5) != 0 || reg.UserCount() != 0 {
		t.Fatal("user entry should be deleted once empty")
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %s", c.State())
	}
	if err := c.WriteEvent("x", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close = %v", err)
	}
}

func TestConnStateTransitions(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(0))
	c := NewConn(1, &recorder{})
	if c.State() != StateConnecting {
		t.Fatalf("new conn state = %s", c.State())
	}
	if err := reg.Add(1, c); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateOpen {
		t.Fatalf("added conn state = %s", c.State())
	}
	if err := reg.Add(1, c); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Add = %v", err)
	}
	reg.Remove(1, c)
	if err := reg.Add(1, c); err == nil {
		t.Fatal("closed conn must not reopen")
	}
}

func TestHeartbeat(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(10 * time.Millisecond))
	c, rec := newConn(t, reg, 3)

	waitFor(t, func() bool { return strings.Contains(rec.String(), ": heartbeat\n\n") })

	rec.Break()
	waitFor(t, func() bool { return reg.ConnectionCount(3) == 0 })
	<-c.Done()
}

func TestCloseAll(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(time.Hour))
	a, _ := newConn(t, reg, 1)
	b, _ := newConn(t, reg, 2)

	reg.CloseAll()

	if reg.TotalConnections() != 0 {
		t.Fatalf("total = %d", reg.TotalConnections())
	}
	for _, c := range []*Conn{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatal("connection not closed")
		}
	}
	if err := reg.Add(9, NewConn(9, &recorder{})); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("Add after CloseAll = %v", err)
	}
}

func TestConcurrentBroadcastAndRemove(t *testing.T) {
	reg := NewRegistry(WithHeartbeatInterval(0))
	conns := make([]*Conn, 0, 20)
	for i := 0; i < 20; i++ {
		c, _ := newConn(t, reg, 1)
		conns = append(conns, c)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				reg.Broadcast(1, "tick", j)
			}
		}()
	}
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			reg.Remove(1, c)
		}(c)
	}
	wg.Wait()

	if reg.ConnectionCount(1) != 0 {
		t.Fatalf("count = %d", reg.ConnectionCount(1))
	}
}
