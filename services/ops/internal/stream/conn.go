package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State 连接状态
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ErrClosed 向已关闭连接写入
var ErrClosed = errors.New("stream: connection closed")

// ErrQueueFull 对端读取过慢，发送队列已满
var ErrQueueFull = errors.New("stream: send queue full")

// DefaultQueueSize 每条连接的待发送帧上限
const DefaultQueueSize = 64

// FrameWriter 推送通道的底层写入端，*bufio.Writer 即满足
type FrameWriter interface {
	io.Writer
	Flush() error
}

// Conn 单条 SSE 连接
//
// 推送方只把帧放入有界队列，真正的写出在 Serve 所在的协程中完成，
// 对端停止读取时阻塞的只有该协程。
type Conn struct {
	id     string
	userID int64

	w     FrameWriter
	out   chan []byte
	state atomic.Int32

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn 创建处于 CONNECTING 状态的连接
func NewConn(userID int64, w FrameWriter) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		w:      w,
		out:    make(chan []byte, DefaultQueueSize),
		done:   make(chan struct{}),
	}
}

// ID 连接ID
func (c *Conn) ID() string { return c.id }

// UserID 所属用户
func (c *Conn) UserID() int64 { return c.userID }

// State 当前状态
func (c *Conn) State() State { return State(c.state.Load()) }

// Done 连接关闭后可读
func (c *Conn) Done() <-chan struct{} { return c.done }

// open CONNECTING → OPEN，只成功一次
func (c *Conn) open() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Close 关闭连接，可重复调用，不等待写出协程
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}

// WriteEvent 将事件帧放入发送队列
func (c *Conn) WriteEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return c.enqueue(encodeFrame(event, data))
}

// writeNow 不经队列直接写出，只能在 Serve 所在协程调用
func (c *Conn) writeNow(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return c.flush(encodeFrame(event, data))
}

// enqueue 非阻塞入队
func (c *Conn) enqueue(frame []byte) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.out <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Serve 在当前协程写出队列中的帧并按间隔发送心跳，直到连接关闭或写入失败
func (c *Conn) Serve(heartbeat time.Duration) error {
	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-c.done:
			return nil
		case frame := <-c.out:
			if err := c.flush(frame); err != nil {
				return err
			}
		case <-tick:
			if err := c.flush(heartbeatFrame); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) flush(frame []byte) error {
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	return c.w.Flush()
}

var heartbeatFrame = []byte(": heartbeat\n\n")

// encodeFrame event: <name>\ndata: <json>\n\n
func encodeFrame(event string, data []byte) []byte {
	buf := make([]byte, 0, len(event)+len(data)+16)
	buf = append(buf, "event: "...)
	buf = append(buf, event...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	return buf
}
