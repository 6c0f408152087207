package session

import (
	"context"
	"net"
	"sync"

	"github.com/parleychat/parley/internal/network/framer"
	"github.com/parleychat/parley/internal/pool/ringbuffer"
	"github.com/parleychat/parley/pkg/metrics"
	"github.com/parleychat/parley/pkg/util/merr"
)

// BaseSession 提供了 Session 接口的基础实现。
//
// 设计目标：
//   - 封装最小但完整的会话能力：ID、Context、地址信息、发送与关闭；
//   - 默认实现 OnConnected/OnDisconnected 为空，方便业务在自定义 Session 中嵌入并覆写。
type BaseSession struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn   net.Conn
	framer framer.Framer

	remoteAddr net.Addr
	localAddr  net.Addr

	// sendBuf 为当前会话的发送缓冲区（字节级环形队列）。
	//   - 用于暂存待发送的完整帧字节，统一从该缓冲区刷到底层连接；
	//   - 可以看作“发送队列”的底层实现。
	sendBuf *ringbuffer.RingBuffer

	// sendQueue 为待发送负载的队列。
	//   - Send 仅负责将负载投递到该队列；
	//   - 独立的发送协程从队列中取出负载，封帧到 sendBuf 并刷到底层连接。
	sendQueue chan []byte

	closeOnce sync.Once
}

// 确保 BaseSession 实现了 Session 接口。
var _ Session = (*BaseSession)(nil)

// defaultSendQueueSize 为每个会话的发送队列容量。
const defaultSendQueueSize = 1024

// NewBaseSession 创建一个基于 net.Conn 的基础 Session 实例。
//
// 参数：
//   - parent：会话所属的上层上下文（例如 Acceptor 的 Serve ctx）；若为 nil，则使用 context.Background()；
//   - id    ：会话 ID，应在框架或调用侧保证全局唯一；
//   - conn  ：底层网络连接；
//   - f     ：用于该连接的 Framer。
func NewBaseSession(parent context.Context, id uint64, conn net.Conn, f framer.Framer) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &BaseSession{
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		framer:     f,
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		sendBuf:    ringbuffer.Get(),
	}

	// 初始化发送队列及发送协程。
	s.sendQueue = make(chan []byte, defaultSendQueueSize)
	go s.sendLoop()

	return s
}

// ID 实现 Session.ID。
func (s *BaseSession) ID() uint64 {
	return s.id
}

// Context 实现 Session.Context。
func (s *BaseSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *BaseSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// LocalAddr 实现 Session.LocalAddr。
func (s *BaseSession) LocalAddr() net.Addr {
	return s.localAddr
}

// Send 实现 Session.Send。
//
// 内部仅将负载投递到会话级发送队列，由独立的发送协程按顺序封帧并写入到底层连接。
// 这样可以避免多 goroutine 并发写 conn 导致的报文交叉。
// 队列已满时立即返回错误，避免一个写入缓慢的会话拖住群发协程。
func (s *BaseSession) Send(payload []byte) error {
	// 先判定会话是否已关闭，避免与入队分支竞争。
	select {
	case <-s.ctx.Done():
		metrics.SendFailures.WithLabelValues(metrics.ReasonSessionClose).Inc()
		return merr.WrapErrConnectionLost(s.id)
	default:
	}

	select {
	case s.sendQueue <- payload:
		return nil
	default:
		metrics.SendFailures.WithLabelValues(metrics.ReasonQueueFull).Inc()
		return merr.WrapErrConnectionLost(s.id, "send queue full")
	}
}

// SendText 实现 Session.SendText。
func (s *BaseSession) SendText(text string) error {
	return s.Send([]byte(text))
}

// Close 实现 Session.Close。
func (s *BaseSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// 先取消上下文，再关闭连接。
		if s.cancel != nil {
			s.cancel()
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

// OnConnected 默认实现为空，方便在自定义 Session 中覆写。
func (s *BaseSession) OnConnected() {}

// OnDisconnected 默认实现为空，方便在自定义 Session 中覆写。
func (s *BaseSession) OnDisconnected(error) {}

// sendLoop 为每个会话启动的专职发送协程。
//
// 行为：
//   - 从 sendQueue 中按顺序取出待发送负载；
//   - 先封帧到 sendBuf，再从中分批写入 conn；
//   - 会话关闭后归还 sendBuf 并退出。
func (s *BaseSession) sendLoop() {
	defer func() {
		if s.sendBuf != nil {
			ringbuffer.Put(s.sendBuf)
			s.sendBuf = nil
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case payload := <-s.sendQueue:
			// 发送路径仅在此协程中执行，避免多协程并发写 conn。
			if err := s.framer.WriteFrame(s.sendBuf, payload); err != nil {
				// 封帧失败视为会话异常，取消上下文以触发上层清理。
				if s.cancel != nil {
					s.cancel()
				}
				return
			}

			// 将发送缓冲区中的数据尽可能刷到底层连接。
			if err := s.flushSendBuf(); err != nil {
				if s.cancel != nil {
					s.cancel()
				}
				return
			}
		}
	}
}

// flushSendBuf 将 sendBuf 中的所有字节尽可能写入到底层连接。
//
// 说明：
//   - 使用固定大小的临时缓冲区分批写出；
//   - 对单次 Write 的短写情况进行显式处理，直到当前块完全写出。
func (s *BaseSession) flushSendBuf() error {
	if s.conn == nil {
		return nil
	}

	var tmp [4096]byte

	for s.sendBuf.Buffered() > 0 {
		n, _ := s.sendBuf.Read(tmp[:])
		if n <= 0 {
			break
		}

		written := 0
		for written < n {
			m, err := s.conn.Write(tmp[written:n])
			if err != nil {
				return err
			}
			if m <= 0 {
				return nil
			}
			written += m
		}
	}

	return nil
}
