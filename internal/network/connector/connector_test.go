package connector

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	network "github.com/parleychat/parley/internal/network"
	"github.com/parleychat/parley/internal/network/framer"
)

const testTimeout = 3 * time.Second

// captureHandler 记录各回调的触发情况。
type captureHandler struct {
	mu       sync.Mutex
	received int
	closed   int

	firstMsg  chan struct{}
	firstOnce sync.Once
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{firstMsg: make(chan struct{})}
}

func (h *captureHandler) OnConnected(ClientConn) {}

func (h *captureHandler) OnMessage(_ ClientConn, payload []byte) {
	h.mu.Lock()
	h.received++
	h.mu.Unlock()
	h.firstOnce.Do(func() { close(h.firstMsg) })
}

func (h *captureHandler) OnClosed(ClientConn, error) {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
}

func (h *captureHandler) OnError(ClientConn, network.Stage, error) {}

func (h *captureHandler) closedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type ConnectorSuite struct {
	suite.Suite

	ln net.Listener
}

func (s *ConnectorSuite) SetupTest() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.ln = ln
}

func (s *ConnectorSuite) TearDownTest() {
	_ = s.ln.Close()
}

// serveFrames 对每个接入连接持续写出帧，直到对端关闭。
func (s *ConnectorSuite) serveFrames() {
	f := framer.NewLengthPrefixedFramer(0)
	go func() {
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				for {
					if err := f.WriteFrame(conn, []byte("tick")); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}

// 关闭与接收并发时不得向已关闭的 recvChan 投递。
func (s *ConnectorSuite) TestCloseDuringReceive() {
	s.serveFrames()

	h := newCaptureHandler()
	d := NewTCPConnector(Config{Framer: framer.NewLengthPrefixedFramer(0)})

	conn, err := d.Dial(context.Background(), s.ln.Addr().String(), h)
	s.Require().NoError(err)

	select {
	case <-h.firstMsg:
	case <-time.After(testTimeout):
		s.FailNow("no message received")
	}

	// 对端仍在持续写入时关闭连接。
	s.NoError(conn.Close())

	// Recv 通道被排空后正常关闭，而不是触发投递 panic。
	drained := false
	timeout := time.After(testTimeout)
	for !drained {
		select {
		case _, ok := <-conn.Recv():
			drained = !ok
		case <-timeout:
			s.FailNow("recv channel not closed after Close")
		}
	}

	// OnClosed 只回调一次。
	s.Eventually(func() bool { return h.closedCount() == 1 }, testTimeout, 10*time.Millisecond)
	s.NoError(conn.Close())
	s.Equal(1, h.closedCount())
}

func (s *ConnectorSuite) TestDialFailure() {
	addr := s.ln.Addr().String()
	s.Require().NoError(s.ln.Close())

	h := newCaptureHandler()
	d := NewTCPConnector(Config{Framer: framer.NewLengthPrefixedFramer(0)})

	_, err := d.Dial(context.Background(), addr, h)
	s.Error(err)
	s.Zero(h.closedCount())
}

func TestConnector(t *testing.T) {
	suite.Run(t, new(ConnectorSuite))
}
