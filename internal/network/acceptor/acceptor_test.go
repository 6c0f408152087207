package acceptor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/parleychat/parley/internal/network/framer"
	"github.com/parleychat/parley/internal/network/session"
	"github.com/parleychat/parley/pkg/util/merr"
)

const testTimeout = 3 * time.Second

// echoHandler 把收到的每一帧原样回发，所有会话都使用固定的 ID 1，
// 用于验证接入层的注册/去重行为。
type echoHandler struct {
	errs chan error
}

func (h *echoHandler) OnAccept(ctx context.Context, conn net.Conn, f framer.Framer) (session.Session, error) {
	return session.NewBaseSession(ctx, 1, conn, f), nil
}

func (h *echoHandler) OnMessage(sess session.Session, payload []byte) {
	_ = sess.Send(payload)
}

func (h *echoHandler) OnSessionClosed(session.Session, error) {}

func (h *echoHandler) OnError(_ session.Session, err error) {
	select {
	case h.errs <- err:
	default:
	}
}

func (h *echoHandler) OnTimeout(session.Session) error { return nil }

type AcceptorSuite struct {
	suite.Suite
}

// 未提供 SessionManager 时，接入器使用内置的 BaseSessionManager，
// 会话照常注册，重复的会话 ID 会被拒绝。
func (s *AcceptorSuite) TestDefaultSessionManager() {
	f := framer.NewLengthPrefixedFramer(0)
	a, err := NewTCPAcceptor("127.0.0.1:0", f, nil)
	s.Require().NoError(err)

	h := &echoHandler{errs: make(chan error, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Serve(ctx, h)
	}()

	conn, err := net.Dial("tcp", a.Addr().String())
	s.Require().NoError(err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(testTimeout))

	s.Require().NoError(f.WriteFrame(conn, []byte("ping")))
	payload, err := f.ReadFrame(conn)
	s.Require().NoError(err)
	s.Equal("ping", string(payload))

	// 第二条连接复用了同一个会话 ID，应在注册阶段被拒绝。
	dup, err := net.Dial("tcp", a.Addr().String())
	s.Require().NoError(err)
	defer dup.Close()

	select {
	case err := <-h.errs:
		s.ErrorIs(err, merr.ErrSessionDuplicate)
	case <-time.After(testTimeout):
		s.FailNow("timed out waiting for duplicate registration error")
	}

	// 等待 Serve 退出前先关闭客户端连接，否则 readLoop 会阻塞在
	// ReadFrame 上，Serve 的 wg.Wait() 无法返回。
	_ = conn.Close()
	_ = dup.Close()

	cancel()
	s.NoError(a.Close())
	select {
	case <-done:
	case <-time.After(testTimeout):
		s.FailNow("timed out waiting for Serve to exit")
	}
}

func (s *AcceptorSuite) TestNewBaseAcceptorValidation() {
	f := framer.NewLengthPrefixedFramer(0)

	_, err := NewBaseAcceptor(nil, f, nil)
	s.Error(err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	defer ln.Close()

	_, err = NewBaseAcceptor(ln, nil, nil)
	s.Error(err)
}

func TestAcceptor(t *testing.T) {
	suite.Run(t, new(AcceptorSuite))
}
