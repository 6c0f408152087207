package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/parleychat/parley/internal/network/framer"
	"github.com/parleychat/parley/pkg/util/merr"
)

type SessionSuite struct {
	suite.Suite
}

func (s *SessionSuite) TestBaseSessionSendRoundTrip() {
	server, client := net.Pipe()
	defer client.Close()

	f := framer.NewLengthPrefixedFramer(0)
	sess := NewBaseSession(context.Background(), 1, server, f)
	defer sess.Close()

	s.Equal(uint64(1), sess.ID())

	s.Require().NoError(sess.SendText("hello"))
	s.Require().NoError(sess.SendText("world"))

	// 两帧按投递顺序到达对端。
	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	payload, err := f.ReadFrame(client)
	s.Require().NoError(err)
	s.Equal("hello", string(payload))

	payload, err = f.ReadFrame(client)
	s.Require().NoError(err)
	s.Equal("world", string(payload))
}

func (s *SessionSuite) TestSendAfterClose() {
	server, client := net.Pipe()
	defer client.Close()

	sess := NewBaseSession(context.Background(), 2, server, framer.NewLengthPrefixedFramer(0))
	s.Require().NoError(sess.Close())

	err := sess.SendText("late")
	s.ErrorIs(err, merr.ErrConnectionLost)

	// Close 幂等。
	s.NoError(sess.Close())
}

func (s *SessionSuite) TestManagerRegisterUnregister() {
	m := NewBaseSessionManager()

	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := NewBaseSession(context.Background(), 7, server, framer.NewLengthPrefixedFramer(0))
	defer sess.Close()

	s.Require().NoError(m.Register(sess))
	s.ErrorIs(m.Register(sess), merr.ErrSessionDuplicate)
	s.Equal(1, m.Count())

	got, ok := m.Get(7)
	s.True(ok)
	s.Equal(sess.ID(), got.ID())

	var visited []uint64
	m.Range(func(sess Session) bool {
		visited = append(visited, sess.ID())
		return true
	})
	s.Equal([]uint64{7}, visited)

	s.NoError(m.Unregister(7))
	s.ErrorIs(m.Unregister(7), merr.ErrSessionNotFound)
	s.Equal(0, m.Count())
}

func TestSession(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}
