package framer

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/parleychat/parley/pkg/util/merr"
)

type FramerSuite struct {
	suite.Suite

	framer *LengthPrefixedFramer
}

func (s *FramerSuite) SetupTest() {
	s.framer = NewLengthPrefixedFramer(0)
}

func (s *FramerSuite) TestRoundTrip() {
	var buf bytes.Buffer

	err := s.framer.WriteFrame(&buf, []byte("hello"))
	s.NoError(err)

	payload, err := s.framer.ReadFrame(&buf)
	s.NoError(err)
	s.Equal("hello", string(payload))
}

func (s *FramerSuite) TestEmptyFrame() {
	var buf bytes.Buffer

	err := s.framer.WriteFrame(&buf, nil)
	s.NoError(err)
	s.Equal(4, buf.Len())

	payload, err := s.framer.ReadFrame(&buf)
	s.NoError(err)
	s.Empty(payload)
}

func (s *FramerSuite) TestMultipleFrames() {
	var buf bytes.Buffer

	messages := []string{"alice", "1", "bob", "Hi bob, how are you?"}
	for _, msg := range messages {
		s.NoError(s.framer.WriteFrame(&buf, []byte(msg)))
	}

	for _, want := range messages {
		payload, err := s.framer.ReadFrame(&buf)
		s.NoError(err)
		s.Equal(want, string(payload))
	}
}

func (s *FramerSuite) TestWriteTooLarge() {
	f := NewLengthPrefixedFramer(8)
	var buf bytes.Buffer

	err := f.WriteFrame(&buf, []byte("way too long for this framer"))
	s.Error(err)
	s.ErrorIs(err, merr.ErrFrameTooLarge)
	s.Zero(buf.Len())
}

func (s *FramerSuite) TestReadTooLarge() {
	f := NewLengthPrefixedFramer(8)

	// 手工构造一个声称负载超限的帧头。
	raw := []byte{0x00, 0x00, 0x01, 0x00}
	_, err := f.ReadFrame(bytes.NewReader(raw))
	s.Error(err)
	s.ErrorIs(err, merr.ErrFrameTooLarge)
}

func (s *FramerSuite) TestTruncatedBody() {
	var buf bytes.Buffer
	s.NoError(s.framer.WriteFrame(&buf, []byte("hello")))

	// 截断最后一个字节，模拟对端中途断开。
	truncated := buf.Bytes()[:buf.Len()-1]
	_, err := s.framer.ReadFrame(bytes.NewReader(truncated))
	s.Error(err)
	s.ErrorIs(err, io.ErrUnexpectedEOF)
}

func (s *FramerSuite) TestTruncatedHeader() {
	_, err := s.framer.ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	s.Error(err)
}

func TestFramer(t *testing.T) {
	suite.Run(t, new(FramerSuite))
}
