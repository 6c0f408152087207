package chat

import (
	"context"
	"net"
	"sync"

	"github.com/parleychat/parley/internal/network/session"
)

// fakeSession 是测试用的内存 Session，记录发出的全部文本。
type fakeSession struct {
	id uint64

	mu     sync.Mutex
	sent   []string
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

var _ session.Session = (*fakeSession)(nil)

func newFakeSession(id uint64) *fakeSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeSession{id: id, ctx: ctx, cancel: cancel}
}

func (f *fakeSession) ID() uint64               { return f.id }
func (f *fakeSession) Context() context.Context { return f.ctx }
func (f *fakeSession) RemoteAddr() net.Addr     { return &net.TCPAddr{IP: net.IPv4zero} }
func (f *fakeSession) LocalAddr() net.Addr      { return &net.TCPAddr{IP: net.IPv4zero} }

func (f *fakeSession) Send(payload []byte) error {
	return f.SendText(string(payload))
}

func (f *fakeSession) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return net.ErrClosed
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.cancel()
	}
	return nil
}

func (f *fakeSession) OnConnected()         {}
func (f *fakeSession) OnDisconnected(error) {}

func (f *fakeSession) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
