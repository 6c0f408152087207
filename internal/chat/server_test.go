package chat

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/parleychat/parley/internal/network/acceptor"
	"github.com/parleychat/parley/internal/network/framer"
)

const testRecvTimeout = 3 * time.Second

// testClient 是直接基于帧编解码的裸 TCP 测试客户端。
type testClient struct {
	t    *testing.T
	conn net.Conn
	f    framer.Framer
}

func dialTestClient(t *testing.T, addr net.Addr) *testClient {
	conn, err := net.DialTimeout(addr.Network(), addr.String(), testRecvTimeout)
	if err != nil {
		t.Fatalf("dial chat server: %v", err)
	}
	return &testClient{
		t:    t,
		conn: conn,
		f:    framer.NewLengthPrefixedFramer(0),
	}
}

func (c *testClient) send(text string) {
	c.t.Helper()
	if err := c.f.WriteFrame(c.conn, []byte(text)); err != nil {
		c.t.Fatalf("write frame: %v", err)
	}
}

func (c *testClient) recv() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(testRecvTimeout))
	payload, err := c.f.ReadFrame(c.conn)
	if err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return string(payload)
}

// recvErr 读取一帧，预期失败（对端已关闭连接）。
func (c *testClient) recvErr() error {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(testRecvTimeout))
	_, err := c.f.ReadFrame(c.conn)
	return err
}

func (c *testClient) close() {
	_ = c.conn.Close()
}

// login 完成欢迎语接收与用户名登录。
func (c *testClient) login(s *ServerSuite, name string) {
	s.Equal(msgWelcome, c.recv())
	c.send(name)
	s.Equal(msgLoginSuccess, c.recv())
	s.Equal(msgMenu, c.recv())
}

type ServerSuite struct {
	suite.Suite

	server *Server
	acc    acceptor.Acceptor
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *ServerSuite) SetupTest() {
	s.server = NewServer()

	acc, err := acceptor.NewTCPAcceptor("127.0.0.1:0", framer.NewLengthPrefixedFramer(0), s.server.Registry())
	s.Require().NoError(err)
	s.acc = acc

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_ = acc.Serve(ctx, s.server)
	}()
}

func (s *ServerSuite) TearDownTest() {
	s.cancel()
	_ = s.acc.Close()
	select {
	case <-s.done:
	case <-time.After(testRecvTimeout):
		s.Fail("acceptor did not shut down")
	}
	s.server.Close()
}

func (s *ServerSuite) TestLoginAndMenu() {
	c := dialTestClient(s.T(), s.acc.Addr())
	defer c.close()

	c.login(s, "alice")

	// 单人时列目录只得到提示。
	c.send("1")
	s.Equal(msgSingleUserWarning, c.recv())
	s.Equal(msgMenu, c.recv())
}

func (s *ServerSuite) TestDuplicateUsernameAcrossConnections() {
	a := dialTestClient(s.T(), s.acc.Addr())
	defer a.close()
	a.login(s, "alice")

	b := dialTestClient(s.T(), s.acc.Addr())
	defer b.close()
	s.Equal(msgWelcome, b.recv())
	b.send("alice")
	s.Equal(msgNameTaken, b.recv())
	b.send("bob")
	s.Equal(msgLoginSuccess, b.recv())
	s.Equal(msgMenu, b.recv())
}

func (s *ServerSuite) TestPrivateChatRoundTrip() {
	a := dialTestClient(s.T(), s.acc.Addr())
	defer a.close()
	a.login(s, "alice")

	b := dialTestClient(s.T(), s.acc.Addr())
	defer b.close()
	b.login(s, "bob")

	// alice 发起私聊并选择 bob。
	a.send("2")
	s.Contains(a.recv(), "bob")
	s.Equal(msgChatRequestPrompt, a.recv())
	a.send("bob")
	s.Equal(msgChatRequest("alice"), b.recv())
	s.Equal(msgRequestWaiting("bob"), a.recv())

	// bob 同意，双方进入私聊。
	b.send("y")
	s.Equal(msgChatHeader("alice"), b.recv())
	s.Equal(TokenInChat("alice"), b.recv())
	s.Equal(msgChatHeader("bob"), a.recv())
	s.Equal(TokenInChat("bob"), a.recv())

	// 消息只转发给对端。
	a.send("hello")
	s.Equal("alice: hello", b.recv())
	b.send("hi there")
	s.Equal("bob: hi there", a.recv())

	// 任一方 Quit，双方回到菜单。
	a.send("Quit")
	s.Equal(msgChatEnded, a.recv())
	s.Equal(TokenNotChat, a.recv())
	s.Equal(msgMenu, a.recv())
	s.Equal(msgChatEnded, b.recv())
	s.Equal(TokenNotChat, b.recv())
	s.Equal(msgMenu, b.recv())
}

func (s *ServerSuite) TestAbruptDisconnectNotifiesPeer() {
	a := dialTestClient(s.T(), s.acc.Addr())
	a.login(s, "alice")

	b := dialTestClient(s.T(), s.acc.Addr())
	defer b.close()
	b.login(s, "bob")

	a.send("2")
	a.recv() // 目录
	a.recv() // 输入目标提示
	a.send("bob")
	s.Equal(msgChatRequest("alice"), b.recv())
	a.recv() // 等待提示
	b.send("y")
	b.recv() // 标题
	b.recv() // IN_CHAT
	a.recv()
	a.recv()

	// alice 直接断开：bob 收到会话结束通知并回到菜单。
	a.close()
	s.Equal(msgChatEnded, b.recv())
	s.Equal(TokenNotChat, b.recv())
	s.Equal(msgMenu, b.recv())

	// 注册表完成清理，用户名可复用。
	s.Eventually(func() bool {
		return s.server.Registry().AuthedCount() == 1
	}, testRecvTimeout, 10*time.Millisecond)

	c := dialTestClient(s.T(), s.acc.Addr())
	defer c.close()
	c.login(s, "alice")
}

func (s *ServerSuite) TestExitClosesConnection() {
	c := dialTestClient(s.T(), s.acc.Addr())
	defer c.close()
	c.login(s, "alice")

	c.send("4")
	s.Equal(TokenForceExit, c.recv())
	s.Error(c.recvErr())

	s.Eventually(func() bool {
		return s.server.Registry().Count() == 0
	}, testRecvTimeout, 10*time.Millisecond)
}

func (s *ServerSuite) TestGroupChatBroadcast() {
	clients := make(map[string]*testClient, 3)
	for _, name := range []string{"alice", "bob", "carol"} {
		c := dialTestClient(s.T(), s.acc.Addr())
		defer c.close()
		c.login(s, name)
		clients[name] = c
	}

	clients["alice"].send("3")
	s.Equal(msgGroupChatHeader, clients["alice"].recv())
	s.Equal(msgGroupChatJoin("alice"), clients["alice"].recv())

	clients["bob"].send("3")
	s.Equal(msgGroupChatHeader, clients["bob"].recv())
	s.Equal(msgGroupChatJoin("bob"), clients["bob"].recv())
	s.Equal(msgGroupChatJoin("bob"), clients["alice"].recv())

	// 群聊消息广播给除发送者外的所有群成员；carol 未入群收不到。
	clients["alice"].send("hi all")
	s.Equal("alice: hi all", clients["bob"].recv())

	clients["bob"].send("Quit")
	s.Equal(msgMenu, clients["bob"].recv())

	clients["carol"].send("3")
	s.Equal(msgGroupChatHeader, clients["carol"].recv())
	s.Equal(msgGroupChatJoin("carol"), clients["carol"].recv())
	s.Equal(msgGroupChatJoin("carol"), clients["alice"].recv())
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}
