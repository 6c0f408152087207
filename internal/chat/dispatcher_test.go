package chat

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type DispatcherSuite struct {
	suite.Suite

	registry   *Registry
	dispatcher *Dispatcher
}

func (s *DispatcherSuite) SetupTest() {
	s.registry = NewRegistry()
	s.dispatcher = NewDispatcher(s.registry)
}

func (s *DispatcherSuite) join(id uint64, name string) {
	s.Require().NoError(s.registry.Register(newFakeSession(id)))
	if name != "" {
		effects := s.dispatcher.Dispatch(id, name)
		s.Require().Equal(
			[]Effect{SendTo{id, msgLoginSuccess}, SendTo{id, msgMenu}},
			effects,
		)
	}
}

// sendsTo 过滤出发往指定会话的文本。
func sendsTo(effects []Effect, id uint64) []string {
	var out []string
	for _, e := range effects {
		if st, ok := e.(SendTo); ok && st.ID == id {
			out = append(out, st.Text)
		}
	}
	return out
}

func (s *DispatcherSuite) TestLoginValidation() {
	s.join(1, "alice")

	// 重名会被拒绝并重新提示。
	s.Require().NoError(s.registry.Register(newFakeSession(2)))
	effects := s.dispatcher.Dispatch(2, "alice")
	s.Equal([]Effect{SendTo{2, msgNameTaken}}, effects)

	effects = s.dispatcher.Dispatch(2, "")
	s.Equal([]Effect{SendTo{2, msgNameEmpty}}, effects)

	effects = s.dispatcher.Dispatch(2, "bob")
	s.Equal([]Effect{SendTo{2, msgLoginSuccess}, SendTo{2, msgMenu}}, effects)
}

func (s *DispatcherSuite) TestSingleUserWarning() {
	s.join(1, "alice")

	for _, input := range []string{"1", "2"} {
		effects := s.dispatcher.Dispatch(1, input)
		s.Equal([]Effect{SendTo{1, msgSingleUserWarning}, SendTo{1, msgMenu}}, effects)
	}

	// 仍然处于 Idle。
	view, _ := s.registry.View(1)
	s.Equal(StateIdle, view.State)
}

func (s *DispatcherSuite) TestListUsers() {
	s.join(1, "alice")
	s.join(2, "bob")

	effects := s.dispatcher.Dispatch(1, "1")
	s.Require().Len(effects, 2)

	texts := sendsTo(effects, 1)
	s.Contains(texts[0], "alice")
	s.Contains(texts[0], "bob")
	s.Contains(texts[0], "Available")
	s.Equal(msgMenu, texts[1])
}

func (s *DispatcherSuite) TestInvalidMenuInput() {
	s.join(1, "alice")

	effects := s.dispatcher.Dispatch(1, "5")
	s.Equal([]Effect{SendTo{1, msgGeneralError}, SendTo{1, msgMenu}}, effects)
}

func (s *DispatcherSuite) TestPairingHandshake() {
	s.join(1, "alice")
	s.join(2, "bob")

	// alice 发起私聊：目录 + 输入目标用户名的提示。
	effects := s.dispatcher.Dispatch(1, "2")
	s.Require().Len(effects, 2)
	s.Equal(msgChatRequestPrompt, sendsTo(effects, 1)[1])

	// alice 选择 bob：bob 收到 Y/N 询问，alice 收到等待提示。
	effects = s.dispatcher.Dispatch(1, "bob")
	s.Equal([]string{msgChatRequest("alice")}, sendsTo(effects, 2))
	s.Equal([]string{msgRequestWaiting("bob")}, sendsTo(effects, 1))

	// bob 同意：双方进入私聊，各自收到标题和 IN_CHAT 令牌。
	effects = s.dispatcher.Dispatch(2, "y")
	s.Equal([]string{msgChatHeader("alice"), TokenInChat("alice")}, sendsTo(effects, 2))
	s.Equal([]string{msgChatHeader("bob"), TokenInChat("bob")}, sendsTo(effects, 1))

	for _, id := range []uint64{1, 2} {
		view, _ := s.registry.View(id)
		s.Equal(StateChatting, view.State)
	}
	a, _ := s.registry.View(1)
	b, _ := s.registry.View(2)
	s.Equal(b.ID, a.PeerID)
	s.Equal(a.ID, b.PeerID)
}

func (s *DispatcherSuite) TestPairingRejection() {
	s.join(1, "alice")
	s.join(2, "bob")

	s.dispatcher.Dispatch(1, "2")
	s.dispatcher.Dispatch(1, "bob")

	// bob 拒绝（大小写不敏感）：alice 收到拒绝通知，双方收到菜单。
	effects := s.dispatcher.Dispatch(2, "N")
	s.Equal([]string{msgChatRejected("bob"), msgMenu}, sendsTo(effects, 1))
	s.Equal([]string{msgMenu}, sendsTo(effects, 2))

	for _, id := range []uint64{1, 2} {
		view, _ := s.registry.View(id)
		s.Equal(StateIdle, view.State)
		s.Zero(view.PeerID)
	}
}

func (s *DispatcherSuite) TestInvalidReply() {
	s.join(1, "alice")
	s.join(2, "bob")

	s.dispatcher.Dispatch(1, "2")
	s.dispatcher.Dispatch(1, "bob")

	effects := s.dispatcher.Dispatch(2, "maybe")
	texts := sendsTo(effects, 2)
	s.Require().Len(texts, 2)
	s.Equal(msgGeneralError, texts[0])
	s.Equal(msgChatRequest("alice"), texts[1])

	// 状态不变。
	view, _ := s.registry.View(2)
	s.Equal(StateRequested, view.State)
}

func (s *DispatcherSuite) TestTargetUnavailable() {
	s.join(1, "alice")
	s.join(2, "bob")
	s.join(3, "carol")

	s.dispatcher.Dispatch(1, "2")
	s.dispatcher.Dispatch(1, "bob")
	s.dispatcher.Dispatch(2, "y")

	// bob 已在私聊中，carol 的请求被拒绝并重新提示。
	s.dispatcher.Dispatch(3, "2")
	effects := s.dispatcher.Dispatch(3, "bob")
	s.Equal(
		[]Effect{
			SendTo{3, msgTargetUnavailable("bob")},
			SendTo{3, msgChatRequestPrompt},
		},
		effects,
	)

	// 不存在的用户名同样处理，且保持 Requesting 可以重试。
	effects = s.dispatcher.Dispatch(3, "mallory")
	s.Equal(msgTargetUnavailable("mallory"), sendsTo(effects, 3)[0])
	view, _ := s.registry.View(3)
	s.Equal(StateRequesting, view.State)

	// bob 的私聊关联未被破坏。
	view, _ = s.registry.View(2)
	s.Equal(StateChatting, view.State)
	s.Equal(uint64(1), view.PeerID)
}

func (s *DispatcherSuite) TestChattingForwardsToPeerOnly() {
	s.join(1, "alice")
	s.join(2, "bob")
	s.join(3, "carol")

	s.dispatcher.Dispatch(1, "2")
	s.dispatcher.Dispatch(1, "bob")
	s.dispatcher.Dispatch(2, "y")

	effects := s.dispatcher.Dispatch(1, "hello")
	s.Equal([]Effect{SendTo{2, "alice: hello"}}, effects)
	s.Empty(sendsTo(effects, 3))
}

func (s *DispatcherSuite) TestChattingQuit() {
	s.join(1, "alice")
	s.join(2, "bob")

	s.dispatcher.Dispatch(1, "2")
	s.dispatcher.Dispatch(1, "bob")
	s.dispatcher.Dispatch(2, "y")

	effects := s.dispatcher.Dispatch(1, "Quit")
	s.Equal([]string{msgChatEnded, TokenNotChat, msgMenu}, sendsTo(effects, 1))
	s.Equal([]string{msgChatEnded, TokenNotChat, msgMenu}, sendsTo(effects, 2))

	for _, id := range []uint64{1, 2} {
		view, _ := s.registry.View(id)
		s.Equal(StateIdle, view.State)
		s.Zero(view.PeerID)
	}
}

func (s *DispatcherSuite) TestGroupChat() {
	s.join(1, "alice")
	s.join(2, "bob")
	s.join(3, "carol")

	// 入群：群聊标题 + 对所有群成员（含自己）的加入通知。
	effects := s.dispatcher.Dispatch(1, "3")
	s.Equal(
		[]Effect{
			SendTo{1, msgGroupChatHeader},
			Broadcast{Text: msgGroupChatJoin("alice"), SenderID: 1, IncludeSender: true},
		},
		effects,
	)
	s.dispatcher.Dispatch(2, "3")
	s.dispatcher.Dispatch(3, "3")

	// 群聊消息广播给除发送者外的所有群成员。
	effects = s.dispatcher.Dispatch(1, "hi all")
	s.Equal(
		[]Effect{
			Broadcast{Text: "alice: hi all", SenderID: 1, IncludeSender: false},
		},
		effects,
	)

	// 退出群聊。
	effects = s.dispatcher.Dispatch(1, "Quit")
	s.Equal([]Effect{SendTo{1, msgMenu}}, effects)
	view, _ := s.registry.View(1)
	s.Equal(StateIdle, view.State)
	s.ElementsMatch([]uint64{2, 3}, s.registry.GroupMembers())
}

func (s *DispatcherSuite) TestExitCommand() {
	s.join(1, "alice")

	effects := s.dispatcher.Dispatch(1, "4")
	s.Equal([]Effect{SendTo{1, TokenForceExit}, Close{1}}, effects)
}

func (s *DispatcherSuite) TestDispatchAfterRemoval() {
	s.join(1, "alice")
	s.registry.Remove(1)

	s.Nil(s.dispatcher.Dispatch(1, "1"))
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}
