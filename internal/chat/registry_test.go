package chat

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/parleychat/parley/pkg/util/merr"
)

type RegistrySuite struct {
	suite.Suite

	registry *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry()
}

// join 注册一个新会话，可选地绑定用户名。
func (s *RegistrySuite) join(id uint64, name string) *fakeSession {
	sess := newFakeSession(id)
	s.Require().NoError(s.registry.Register(sess))
	if name != "" {
		s.Require().NoError(s.registry.Bind(id, name))
	}
	return sess
}

func (s *RegistrySuite) TestRegisterDuplicate() {
	s.join(1, "")
	err := s.registry.Register(newFakeSession(1))
	s.ErrorIs(err, merr.ErrSessionDuplicate)
	s.Equal(1, s.registry.Count())
}

func (s *RegistrySuite) TestBindUniqueness() {
	s.join(1, "alice")
	s.join(2, "")

	err := s.registry.Bind(2, "alice")
	s.ErrorIs(err, merr.ErrNameTaken)

	// 首个持有者不受影响。
	view, ok := s.registry.View(1)
	s.True(ok)
	s.Equal("alice", view.Username)
	s.True(view.Authenticated)

	// 第二个会话仍未登录，换名后成功。
	view, ok = s.registry.View(2)
	s.True(ok)
	s.False(view.Authenticated)
	s.NoError(s.registry.Bind(2, "bob"))
}

func (s *RegistrySuite) TestBindEmptyName() {
	s.join(1, "")
	s.ErrorIs(s.registry.Bind(1, ""), merr.ErrNameEmpty)

	// 用户名不做 trim，空白串是合法的。
	s.NoError(s.registry.Bind(1, " "))
}

func (s *RegistrySuite) TestPairSymmetry() {
	s.join(1, "alice")
	s.join(2, "bob")

	s.True(s.registry.StartRequesting(1))
	req, tgt, err := s.registry.Pair(1, 2)
	s.NoError(err)

	s.Equal(uint64(2), req.PeerID)
	s.Equal(uint64(1), tgt.PeerID)
	s.Equal(StateRequesting, req.State)
	s.Equal(StateRequested, tgt.State)
	s.Equal("chatting with bob", req.Availability)
	s.Equal("chatting with alice", tgt.Availability)
}

func (s *RegistrySuite) TestPairRejectsBusyTarget() {
	s.join(1, "alice")
	s.join(2, "bob")
	s.join(3, "carol")

	s.True(s.registry.StartRequesting(1))
	_, _, err := s.registry.Pair(1, 2)
	s.Require().NoError(err)

	// bob 正处于 Requested，carol 的请求应被拒绝。
	s.True(s.registry.StartRequesting(3))
	_, _, err = s.registry.Pair(3, 2)
	s.ErrorIs(err, merr.ErrTargetUnavailable)

	// bob 的原有关联不受影响。
	view, _ := s.registry.View(2)
	s.Equal(uint64(1), view.PeerID)
}

func (s *RegistrySuite) TestPairRejectsSelf() {
	s.join(1, "alice")
	s.join(2, "bob")

	s.True(s.registry.StartRequesting(1))
	_, _, err := s.registry.Pair(1, 1)
	s.ErrorIs(err, merr.ErrTargetUnavailable)
}

func (s *RegistrySuite) TestAcceptAndUnpair() {
	s.join(1, "alice")
	s.join(2, "bob")

	s.registry.StartRequesting(1)
	_, _, err := s.registry.Pair(1, 2)
	s.Require().NoError(err)

	self, peer, err := s.registry.Accept(2)
	s.NoError(err)
	s.Equal(StateChatting, self.State)
	s.Equal(StateChatting, peer.State)

	// 任意一方解除，双方对称回到 Idle。
	self, peer, ok := s.registry.Unpair(1)
	s.True(ok)
	s.Equal(uint64(2), self.PeerID)
	s.Equal(uint64(1), peer.PeerID)

	for _, id := range []uint64{1, 2} {
		view, _ := s.registry.View(id)
		s.Equal(StateIdle, view.State)
		s.Zero(view.PeerID)
	}
}

func (s *RegistrySuite) TestRemoveIdempotent() {
	s.join(1, "alice")

	_, _, existed := s.registry.Remove(1)
	s.True(existed)

	_, _, existed = s.registry.Remove(1)
	s.False(existed)

	s.ErrorIs(s.registry.Unregister(1), merr.ErrSessionNotFound)
	s.Equal(0, s.registry.Count())
	s.Equal(0, s.registry.AuthedCount())
}

func (s *RegistrySuite) TestRemoveUnlinksPeer() {
	s.join(1, "alice")
	s.join(2, "bob")

	s.registry.StartRequesting(1)
	_, _, err := s.registry.Pair(1, 2)
	s.Require().NoError(err)
	_, _, err = s.registry.Accept(2)
	s.Require().NoError(err)

	removed, peer, existed := s.registry.Remove(1)
	s.True(existed)
	s.Equal("alice", removed.Username)
	s.Require().NotNil(peer)
	s.Equal(uint64(2), peer.ID)

	// 幸存的一方被迁回 Idle，没有悬挂的对端引用。
	view, ok := s.registry.View(2)
	s.True(ok)
	s.Equal(StateIdle, view.State)
	s.Zero(view.PeerID)

	// 用户名立即可以重新使用。
	s.join(3, "alice")
}

func (s *RegistrySuite) TestSnapshotOrder() {
	s.join(1, "carol")
	s.join(2, "alice")
	s.join(3, "bob")

	names := func() []string {
		var out []string
		for _, v := range s.registry.Snapshot() {
			out = append(out, v.Username)
		}
		return out
	}

	// 目录按绑定顺序排列。
	s.Equal([]string{"carol", "alice", "bob"}, names())

	s.registry.Remove(2)
	s.Equal([]string{"carol", "bob"}, names())
}

func (s *RegistrySuite) TestGroupMembership() {
	s.join(1, "alice")
	s.join(2, "bob")
	s.join(3, "carol")

	for _, id := range []uint64{1, 2} {
		_, ok := s.registry.EnterGroup(id)
		s.True(ok)
	}

	s.ElementsMatch([]uint64{1, 2}, s.registry.GroupMembers())

	_, ok := s.registry.LeaveGroup(1)
	s.True(ok)
	s.ElementsMatch([]uint64{2}, s.registry.GroupMembers())

	// 未登录或非 Idle 的成员不能进入群聊。
	s.join(4, "")
	_, ok = s.registry.EnterGroup(4)
	s.False(ok)
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}
