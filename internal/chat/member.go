package chat

import (
	"github.com/parleychat/parley/internal/network/session"
)

// State 表示一条会话当前所处的会话状态。
//
// 状态约定：
//   - Idle 为初始状态，登录前后都可能处于该状态；
//   - Requesting/Requested/Chatting 为私聊协商与私聊中的三个阶段；
//   - GroupChatting 为群聊状态；
//   - 没有终止状态：会话通过注册表移除结束，而不是通过状态迁移。
type State int

const (
	StateIdle State = iota + 1
	StateRequesting
	StateRequested
	StateChatting
	StateGroupChatting
)

// String 实现 fmt.Stringer，同时作为指标的 state 标签取值。
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRequesting:
		return "Requesting"
	case StateRequested:
		return "Requested"
	case StateChatting:
		return "Chatting"
	case StateGroupChatting:
		return "GroupChatting"
	default:
		return "Unknown"
	}
}

// MemberView 是某个成员在某一时刻的只读快照。
//
// 说明：
//   - 注册表内部的成员记录只能在注册表锁内读写；
//     所有发布到锁外的数据都通过 MemberView 拷贝，避免数据竞争；
//   - PeerID 为 0 表示当前没有关联对端。
type MemberView struct {
	ID            uint64
	Username      string
	Authenticated bool
	State         State
	PeerID        uint64

	// Availability 为用户目录中展示的状态描述，
	// 由 State 和对端用户名推导，仅用于展示，不参与任何解析。
	Availability string
}

// member 为注册表持有的成员记录。
// 只允许在 Registry 的锁内访问。
type member struct {
	id            uint64
	username      string
	authenticated bool
	state         State
	peerID        uint64

	// sess 为该成员对应的网络会话，用于向其发送消息。
	// 引用在注册期间不变，Session 自身的方法是并发安全的。
	sess session.Session
}

func (m *member) view(peerName string) MemberView {
	return MemberView{
		ID:            m.id,
		Username:      m.username,
		Authenticated: m.authenticated,
		State:         m.state,
		PeerID:        m.peerID,
		Availability:  availabilityLabel(m.state, peerName),
	}
}

// availabilityLabel 根据状态和对端用户名推导展示用的状态描述。
func availabilityLabel(s State, peerName string) string {
	switch s {
	case StateGroupChatting:
		return "In group chat"
	case StateRequesting, StateRequested, StateChatting:
		// 选定对端之前（正在输入目标用户名）仍视为可用。
		if peerName != "" {
			return "chatting with " + peerName
		}
		return "Available"
	default:
		return "Available"
	}
}
