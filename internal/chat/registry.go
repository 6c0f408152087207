package chat

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/parleychat/parley/internal/network/session"
	"github.com/parleychat/parley/pkg/log"
	"github.com/parleychat/parley/pkg/metrics"
	"github.com/parleychat/parley/pkg/util/merr"
)

// Registry 是全部在线成员的唯一共享目录。
//
// 职责：
//   - 维护 “会话 ID -> 成员记录” 与 “用户名 -> 会话 ID” 两个索引；
//   - 作为 session.SessionManager 接入到 acceptor，
//     连接建立/断开时由接入层自动注册与移除，保证异常断开也会清理；
//   - 提供私聊配对（Pair/Accept/Unpair）等复合迁移，
//     双方字段的修改在同一把锁内完成，保证对端引用的双向一致。
//
// 并发模型：单把互斥锁串行化所有操作；
// 发布到锁外的数据一律为 MemberView 快照拷贝。
type Registry struct {
	mu      sync.Mutex
	members map[uint64]*member
	byName  map[string]uint64

	// roster 记录用户名的绑定顺序，用户目录按该顺序展示。
	roster []string
}

// 确保 Registry 能直接作为接入层的 SessionManager 使用。
var _ session.SessionManager = (*Registry)(nil)

// NewRegistry 创建一个空的 Registry。
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[uint64]*member),
		byName:  make(map[string]uint64),
	}
}

// Register 实现 session.SessionManager.Register。
// 为新连接创建初始成员记录：未登录、Idle。
func (r *Registry) Register(sess session.Session) error {
	if sess == nil {
		return nil
	}
	id := sess.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[id]; exists {
		return merr.WrapErrSessionDuplicate(id)
	}
	r.members[id] = &member{
		id:    id,
		state: StateIdle,
		sess:  sess,
	}
	metrics.SessionsByState.WithLabelValues(StateIdle.String()).Inc()
	return nil
}

// Unregister 实现 session.SessionManager.Unregister。
// 与 Remove 等价但只返回错误；重复调用返回 ErrSessionNotFound。
func (r *Registry) Unregister(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[id]; !exists {
		return merr.WrapErrSessionNotFound(id)
	}
	r.removeLocked(id)
	return nil
}

// Get 实现 session.SessionManager.Get。
func (r *Registry) Get(id uint64) (session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return nil, false
	}
	return m.sess, true
}

// Range 实现 session.SessionManager.Range。
// 遍历前复制一份会话切片，避免在持锁情况下执行用户回调。
func (r *Registry) Range(fn func(sess session.Session) bool) {
	if fn == nil {
		return
	}

	r.mu.Lock()
	snapshot := make([]session.Session, 0, len(r.members))
	for _, m := range r.members {
		snapshot = append(snapshot, m.sess)
	}
	r.mu.Unlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			return
		}
	}
}

// Count 实现 session.SessionManager.Count。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// AuthedCount 返回已登录成员数量。
func (r *Registry) AuthedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// View 返回指定成员的当前快照。
func (r *Registry) View(id uint64) (MemberView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return MemberView{}, false
	}
	return m.view(r.peerNameLocked(m)), true
}

// Bind 将用户名绑定到指定会话并标记其已登录。
//
// 失败场景：
//   - 空用户名 -> ErrNameEmpty；
//   - 已有登录成员持有该用户名（区分大小写）-> ErrNameTaken；
//   - 会话不存在 -> ErrSessionNotFound。
//
// 用户名不做 trim：除空串外任何内容都是合法用户名。
func (r *Registry) Bind(id uint64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return merr.WrapErrSessionNotFound(id)
	}
	if name == "" {
		return merr.WrapErrNameEmpty()
	}
	if _, taken := r.byName[name]; taken {
		return merr.WrapErrNameTaken(name)
	}

	m.username = name
	m.authenticated = true
	r.byName[name] = id
	r.roster = append(r.roster, name)
	metrics.RegisteredUsers.Inc()
	return nil
}

// LookupByUsername 根据用户名查找会话 ID。
func (r *Registry) LookupByUsername(name string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[name]
	return id, ok
}

// Snapshot 返回已登录成员的时间点快照，按用户名绑定顺序排列。
func (r *Registry) Snapshot() []MemberView {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.FilterMap(r.roster, func(name string, _ int) (MemberView, bool) {
		id, ok := r.byName[name]
		if !ok {
			return MemberView{}, false
		}
		m, ok := r.members[id]
		if !ok {
			return MemberView{}, false
		}
		return m.view(r.peerNameLocked(m)), true
	})
}

// StartRequesting 将 Idle 状态的已登录成员迁移到 Requesting。
func (r *Registry) StartRequesting(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok || !m.authenticated || m.state != StateIdle {
		return false
	}
	r.setStateLocked(m, StateRequesting)
	return true
}

// Pair 原子地建立私聊请求的双向关联。
//
// 前置条件（任一不满足则配对失败，两边状态不变）：
//   - 请求方存在且处于 Requesting；
//   - 目标存在、已登录、处于 Idle，且不是请求方自身。
//
// 成功后：双方 peer 互指，目标 -> Requested，请求方保持 Requesting。
// 中途任何一方掉线（记录已不存在）都会让配对失败，
// 不会留下悬挂的对端引用。
func (r *Registry) Pair(requesterID, targetID uint64) (requester, target MemberView, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.members[requesterID]
	if !ok {
		return MemberView{}, MemberView{}, merr.WrapErrSessionNotFound(requesterID)
	}
	tgt, ok := r.members[targetID]
	if !ok {
		return MemberView{}, MemberView{}, merr.WrapErrSessionNotFound(targetID)
	}
	if req.state != StateRequesting {
		return MemberView{}, MemberView{}, merr.WrapErrTargetUnavailable(tgt.username, "requester not in requesting state")
	}
	if targetID == requesterID || !tgt.authenticated || tgt.state != StateIdle {
		return MemberView{}, MemberView{}, merr.WrapErrTargetUnavailable(tgt.username)
	}

	req.peerID = targetID
	tgt.peerID = requesterID
	r.setStateLocked(tgt, StateRequested)

	log.Info("chat request paired",
		zap.String("requester", req.username),
		zap.String("target", tgt.username))

	return req.view(tgt.username), tgt.view(req.username), nil
}

// Accept 确认私聊请求：双方一起迁移到 Chatting。
// id 为被请求方（Requested 状态）的会话 ID。
func (r *Registry) Accept(id uint64) (self, peer MemberView, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return MemberView{}, MemberView{}, merr.WrapErrSessionNotFound(id)
	}
	p, ok := r.members[m.peerID]
	if !ok || m.state != StateRequested {
		return MemberView{}, MemberView{}, merr.WrapErrPeerGone(m.peerID)
	}

	r.setStateLocked(m, StateChatting)
	r.setStateLocked(p, StateChatting)

	log.Info("private chat started",
		zap.String("user", m.username),
		zap.String("peer", p.username))

	return m.view(p.username), p.view(m.username), nil
}

// Unpair 对称地解除一对成员的关联，双方回到 Idle。
//
// 适用于：拒绝请求、任意一方发送 "Quit"、一方断线后的清理。
// 返回解除前双方的快照；当 id 不存在或没有对端时 ok 为 false。
func (r *Registry) Unpair(id uint64) (self, peer MemberView, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.members[id]
	if !exists || m.peerID == 0 {
		return MemberView{}, MemberView{}, false
	}
	p, exists := r.members[m.peerID]
	if !exists {
		// 对端已被移除，只需清理本端。
		m.peerID = 0
		r.setStateLocked(m, StateIdle)
		return MemberView{}, MemberView{}, false
	}

	self = m.view(p.username)
	peer = p.view(m.username)

	m.peerID = 0
	p.peerID = 0
	r.setStateLocked(m, StateIdle)
	r.setStateLocked(p, StateIdle)

	return self, peer, true
}

// EnterGroup 将成员迁移到群聊状态。
func (r *Registry) EnterGroup(id uint64) (MemberView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok || !m.authenticated || m.state != StateIdle {
		return MemberView{}, false
	}
	r.setStateLocked(m, StateGroupChatting)
	return m.view(""), true
}

// LeaveGroup 将群聊中的成员迁回 Idle。
func (r *Registry) LeaveGroup(id uint64) (MemberView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok || m.state != StateGroupChatting {
		return MemberView{}, false
	}
	r.setStateLocked(m, StateIdle)
	return m.view(""), true
}

// GroupMembers 返回当前处于群聊状态的全部会话 ID 快照。
func (r *Registry) GroupMembers() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uint64, 0)
	for id, m := range r.members {
		if m.state == StateGroupChatting {
			ids = append(ids, id)
		}
	}
	return ids
}

// Remove 移除指定成员，原子地清理两个索引并解除对端关联。
//
// 幂等：对已移除的会话再次调用不产生任何效果。
// 返回值中的 peer 为仍然在线的原对端（已被迁回 Idle），
// 调用方应据此通知对端会话已结束。
func (r *Registry) Remove(id uint64) (removed MemberView, peer *MemberView, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return MemberView{}, nil, false
	}

	removed = m.view(r.peerNameLocked(m))

	if m.peerID != 0 {
		if p, ok := r.members[m.peerID]; ok {
			p.peerID = 0
			r.setStateLocked(p, StateIdle)
			pv := p.view("")
			peer = &pv
		}
	}

	r.removeLocked(id)
	return removed, peer, true
}

// removeLocked 删除成员记录及其索引。必须在持锁状态下调用。
func (r *Registry) removeLocked(id uint64) {
	m, ok := r.members[id]
	if !ok {
		return
	}

	metrics.SessionsByState.WithLabelValues(m.state.String()).Dec()

	if m.authenticated {
		delete(r.byName, m.username)
		r.roster = lo.Without(r.roster, m.username)
		metrics.RegisteredUsers.Dec()
	}
	delete(r.members, id)

	log.Info("member removed",
		zap.Uint64("sessionID", id),
		zap.String("username", m.username))
}

// setStateLocked 迁移成员状态并同步按状态分组的会话数指标。
// 必须在持锁状态下调用。
func (r *Registry) setStateLocked(m *member, next State) {
	if m.state == next {
		return
	}
	metrics.SessionsByState.WithLabelValues(m.state.String()).Dec()
	metrics.SessionsByState.WithLabelValues(next.String()).Inc()
	m.state = next
}

// peerNameLocked 返回成员对端的用户名，无对端时为空串。
// 必须在持锁状态下调用。
func (r *Registry) peerNameLocked(m *member) string {
	if m.peerID == 0 {
		return ""
	}
	p, ok := r.members[m.peerID]
	if !ok {
		return ""
	}
	return p.username
}
