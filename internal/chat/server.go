package chat

import (
	"context"
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/parleychat/parley/internal/network/acceptor"
	"github.com/parleychat/parley/internal/network/framer"
	"github.com/parleychat/parley/internal/network/session"
	"github.com/parleychat/parley/pkg/log"
	"github.com/parleychat/parley/pkg/metrics"
	"github.com/parleychat/parley/pkg/util/conc"
)

// closeGraceDelay 为主动关闭会话前留给发送队列的冲刷时间，
// 保证 FORCE_EXIT 等最后一条消息能够送达客户端。
const closeGraceDelay = 100 * time.Millisecond

// Server 实现接入层的 Handler 回调，把网络事件接到聊天状态机上。
//
// 职责划分：
//   - acceptor 负责连接的接受、解帧和生命周期；
//   - Dispatcher 负责状态迁移决策；
//   - Server 负责执行决策产出的出站动作，并在会话结束时完成
//     注册表清理与对端通知（无论正常退出还是异常断开）。
type Server struct {
	registry    *Registry
	dispatcher  *Dispatcher
	broadcaster *Broadcaster

	ids *atomic.Uint64
}

// 确保 Server 实现了 acceptor.Handler 接口。
var _ acceptor.Handler = (*Server)(nil)

// NewServer 创建一个聊天服务，内部自建注册表、状态机和群发器。
func NewServer() *Server {
	r := NewRegistry()
	return &Server{
		registry:    r,
		dispatcher:  NewDispatcher(r),
		broadcaster: NewBroadcaster(r),
		ids:         atomic.NewUint64(0),
	}
}

// Registry 返回内部注册表，供接入层作为 SessionManager 使用，
// 以及供运维端点导出在线成员快照。
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close 释放内部资源。
func (s *Server) Close() {
	s.broadcaster.Release()
}

// chatSession 在 BaseSession 之上挂接聊天业务的连接级回调。
type chatSession struct {
	*session.BaseSession
}

// OnConnected 在会话注册完成后发送欢迎与登录提示。
func (cs *chatSession) OnConnected() {
	if err := cs.SendText(msgWelcome); err != nil {
		log.Warn("failed to send welcome message",
			zap.Uint64("sessionID", cs.ID()),
			zap.Error(err))
	}
}

// OnDisconnected 记录断开原因，清理工作由 Server.OnSessionClosed 完成。
func (cs *chatSession) OnDisconnected(err error) {
	log.Info("session disconnected",
		zap.Uint64("sessionID", cs.ID()),
		zap.Error(err))
}

// OnAccept 实现 acceptor.Handler.OnAccept。
func (s *Server) OnAccept(ctx context.Context, conn net.Conn, f framer.Framer) (session.Session, error) {
	id := s.ids.Inc()
	log.Info("connection accepted",
		zap.Uint64("sessionID", id),
		zap.Stringer("remoteAddr", conn.RemoteAddr()))

	return &chatSession{
		BaseSession: session.NewBaseSession(ctx, id, conn, f),
	}, nil
}

// OnMessage 实现 acceptor.Handler.OnMessage。
// 入站负载按 UTF-8 文本交给状态机，随后执行其产出的全部动作。
func (s *Server) OnMessage(sess session.Session, payload []byte) {
	start := time.Now()

	effects := s.dispatcher.Dispatch(sess.ID(), string(payload))
	s.applyEffects(effects)

	metrics.DispatchLatency.Observe(float64(time.Since(start).Milliseconds()))
}

// OnSessionClosed 实现 acceptor.Handler.OnSessionClosed。
//
// 无论会话因何结束（显式退出、对端关闭、IO 错误），都移除注册表记录；
// 若其仍关联着私聊对端，则通知对端会话已结束并恢复菜单。
func (s *Server) OnSessionClosed(sess session.Session, cause error) {
	removed, peer, existed := s.registry.Remove(sess.ID())
	if !existed {
		return
	}

	log.Info("session closed",
		zap.Uint64("sessionID", sess.ID()),
		zap.String("username", removed.Username),
		zap.Error(cause))

	if peer != nil {
		s.applyEffects([]Effect{
			SendTo{peer.ID, msgChatEnded},
			SendTo{peer.ID, TokenNotChat},
			SendTo{peer.ID, msgMenu},
		})
	}
}

// OnError 实现 acceptor.Handler.OnError。
func (s *Server) OnError(sess session.Session, err error) {
	if sess != nil {
		log.Warn("session error", zap.Uint64("sessionID", sess.ID()), zap.Error(err))
		return
	}
	log.Warn("acceptor error", zap.Error(err))
}

// OnTimeout 实现 acceptor.Handler.OnTimeout。
// 当前不启用读超时淘汰，保留该回调作为将来接入超时策略的挂点。
func (s *Server) OnTimeout(session.Session) error {
	return nil
}

// applyEffects 执行状态机产出的出站动作。
//
// 对某个接收方发送失败视为该接收方掉线：关闭其会话，
// 由接入层的清理路径移除记录并通知其对端；
// 不影响同批次其余动作的执行。
func (s *Server) applyEffects(effects []Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case SendTo:
			s.sendTo(e.ID, e.Text)

		case Close:
			s.closeSession(e.ID)

		case Broadcast:
			s.broadcaster.Broadcast(e.Text, e.SenderID, e.IncludeSender)
		}
	}
}

func (s *Server) sendTo(id uint64, text string) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return
	}
	if err := sess.SendText(text); err != nil {
		log.Warn("send failed, closing recipient session",
			zap.Uint64("sessionID", id),
			zap.Error(err))
		_ = sess.Close()
		return
	}
	metrics.Messages.WithLabelValues(metrics.DirectionOutbound).Inc()
}

func (s *Server) closeSession(id uint64) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return
	}
	// 延迟关闭，给发送队列留出把最后一帧写出去的时间。
	conc.Go(func() (struct{}, error) {
		time.Sleep(closeGraceDelay)
		return struct{}{}, sess.Close()
	})
}
