package acceptor

import (
	"context"
	"net"

	"github.com/parleychat/parley/internal/network/framer"
	"github.com/parleychat/parley/internal/network/session"
)

// Handler 由框架使用者实现，用于在服务器侧的各个阶段插入自定义逻辑。
//
// 说明：
//   - OnMessage/OnSessionClosed 在单个会话的消费协程中被串行调用，
//     应避免耗时操作阻塞该会话的消息处理；
//   - 不同会话之间的回调是并发的，实现方需要自行保证共享状态的并发安全。
type Handler interface {
	// OnAccept 在接受到新连接后被调用，由实现方创建并返回 Session。
	//
	// 说明：
	//   - 返回的 Session 通常内嵌 BaseSession，并携带业务自身的状态；
	//   - 返回 (nil, nil) 表示拒绝该连接，接入层会直接关闭底层连接。
	OnAccept(ctx context.Context, conn net.Conn, f framer.Framer) (session.Session, error)

	// OnMessage 在成功读取一条消息帧后被调用。
	//
	// payload 为帧负载，归实现方所有。
	OnMessage(sess session.Session, payload []byte)

	// OnSessionClosed 在会话生命周期结束时被调用。
	//
	// 参数 err 为关闭原因，正常关闭时可为 nil。
	OnSessionClosed(sess session.Session, err error)

	// OnError 在会话处理的各个阶段发生错误时被调用。
	//
	// sess 可能为 nil（例如 OnAccept 失败时）。
	OnError(sess session.Session, err error)

	// OnTimeout 在读取超时时被调用。
	//
	// 返回非 nil 错误将结束对应会话（或接入循环）；返回 nil 表示忽略本次超时。
	OnTimeout(sess session.Session) error
}

// Acceptor 抽象了服务器侧的 TCP 接入层。
//
// 职责：
//   - 在监听地址上接受连接，为每个连接创建 Session；
//   - 驱动封帧/解帧，并调用 Handler 的各阶段回调；
//   - 配合 SessionManager 维护当前活跃会话列表。
type Acceptor interface {
	// Serve 启动接入循环，阻塞直至 ctx 取消或出现致命错误。
	Serve(ctx context.Context, h Handler) error

	// Close 关闭监听器，令 Serve 返回。
	Close() error

	// Addr 返回实际监听地址（便于使用 ":0" 随机端口的测试场景）。
	Addr() net.Addr
}
