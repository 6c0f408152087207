package session

// SessionManager 维护 “会话 ID -> Session” 的在线索引。
//
// 约定：
//   - 管理器只维护索引，不创建也不关闭底层连接，
//     会话的生命周期由 acceptor/connector 等持有连接的一方驱动；
//   - 接入层在连接建立时调用 Register、在连接收尾路径上调用 Unregister，
//     因此业务实现（例如聊天成员注册表）可以借此保证
//     异常断开的会话同样会被清理；
//   - 基于该索引可以实现按 ID 定向发送与全量广播。
type SessionManager interface {
	// Register 注册一个新会话。
	// sess.ID() 必须全局唯一；ID 重复时返回错误，不得覆盖旧会话。
	Register(sess Session) error

	// Get 按会话 ID 查找，ok 为 false 表示不存在。
	Get(id uint64) (sess Session, ok bool)

	// Unregister 移除指定 ID 的索引；会话不存在时返回错误。
	// 只删除索引，不调用 sess.Close()。
	Unregister(id uint64) error

	// Range 遍历当前全部在线会话，fn 返回 false 时停止遍历。
	// 实现应先摘取快照再回调，避免在持锁状态下执行调用方代码。
	Range(fn func(sess Session) bool)

	// Count 返回当前在线会话数量。
	Count() int
}
