package chat

import (
	"go.uber.org/zap"

	"github.com/parleychat/parley/pkg/log"
	"github.com/parleychat/parley/pkg/metrics"
	"github.com/parleychat/parley/pkg/util/conc"
	"github.com/parleychat/parley/pkg/util/typeutil"
)

// defaultBroadcastWorkers 为群发协程池的容量。
const defaultBroadcastWorkers = 16

// Broadcaster 负责群聊消息的扇出投递。
//
// 投递策略：
//   - 基于注册表的时间点快照筛选群聊成员；
//   - 每个接收方的投递相互独立，失败不影响其他接收方；
//   - 对某个接收方投递失败视为该接收方掉线，关闭其会话，
//     由接入层的清理路径完成注销；
//   - 不保证接收方之间的送达顺序。
type Broadcaster struct {
	log.Binder

	registry *Registry
	pool     *conc.Pool[struct{}]
}

// NewBroadcaster 创建一个群发器，扇出任务在共享协程池上执行。
func NewBroadcaster(r *Registry) *Broadcaster {
	b := &Broadcaster{
		registry: r,
		pool:     conc.NewPool[struct{}](defaultBroadcastWorkers, conc.WithConcealPanic(true)),
	}
	b.SetLogger(log.With(zap.String("component", "broadcaster")))
	return b
}

// Broadcast 将 text 投递给当前所有群聊成员。
// includeSender 为 false 时跳过发送者自身。返回实际投递的接收方数量。
func (b *Broadcaster) Broadcast(text string, senderID uint64, includeSender bool) int {
	exclude := typeutil.NewSessionIDSet()
	if !includeSender {
		exclude.Insert(senderID)
	}

	members := b.registry.GroupMembers()
	futures := make([]*conc.Future[struct{}], 0, len(members))

	for _, id := range members {
		if exclude.Contain(id) {
			continue
		}
		sess, ok := b.registry.Get(id)
		if !ok {
			continue
		}

		id := id
		futures = append(futures, b.pool.Submit(func() (struct{}, error) {
			if err := sess.SendText(text); err != nil {
				// 投递失败按接收方掉线处理。
				b.Logger().Warn("broadcast delivery failed, closing recipient session",
					zap.Uint64("sessionID", id),
					zap.Error(err))
				_ = sess.Close()
			} else {
				metrics.Messages.WithLabelValues(metrics.DirectionOutbound).Inc()
			}
			return struct{}{}, nil
		}))
	}

	// 等待本轮扇出全部完成，保证同一发送者的两条群聊消息不会乱序。
	_ = conc.AwaitAll(futures...)

	metrics.BroadcastFanout.Observe(float64(len(futures)))
	return len(futures)
}

// Release 关闭底层协程池。
func (b *Broadcaster) Release() {
	b.pool.Release()
}
