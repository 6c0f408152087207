package chat

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/parleychat/parley/pkg/log"
	"github.com/parleychat/parley/pkg/util/merr"
)

// Effect 表示状态机产出的一条出站动作，由连接处理器负责执行。
//
// 状态机本身只做决策不做 IO，迁移表可以脱离套接字直接测试。
type Effect interface {
	isEffect()
}

// SendTo 表示向指定会话发送一段文本。
type SendTo struct {
	ID   uint64
	Text string
}

// Close 表示关闭指定会话。
type Close struct {
	ID uint64
}

// Broadcast 表示向所有群聊成员广播一段文本。
type Broadcast struct {
	Text          string
	SenderID      uint64
	IncludeSender bool
}

func (SendTo) isEffect()    {}
func (Close) isEffect()     {}
func (Broadcast) isEffect() {}

// Dispatcher 是会话状态机：根据成员当前状态解释每条入站消息，
// 驱动注册表完成状态迁移，并返回待执行的出站动作。
//
// 每个状态一个处理函数，迁移语义：
//
//	Idle(未登录)    任意文本       -> 作为用户名校验，成功后登录并发菜单
//	Idle(已登录)    "1"~"4"        -> 列目录 / 发起私聊 / 进群聊 / 退出
//	Requesting      目标用户名     -> 配对成功则向目标发 Y/N 询问
//	Requested       "y"/"n"        -> 双方进入私聊 / 双方回到 Idle
//	Chatting        "Quit"或文本   -> 结束私聊 / 转发给对端
//	GroupChatting   "Quit"或文本   -> 退出群聊 / 广播给其他群成员
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher 创建一个基于给定注册表的状态机。
func NewDispatcher(r *Registry) *Dispatcher {
	return &Dispatcher{registry: r}
}

// Dispatch 处理一条入站消息，返回需要执行的出站动作。
// 由接入层保证同一会话的 Dispatch 调用是串行的。
func (d *Dispatcher) Dispatch(id uint64, text string) []Effect {
	view, ok := d.registry.View(id)
	if !ok {
		// 会话已被移除（例如对端处理器刚刚将其清理），丢弃消息。
		return nil
	}

	switch view.State {
	case StateIdle:
		return d.handleIdle(view, text)
	case StateRequesting:
		return d.handleRequesting(view, text)
	case StateRequested:
		return d.handleRequested(view, text)
	case StateChatting:
		return d.handleChatting(view, text)
	case StateGroupChatting:
		return d.handleGroupChatting(view, text)
	default:
		return nil
	}
}

// handleIdle 处理登录和主菜单。
func (d *Dispatcher) handleIdle(view MemberView, text string) []Effect {
	if !view.Authenticated {
		return d.handleLogin(view, text)
	}

	// 菜单命令按字面量精确匹配，不做数字解析。
	switch text {
	case "1":
		if d.registry.AuthedCount() > 1 {
			return []Effect{
				SendTo{view.ID, renderDirectory(d.registry.Snapshot())},
				SendTo{view.ID, msgMenu},
			}
		}
		return []Effect{
			SendTo{view.ID, msgSingleUserWarning},
			SendTo{view.ID, msgMenu},
		}

	case "2":
		if d.registry.AuthedCount() > 1 {
			if !d.registry.StartRequesting(view.ID) {
				return []Effect{SendTo{view.ID, msgGeneralError}, SendTo{view.ID, msgMenu}}
			}
			return []Effect{
				SendTo{view.ID, renderDirectory(d.registry.Snapshot())},
				SendTo{view.ID, msgChatRequestPrompt},
			}
		}
		return []Effect{
			SendTo{view.ID, msgSingleUserWarning},
			SendTo{view.ID, msgMenu},
		}

	case "3":
		if _, ok := d.registry.EnterGroup(view.ID); !ok {
			return []Effect{SendTo{view.ID, msgGeneralError}, SendTo{view.ID, msgMenu}}
		}
		log.Info("member joined group chat", zap.String("username", view.Username))
		return []Effect{
			SendTo{view.ID, msgGroupChatHeader},
			Broadcast{
				Text:          msgGroupChatJoin(view.Username),
				SenderID:      view.ID,
				IncludeSender: true,
			},
		}

	case "4":
		return []Effect{
			SendTo{view.ID, TokenForceExit},
			Close{view.ID},
		}

	default:
		log.RatedInfo(1, "invalid menu input",
			zap.String("username", view.Username),
			zap.String("input", text))
		return []Effect{SendTo{view.ID, msgGeneralError}, SendTo{view.ID, msgMenu}}
	}
}

// handleLogin 校验用户名：空名与重名可恢复并重新提示，其余情况登录成功。
func (d *Dispatcher) handleLogin(view MemberView, text string) []Effect {
	err := d.registry.Bind(view.ID, text)
	switch {
	case err == nil:
		log.Info("member logged in", zap.Uint64("sessionID", view.ID), zap.String("username", text))
		return []Effect{
			SendTo{view.ID, msgLoginSuccess},
			SendTo{view.ID, msgMenu},
		}
	case errors.Is(err, merr.ErrNameEmpty):
		return []Effect{SendTo{view.ID, msgNameEmpty}}
	case errors.Is(err, merr.ErrNameTaken):
		return []Effect{SendTo{view.ID, msgNameTaken}}
	default:
		// 会话已不存在。
		return nil
	}
}

// handleRequesting 解析目标用户名并尝试配对。
// 目标不存在、不可用或为自身时留在 Requesting 并重新提示。
func (d *Dispatcher) handleRequesting(view MemberView, text string) []Effect {
	unavailable := []Effect{
		SendTo{view.ID, msgTargetUnavailable(text)},
		SendTo{view.ID, msgChatRequestPrompt},
	}

	targetID, ok := d.registry.LookupByUsername(text)
	if !ok {
		return unavailable
	}

	req, tgt, err := d.registry.Pair(view.ID, targetID)
	if err != nil {
		log.RatedInfo(1, "chat request rejected",
			zap.String("requester", view.Username),
			zap.String("target", text),
			zap.Error(err))
		return unavailable
	}

	return []Effect{
		SendTo{tgt.ID, msgChatRequest(req.Username)},
		SendTo{req.ID, msgRequestWaiting(tgt.Username)},
	}
}

// handleRequested 处理被请求方的 Y/N 应答（大小写不敏感）。
func (d *Dispatcher) handleRequested(view MemberView, text string) []Effect {
	switch strings.ToLower(text) {
	case "y":
		self, peer, err := d.registry.Accept(view.ID)
		if err != nil {
			// 请求方已掉线，本端回到 Idle。
			d.registry.Unpair(view.ID)
			return []Effect{SendTo{view.ID, msgChatEnded}, SendTo{view.ID, msgMenu}}
		}
		return []Effect{
			SendTo{self.ID, msgChatHeader(peer.Username)},
			SendTo{self.ID, TokenInChat(peer.Username)},
			SendTo{peer.ID, msgChatHeader(self.Username)},
			SendTo{peer.ID, TokenInChat(self.Username)},
		}

	case "n":
		self, peer, ok := d.registry.Unpair(view.ID)
		if !ok {
			return []Effect{SendTo{view.ID, msgMenu}}
		}
		log.Info("chat request denied",
			zap.String("user", self.Username),
			zap.String("requester", peer.Username))
		return []Effect{
			SendTo{peer.ID, msgChatRejected(self.Username)},
			SendTo{peer.ID, msgMenu},
			SendTo{self.ID, msgMenu},
		}

	default:
		effects := []Effect{SendTo{view.ID, msgGeneralError}}
		if peer, ok := d.registry.View(view.PeerID); ok {
			effects = append(effects, SendTo{view.ID, msgChatRequest(peer.Username)})
		}
		return effects
	}
}

// handleChatting 处理私聊中的消息：
// "Quit" 结束会话，其余文本原样转发到对端。
func (d *Dispatcher) handleChatting(view MemberView, text string) []Effect {
	if text == "Quit" {
		self, peer, ok := d.registry.Unpair(view.ID)
		if !ok {
			return []Effect{SendTo{view.ID, TokenNotChat}, SendTo{view.ID, msgMenu}}
		}
		log.Info("private chat ended",
			zap.String("user", self.Username),
			zap.String("peer", peer.Username))
		return []Effect{
			SendTo{self.ID, msgChatEnded},
			SendTo{self.ID, TokenNotChat},
			SendTo{self.ID, msgMenu},
			SendTo{peer.ID, msgChatEnded},
			SendTo{peer.ID, TokenNotChat},
			SendTo{peer.ID, msgMenu},
		}
	}

	return []Effect{
		SendTo{view.PeerID, msgChatMessage(view.Username, text)},
	}
}

// handleGroupChatting 处理群聊中的消息：
// "Quit" 退出群聊，其余文本广播给除发送者外的所有群成员。
func (d *Dispatcher) handleGroupChatting(view MemberView, text string) []Effect {
	if text == "Quit" {
		if _, ok := d.registry.LeaveGroup(view.ID); !ok {
			return nil
		}
		log.Info("member left group chat", zap.String("username", view.Username))
		return []Effect{SendTo{view.ID, msgMenu}}
	}

	return []Effect{
		Broadcast{
			Text:          msgChatMessage(view.Username, text),
			SenderID:      view.ID,
			IncludeSender: false,
		},
	}
}
