package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parleychat/parley/internal/chat"
	network "github.com/parleychat/parley/internal/network"
	"github.com/parleychat/parley/internal/network/connector"
	"github.com/parleychat/parley/internal/network/framer"
)

// maxDisplaySize 为客户端展示路径接受的最大帧大小（字节）。
// 超过的帧在本地报错并丢弃，不进入展示。
const maxDisplaySize = 248

const defaultServerAddr = "127.0.0.1:12000"

// client 是纯透传终端：本地输入逐行原样发给服务器，
// 服务器下发的文本直接展示，仅识别少量带内控制令牌。
type client struct {
	done chan struct{}

	// chattingWith 为当前私聊对端的提示装饰，仅在接收协程中读写。
	chattingWith string
}

func (c *client) OnConnected(conn connector.ClientConn) {
	fmt.Printf("Connected to %s\n", conn.RemoteAddr())
}

func (c *client) OnMessage(conn connector.ClientConn, payload []byte) {
	if len(payload) >= maxDisplaySize {
		fmt.Println("Error: message too long")
		return
	}

	text := string(payload)
	switch {
	case text == chat.TokenForceExit:
		fmt.Println("Error: Connection terminated by server")
		_ = conn.Close()

	case text == chat.TokenNotChat:
		c.chattingWith = ""

	default:
		if peer, ok := chat.ParseInChatToken(text); ok {
			c.chattingWith = peer
			fmt.Printf("[chatting with %s]\n", peer)
			return
		}
		fmt.Println(text)
	}
}

// OnClosed 由连接层保证只回调一次。
func (c *client) OnClosed(conn connector.ClientConn, err error) {
	close(c.done)
}

func (c *client) OnError(conn connector.ClientConn, stage network.Stage, err error) {
	fmt.Printf("Error: %s failed: %v\n", stage, err)
}

func main() {
	addr := defaultServerAddr
	if env := os.Getenv("PARLEY_ADDR"); env != "" {
		addr = env
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &client{done: make(chan struct{})}

	dialer := connector.NewTCPConnector(connector.Config{
		Framer:         framer.NewLengthPrefixedFramer(0),
		MaxDialElapsed: 15 * time.Second,
	})

	conn, err := dialer.Dial(ctx, addr, c)
	if err != nil {
		fmt.Printf("Error: could not connect to %s: %v\n", addr, err)
		os.Exit(1)
	}

	// 发送协程：逐行读取本地输入，原样透传给服务器。
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := conn.SendText(scanner.Text()); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = conn.Close()
	case <-c.done:
	}
	fmt.Println("Error: No longer connected. Safe to close program.")
}
