package connector

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	network "github.com/parleychat/parley/internal/network"
	"github.com/parleychat/parley/internal/network/framer"
	"github.com/parleychat/parley/pkg/util/conc"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	SendQueueSize int
	RecvQueueSize int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DialTimeout 为单次拨号的超时时间。
	DialTimeout time.Duration

	// MaxDialElapsed 为拨号重试的总时长上限，为 0 时只拨号一次。
	MaxDialElapsed time.Duration

	// Framer 为当前连接使用的帧编解码器。
	Framer framer.Framer
}

func defaultConfig() Config {
	return Config{
		SendQueueSize: 1024,
		RecvQueueSize: 1024,
		DialTimeout:   5 * time.Second,
	}
}

// ClientConn 抽象了客户端侧的一条连接。
//
// 注意：客户端连接不包含会话 ID 概念。
type ClientConn interface {
	Context() context.Context
	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	Send(payload []byte) error
	SendText(text string) error
	Recv() <-chan []byte

	Close() error
}

// ConnectorHandler 描述客户端在各阶段的回调能力。
type ConnectorHandler interface {
	OnConnected(conn ClientConn)
	OnMessage(conn ClientConn, payload []byte)
	OnClosed(conn ClientConn, err error)
	OnError(conn ClientConn, stage network.Stage, err error)
}

// Connector 抽象了客户端的拨号器。
type Connector interface {
	Dial(ctx context.Context, addr string, h ConnectorHandler) (ClientConn, error)
}

// tcpConnector 是基于 net.Dialer 的默认 Connector 实现。
type tcpConnector struct {
	cfg Config
}

// NewTCPConnector 创建一个基于 TCP 的 Connector。
func NewTCPConnector(cfg Config) Connector {
	def := defaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.RecvQueueSize <= 0 {
		cfg.RecvQueueSize = def.RecvQueueSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.Framer == nil {
		panic("connector: Framer is nil")
	}
	return &tcpConnector{cfg: cfg}
}

// Dial 建立到 addr 的 TCP 连接。
//
// 当配置了 MaxDialElapsed 时，拨号失败会按指数退避重试，
// 直至成功、超过总时长上限或 ctx 被取消。
func (c *tcpConnector) Dial(ctx context.Context, addr string, h ConnectorHandler) (ClientConn, error) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	var conn net.Conn
	operation := func() error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		return err
	}

	var err error
	if c.cfg.MaxDialElapsed > 0 {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = c.cfg.MaxDialElapsed
		err = backoff.Retry(operation, backoff.WithContext(bo, ctx))
	} else {
		err = operation()
	}
	if err != nil {
		h.OnError(nil, network.StageDial, err)
		return nil, err
	}

	connCtx, cancel := context.WithCancel(ctx)
	cc := newTCPClientConn(connCtx, cancel, conn, c.cfg, h)
	h.OnConnected(cc)
	return cc, nil
}

// tcpClientConn 是基于 net.Conn 的 ClientConn 默认实现。
type tcpClientConn struct {
	conn net.Conn

	ctx    context.Context
	cancel context.CancelFunc

	cfg Config
	h   ConnectorHandler

	remoteAddr net.Addr
	localAddr  net.Addr

	sendChan chan []byte

	// recvChan 的投递与关闭都在 recvMu 保护下进行，
	// 避免 Close 与接收协程竞争时向已关闭的通道投递。
	recvMu     sync.Mutex
	recvClosed bool
	recvChan   chan []byte

	framer framer.Framer

	closeOnce sync.Once
}

func newTCPClientConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn net.Conn,
	cfg Config,
	h ConnectorHandler,
) *tcpClientConn {
	c := &tcpClientConn{
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		h:          h,
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		sendChan:   make(chan []byte, cfg.SendQueueSize),
		recvChan:   make(chan []byte, cfg.RecvQueueSize),
		framer:     cfg.Framer,
	}

	// 使用 conc.Go 启动收发协程，避免直接使用原生 go 关键字。
	_ = conc.Go(func() (struct{}, error) {
		c.recvLoop()
		return struct{}{}, nil
	})
	_ = conc.Go(func() (struct{}, error) {
		c.sendLoop()
		return struct{}{}, nil
	})

	return c
}

// ClientConn 接口实现。

func (c *tcpClientConn) Context() context.Context { return c.ctx }
func (c *tcpClientConn) RemoteAddr() net.Addr     { return c.remoteAddr }
func (c *tcpClientConn) LocalAddr() net.Addr      { return c.localAddr }
func (c *tcpClientConn) Recv() <-chan []byte      { return c.recvChan }
func (c *tcpClientConn) Close() error             { return c.close(nil) }

func (c *tcpClientConn) Send(payload []byte) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case c.sendChan <- payload:
		return nil
	}
}

func (c *tcpClientConn) SendText(text string) error {
	return c.Send([]byte(text))
}

func (c *tcpClientConn) close(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			if cerr := c.conn.Close(); cerr != nil {
				err = cerr
			}
		}

		c.recvMu.Lock()
		c.recvClosed = true
		close(c.recvChan)
		c.recvMu.Unlock()

		c.h.OnClosed(c, cause)
	})
	return err
}

// recvLoop 持续从连接中读取消息帧并投递到 recvChan。
func (c *tcpClientConn) recvLoop() {
	defer c.close(nil)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if c.cfg.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				c.h.OnError(c, network.StageRecvRaw, err)
				c.close(network.ErrRecvFailed)
				return
			}
		}

		payload, err := c.framer.ReadFrame(c.conn)
		if err != nil {
			// EOF/连接关闭视为正常断开。
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.close(nil)
				return
			}
			c.h.OnError(c, network.StageRecvRaw, err)
			c.close(network.ErrRecvFailed)
			return
		}

		c.publish(payload)

		c.h.OnMessage(c, payload)
	}
}

// publish 将一帧负载投递到 recvChan。
// 连接已关闭或通道已满时丢弃该帧，调用方仍会通过 OnMessage 收到回调。
func (c *tcpClientConn) publish(payload []byte) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.recvClosed {
		return
	}
	select {
	case c.recvChan <- payload:
	default:
	}
}

// sendLoop 从 sendChan 读取负载并封帧后写入连接。
func (c *tcpClientConn) sendLoop() {
	defer c.close(nil)

	for {
		select {
		case <-c.ctx.Done():
			return
		case payload := <-c.sendChan:
			if c.cfg.WriteTimeout > 0 {
				if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
					c.h.OnError(c, network.StageSend, err)
					c.close(network.ErrSendFailed)
					return
				}
			}

			if err := c.framer.WriteFrame(c.conn, payload); err != nil {
				c.h.OnError(c, network.StageSend, err)
				c.close(err)
				return
			}
		}
	}
}
