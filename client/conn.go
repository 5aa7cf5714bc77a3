package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"villagesync/protocol"
)

// ErrClosed 连接已关闭
var ErrClosed = errors.New("client: connection closed")

// ConnOptions 拨号参数
type ConnOptions struct {
	Logger      *zap.SugaredLogger
	WriteWait   time.Duration
	WelcomeWait time.Duration
}

// Conn 客户端到服务端的 WebSocket 通道
// 写操作由互斥锁串行化，读循环在 Run 中独占
type Conn struct {
	ws        *websocket.Conn
	log       *zap.SugaredLogger
	writeWait time.Duration
	sessionID string

	mu     sync.Mutex
	closed bool
}

// Dial 建立连接并等待服务端的 welcome，之后 SessionID 可用
func Dial(ctx context.Context, url string, opts ConnOptions) (*Conn, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	if opts.WelcomeWait <= 0 {
		opts.WelcomeWait = 5 * time.Second
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(opts.WelcomeWait))
	_, b, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	msg, err := protocol.DecodeServer(b)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("decode welcome: %w", err)
	}
	w, ok := msg.(protocol.Welcome)
	if !ok {
		_ = ws.Close()
		return nil, fmt.Errorf("expected welcome, got %s", msg.Type())
	}
	_ = ws.SetReadDeadline(time.Time{})

	return &Conn{
		ws:        ws,
		log:       opts.Logger,
		writeWait: opts.WriteWait,
		sessionID: w.SessionID,
	}, nil
}

// SessionID 服务端分配的会话 ID
func (c *Conn) SessionID() string { return c.sessionID }

func (c *Conn) Join(villageID, uid string) error {
	return c.send(protocol.JoinVillage{VillageID: villageID, UID: uid})
}

func (c *Conn) SendMove(m protocol.Move) error {
	return c.send(m)
}

func (c *Conn) Leave() error {
	return c.send(protocol.LeaveVillage{})
}

// Joiner 发送 joinVillage 的通道
type Joiner interface {
	Join(villageID, uid string) error
}

// SwitchRoom 换房：服务端收到 join 后先离开旧房间；本地发布目标与镜像随之切换
func SwitchRoom(j Joiner, pub *Publisher, mirror *Mirror, villageID, uid string) error {
	if err := j.Join(villageID, uid); err != nil {
		return err
	}
	pub.SetVillage(villageID)
	mirror.SetRoom(villageID)
	return nil
}

func (c *Conn) send(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type(), err)
	}
	return nil
}

// Run 读循环：把每个 playerUpdate 转发到 updates，直到 ctx 取消或连接断开
// ctx 取消或服务端正常关闭时返回 nil
func (c *Conn) Run(ctx context.Context, updates chan<- protocol.PlayerUpdate) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		msg, err := protocol.DecodeServer(b)
		if err != nil {
			c.log.Debugf("server frame dropped: %v", err)
			continue
		}
		pu, ok := msg.(protocol.PlayerUpdate)
		if !ok {
			continue
		}
		select {
		case updates <- pu:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close 发送关闭帧并断开；可重复调用
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
