package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrSessionClosed 连接已关闭，发送被跳过
	ErrSessionClosed = errors.New("server: session closed")
	// ErrQueueFull 发送队列已满，本条消息被丢弃
	ErrQueueFull = errors.New("server: send queue full")
)

// ConnConfig 单条连接的读写参数
type ConnConfig struct {
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	SendQueue     int
	MaxFrameBytes int64
}

// ClientConn 负责发送（写）数据到客户端的轻量包装，实现 Conn
type ClientConn struct {
	ws  *websocket.Conn
	cfg ConnConfig

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClientConn(ws *websocket.Conn, cfg ConnConfig) *ClientConn {
	return &ClientConn{
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendQueue),
	}
}

// Send 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		// 为了实时性，丢弃而不阻塞事件循环；下一次全量快照会覆盖
		return ErrQueueFull
	}
}

// Close 关闭发送队列；写协程写完剩余消息后发送关闭帧并断开
func (c *ClientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定时发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端帧并投递给 Hub；读失败（关闭、出错、超时）即视为断开
func (c *ClientConn) readPump(hub *Hub, id SessionID) {
	defer c.ws.Close()
	// 读泵退出时，通知 Hub 在事件循环中移除该会话
	defer hub.Close(id)
	c.ws.SetReadLimit(c.cfg.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		hub.Message(id, payload)
	}
}

// HandlerOptions WebSocket 接入的依赖
type HandlerOptions struct {
	Logger   *zap.SugaredLogger
	Conn     ConnConfig
	Verifier *TokenVerifier // 为 nil 时不校验身份
}

// Handler WebSocket 接入：/ws（启用校验时 /ws?token=...）
type Handler struct {
	hub      *Hub
	log      *zap.SugaredLogger
	cfg      ConnConfig
	verifier *TokenVerifier
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Handler{
		hub:      hub,
		log:      opts.Logger,
		cfg:      opts.Conn,
		verifier: opts.Verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 演示环境：允许所有来源（生产环境需严格限制）
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var verified string
	if h.verifier != nil {
		uid, err := h.verifier.Verify(r.URL.Query().Get("token"))
		if err != nil {
			h.log.Warnf("ws unauthorized: remote=%s err=%v", r.RemoteAddr, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		verified = uid
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade error: %v", err)
		return
	}

	client := NewClientConn(ws, h.cfg)
	id, err := h.hub.Open(client, verified)
	if err != nil {
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = ws.Close()
		return
	}

	go client.writePump()
	go client.readPump(h.hub, id)
}
