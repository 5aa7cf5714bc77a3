package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"villagesync/protocol"
)

// ErrHubStopped Hub 事件循环已退出，不再接受新连接
var ErrHubStopped = errors.New("server: hub stopped")

// HubOptions Hub 的可选依赖与参数
type HubOptions struct {
	Logger          *zap.SugaredLogger
	Metrics         *Metrics
	BroadcastHz     int  // 0 表示立即广播
	PruneEmptyRooms bool // 最后一名成员离开后删除房间
	EventQueue      int
	NewID           func() SessionID // 测试可替换
}

// Hub 会话连接管理器：单协程事件循环处理所有会话的打开、消息与关闭
// 会话表只在循环内读写，注册表的修改与广播因此天然串行
type Hub struct {
	registry *Registry
	log      *zap.SugaredLogger
	metrics  *Metrics
	newID    func() SessionID

	events   chan any
	sessions map[SessionID]*Session

	broadcastHz int
	prune       bool
	dirty       map[string]struct{}
	seq         uint64 // 广播序号

	// postMu 保护 closing：shutdown 置位后不再有事件进入通道
	postMu  sync.RWMutex
	closing bool
	stopped chan struct{}
}

// NewHub 创建 Hub；registry 由调用方创建并注入
func NewHub(registry *Registry, opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Metrics == nil {
		opts.Metrics = &Metrics{}
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = 256
	}
	if opts.NewID == nil {
		opts.NewID = NewSessionID
	}
	return &Hub{
		registry:    registry,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		newID:       opts.NewID,
		events:      make(chan any, opts.EventQueue),
		sessions:    make(map[SessionID]*Session),
		broadcastHz: opts.BroadcastHz,
		prune:       opts.PruneEmptyRooms,
		dirty:       make(map[string]struct{}),
		stopped:     make(chan struct{}),
	}
}

// Registry 返回注入的房间注册表
func (h *Hub) Registry() *Registry { return h.registry }

// Metrics 返回运行指标
func (h *Hub) Metrics() *Metrics { return h.metrics }

// Run 事件循环，直到 ctx 取消；退出时关闭所有会话连接
func (h *Hub) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if h.broadcastHz > 0 {
		ticker := time.NewTicker(tickInterval(h.broadcastHz))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return h.shutdown()
		case ev := <-h.events:
			h.handle(ev)
		case <-tick:
			h.flushDirty()
		}
	}
}

// Open 注册新连接，返回分配的会话 ID；事件循环随后发送 welcome
func (h *Hub) Open(conn Conn, verifiedUID string) (SessionID, error) {
	s := &Session{ID: h.newID(), Conn: conn, VerifiedUID: verifiedUID}
	if !h.post(openEvent{session: s}) {
		return "", ErrHubStopped
	}
	return s.ID, nil
}

// Message 投递一帧原始载荷
func (h *Hub) Message(id SessionID, payload []byte) {
	h.post(messageEvent{id: id, payload: payload})
}

// Close 通知连接已关闭（正常关闭或读写错误）
func (h *Hub) Close(id SessionID) {
	h.post(closeEvent{id: id})
}

// post 阻塞写入事件通道：同一连接的读协程因此获得背压，而不是丢弃事件
func (h *Hub) post(ev any) bool {
	h.postMu.RLock()
	defer h.postMu.RUnlock()
	if h.closing {
		return false
	}
	select {
	case h.events <- ev:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) handle(ev any) {
	switch e := ev.(type) {
	case openEvent:
		h.onOpen(e.session)
	case messageEvent:
		h.onMessage(e.id, e.payload)
	case closeEvent:
		h.onClose(e.id)
	case callEvent:
		e.fn()
		close(e.done)
	}
}

// call 在事件循环内同步执行 fn
func (h *Hub) call(ctx context.Context, fn func()) error {
	ev := callEvent{fn: fn, done: make(chan struct{})}
	if err := h.postCall(ctx, ev); err != nil {
		return err
	}
	select {
	case <-ev.done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) postCall(ctx context.Context, ev callEvent) error {
	h.postMu.RLock()
	defer h.postMu.RUnlock()
	if h.closing {
		return ErrHubStopped
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionCount 当前打开的会话数（在事件循环内读取）
func (h *Hub) SessionCount(ctx context.Context) (int, error) {
	var n int
	err := h.call(ctx, func() { n = len(h.sessions) })
	return n, err
}

func (h *Hub) onOpen(s *Session) {
	h.sessions[s.ID] = s
	h.metrics.IncOpened()
	h.log.Infof("session opened: id=%s", s.ID)

	b, err := protocol.Encode(protocol.Welcome{SessionID: string(s.ID)})
	if err != nil {
		h.log.Errorf("encode welcome: %v", err)
		return
	}
	if err := s.Conn.Send(b); err != nil {
		h.log.Debugf("welcome not sent: id=%s err=%v", s.ID, err)
	}
}

// onMessage 解析并分派一帧；任何错误只记录，不影响该会话或其他会话
func (h *Hub) onMessage(id SessionID, payload []byte) {
	s, ok := h.sessions[id]
	if !ok {
		return
	}
	msg, err := protocol.DecodeClient(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			h.metrics.IncUnknown()
		} else {
			h.metrics.IncMalformed()
		}
		h.log.Debugf("frame dropped: id=%s err=%v", id, err)
		return
	}

	switch m := msg.(type) {
	case protocol.JoinVillage:
		h.onJoin(s, m)
	case protocol.Move:
		h.onMove(s, m)
	case protocol.LeaveVillage:
		h.metrics.IncAccepted()
		h.leaveRoom(s)
	}
}

func (h *Hub) onJoin(s *Session, m protocol.JoinVillage) {
	uid := m.UID
	if s.VerifiedUID != "" {
		if uid != "" && uid != s.VerifiedUID {
			h.metrics.IncJoinRejected()
			h.log.Warnf("join ignored: id=%s claimed uid=%q verified=%q", s.ID, uid, s.VerifiedUID)
			return
		}
		uid = s.VerifiedUID
	}
	h.metrics.IncAccepted()

	// 一个会话同一时刻只属于一个房间：换房先离开旧房间
	if s.RoomID != "" && s.RoomID != m.VillageID {
		h.leaveRoom(s)
	}

	if h.registry.EnsureRoom(m.VillageID) {
		h.log.Infof("room created: room=%s", m.VillageID)
	}
	s.RoomID = m.VillageID
	s.UID = uid

	st, exists := h.registry.Member(m.VillageID, s.ID)
	if !exists {
		st = protocol.MemberState{}
	}
	st.UID = uid
	h.registry.SetMember(m.VillageID, s.ID, st)
	h.log.Infof("session joined: id=%s room=%s uid=%q", s.ID, m.VillageID, uid)
	h.trigger(m.VillageID)
}

// onMove 整体覆盖成员状态；会话不在该房间或没有槽位时静默忽略
func (h *Hub) onMove(s *Session, m protocol.Move) {
	if !s.InRoom(m.VillageID) || !h.registry.HasMember(m.VillageID, s.ID) {
		h.metrics.IncMoveRejected()
		h.log.Debugf("move ignored: id=%s room=%q target=%q", s.ID, s.RoomID, m.VillageID)
		return
	}
	h.metrics.IncAccepted()
	st := m.State()
	st.UID = s.UID
	h.registry.SetMember(m.VillageID, s.ID, st)
	h.trigger(m.VillageID)
}

// onClose 先从房间移除并广播，再丢弃会话，保证离开的成员立即消失
func (h *Hub) onClose(id SessionID) {
	s, ok := h.sessions[id]
	if !ok {
		return
	}
	h.leaveRoom(s)
	delete(h.sessions, id)
	_ = s.Conn.Close()
	h.metrics.IncClosed()
	h.log.Infof("session closed: id=%s", id)
}

func (h *Hub) leaveRoom(s *Session) {
	roomID := s.RoomID
	if roomID == "" {
		return
	}
	s.RoomID = ""
	removed, empty := h.registry.RemoveMember(roomID, s.ID)
	if !removed {
		return
	}
	if empty && h.prune && h.registry.DropIfEmpty(roomID) {
		delete(h.dirty, roomID)
		h.log.Infof("room pruned: room=%s", roomID)
		return
	}
	h.trigger(roomID)
}

// shutdown 先拒绝新事件，再关闭已排队但未处理的连接与所有已打开的会话
func (h *Hub) shutdown() error {
	close(h.stopped)
	h.postMu.Lock()
	h.closing = true
	h.postMu.Unlock()

	var err error
drain:
	for {
		select {
		case ev := <-h.events:
			if e, ok := ev.(openEvent); ok {
				err = multierr.Append(err, e.session.Conn.Close())
			}
		default:
			break drain
		}
	}
	for id, s := range h.sessions {
		err = multierr.Append(err, s.Conn.Close())
		delete(h.sessions, id)
		h.metrics.IncClosed()
	}
	h.log.Info("hub stopped")
	return err
}
