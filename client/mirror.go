// Package client 村庄同步的客户端：远端成员镜像、本地状态发布与 WebSocket 通道
package client

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"villagesync/protocol"
)

// Presence 远端成员在本地的状态
type Presence int

const (
	Absent Presence = iota
	Loading
	Present
)

func (p Presence) String() string {
	switch p {
	case Loading:
		return "loading"
	case Present:
		return "present"
	default:
		return "absent"
	}
}

// Viewport 视口尺寸，用于换算 yNorm 与默认出生点
type Viewport struct {
	Width, Height float64
}

// Diff 一次快照调和的结果（按 ID 排序）
type Diff struct {
	Loading []string // 开始拉取资料
	Added   []string // 立即创建（匿名成员）
	Updated []string // 目标、朝向或动画发生变化
	Removed []string // 已销毁
}

// Empty 快照没有造成任何可见变化
func (d Diff) Empty() bool {
	return len(d.Loading)+len(d.Added)+len(d.Updated)+len(d.Removed) == 0
}

// MirrorOptions Mirror 的依赖与回调
type MirrorOptions struct {
	Fetcher      ProfileFetcher
	Viewport     Viewport
	Logger       *zap.SugaredLogger
	FetchTimeout time.Duration
	OnSpawn      func(*RemoteActor)
	OnDespawn    func(*RemoteActor)
}

// pending 资料拉取中的成员；state 总是最近一次包含它的快照
type pending struct {
	sessionID string
	state     protocol.MemberState
	inLatest  bool // 最近一次快照是否包含它
}

type fetchResult struct {
	id      string
	profile Profile
	err     error
}

// Mirror 根据服务端快照维护远端成员的本地投影
// 只由客户端主循环调用（Apply / Update），资料拉取在独立协程中进行，结果经通道回到 Update
type Mirror struct {
	ctx     context.Context
	fetcher ProfileFetcher
	view    Viewport
	log     *zap.SugaredLogger
	timeout time.Duration

	selfUID     string
	selfSession string
	room        string
	lastSeq     uint64

	actors  map[string]*RemoteActor
	loading map[string]*pending
	results chan fetchResult

	onSpawn   func(*RemoteActor)
	onDespawn func(*RemoteActor)
}

// NewMirror ctx 取消后进行中的资料拉取随之放弃
func NewMirror(ctx context.Context, opts MirrorOptions) *Mirror {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	return &Mirror{
		ctx:       ctx,
		fetcher:   opts.Fetcher,
		view:      opts.Viewport,
		log:       opts.Logger,
		timeout:   opts.FetchTimeout,
		actors:    make(map[string]*RemoteActor),
		loading:   make(map[string]*pending),
		results:   make(chan fetchResult, 64),
		onSpawn:   opts.OnSpawn,
		onDespawn: opts.OnDespawn,
	}
}

// SetSelf 记录本地身份，快照中自己的条目会被跳过
func (m *Mirror) SetSelf(uid, sessionID string) {
	m.selfUID = uid
	m.selfSession = sessionID
}

// SetRoom 换房：清空投影，之后只接受该房间的快照；进行中的拉取结果将被丢弃
// 序号在同一连接内全局递增，因此保留
func (m *Mirror) SetRoom(villageID string) {
	for _, id := range sortedKeys(m.actors) {
		m.destroy(id)
	}
	m.loading = make(map[string]*pending)
	m.room = villageID
}

// Apply 用一份全量快照调和本地投影：一次遍历得到新增、更新与删除
func (m *Mirror) Apply(u protocol.PlayerUpdate, now time.Time) Diff {
	var d Diff
	if m.room != "" && u.VillageID != "" && u.VillageID != m.room {
		m.log.Debugf("snapshot for another room dropped: room=%s current=%s", u.VillageID, m.room)
		return d
	}
	if u.Seq != 0 {
		if u.Seq <= m.lastSeq {
			m.log.Debugf("stale snapshot dropped: seq=%d last=%d", u.Seq, m.lastSeq)
			return d
		}
		m.lastSeq = u.Seq
	}

	type entry struct {
		sessionID string
		state     protocol.MemberState
	}
	seen := make(map[string]entry, len(u.Players))
	for sid, st := range u.Players {
		if m.isSelf(sid, st) {
			continue
		}
		id := identity(sid, st)
		// 同一 uid 多个会话时取会话 ID 最小者，结果与遍历顺序无关
		if prev, ok := seen[id]; ok && prev.sessionID < sid {
			continue
		}
		seen[id] = entry{sessionID: sid, state: st}
	}

	for id, e := range seen {
		if a, ok := m.actors[id]; ok {
			if m.retarget(a, e.sessionID, e.state, now) {
				d.Updated = append(d.Updated, id)
			}
			continue
		}
		if p, ok := m.loading[id]; ok {
			p.sessionID = e.sessionID
			p.state = e.state
			p.inLatest = true
			continue
		}
		if e.state.UID == "" || m.fetcher == nil {
			m.spawn(id, e.sessionID, AnonymousProfile(), e.state)
			d.Added = append(d.Added, id)
			continue
		}
		m.loading[id] = &pending{sessionID: e.sessionID, state: e.state, inLatest: true}
		go m.fetch(id)
		d.Loading = append(d.Loading, id)
	}

	for id := range m.actors {
		if _, ok := seen[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	for _, id := range d.Removed {
		m.destroy(id)
	}
	for id, p := range m.loading {
		if _, ok := seen[id]; !ok {
			p.inLatest = false
		}
	}

	sort.Strings(d.Loading)
	sort.Strings(d.Added)
	sort.Strings(d.Updated)
	sort.Strings(d.Removed)
	return d
}

// Update 每帧调用：收取已完成的资料拉取并推进插值，不会阻塞
func (m *Mirror) Update(now time.Time) {
drain:
	for {
		select {
		case r := <-m.results:
			m.resolve(r)
		default:
			break drain
		}
	}
	for _, a := range m.actors {
		a.Step(now)
	}
}

// State 某个身份当前的本地状态
func (m *Mirror) State(id string) Presence {
	if _, ok := m.actors[id]; ok {
		return Present
	}
	if _, ok := m.loading[id]; ok {
		return Loading
	}
	return Absent
}

// Actor 返回远端成员投影的副本
func (m *Mirror) Actor(id string) (RemoteActor, bool) {
	a, ok := m.actors[id]
	if !ok {
		return RemoteActor{}, false
	}
	return *a, true
}

// Actors 所有已出现的远端成员（按 ID 排序的副本）
func (m *Mirror) Actors() []RemoteActor {
	out := make([]RemoteActor, 0, len(m.actors))
	for _, id := range sortedKeys(m.actors) {
		out = append(out, *m.actors[id])
	}
	return out
}

func (m *Mirror) isSelf(sid string, st protocol.MemberState) bool {
	if m.selfSession != "" && sid == m.selfSession {
		return true
	}
	return m.selfUID != "" && st.UID == m.selfUID
}

func identity(sid string, st protocol.MemberState) string {
	if st.UID != "" {
		return st.UID
	}
	return sid
}

func (m *Mirror) fetch(id string) {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()
	p, err := m.fetcher.FetchProfile(ctx, id)
	select {
	case m.results <- fetchResult{id: id, profile: p, err: err}:
	case <-m.ctx.Done():
	}
}

// resolve loading -> present，或在拉取失败、成员已离开时回到 absent
func (m *Mirror) resolve(r fetchResult) {
	p, ok := m.loading[r.id]
	if !ok {
		return
	}
	delete(m.loading, r.id)
	if r.err != nil {
		if errors.Is(r.err, ErrProfileNotFound) {
			m.log.Debugf("profile missing, actor not created: id=%s", r.id)
		} else {
			m.log.Warnf("profile fetch failed, actor not created: id=%s err=%v", r.id, r.err)
		}
		return
	}
	if !p.inLatest {
		m.log.Debugf("member left while loading: id=%s", r.id)
		return
	}
	m.spawn(r.id, p.sessionID, r.profile.withDefaults(), p.state)
}

func (m *Mirror) spawn(id, sessionID string, p Profile, st protocol.MemberState) {
	a := newRemoteActor(id, sessionID, p, m.spawnPoint(st))
	a.FlipX = st.FlipX
	a.Anim = animationFor(st.VX)
	m.actors[id] = a
	m.log.Debugf("actor spawned: id=%s session=%s username=%q", id, sessionID, a.Username)
	if m.onSpawn != nil {
		m.onSpawn(a)
	}
}

func (m *Mirror) destroy(id string) {
	a, ok := m.actors[id]
	if !ok {
		return
	}
	delete(m.actors, id)
	m.log.Debugf("actor despawned: id=%s", id)
	if m.onDespawn != nil {
		m.onDespawn(a)
	}
}

// retarget 更新目标位置、朝向与动画，返回是否有变化
func (m *Mirror) retarget(a *RemoteActor, sessionID string, st protocol.MemberState, now time.Time) bool {
	a.SessionID = sessionID
	target := m.position(st)
	anim := animationFor(st.VX)
	changed := target != a.Target || st.FlipX != a.FlipX || anim != a.Anim
	if target != a.Target {
		a.MoveTo(target, now)
	}
	a.FlipX = st.FlipX
	a.Anim = anim
	return changed
}

func (m *Mirror) position(st protocol.MemberState) Vec {
	y := st.Y
	if st.YNorm != nil {
		y = *st.YNorm * m.view.Height
	}
	return Vec{X: st.X, Y: y}
}

// spawnPoint x 为 0 时出生在视口水平中央
func (m *Mirror) spawnPoint(st protocol.MemberState) Vec {
	v := m.position(st)
	if v.X == 0 {
		v.X = m.view.Width / 2
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
