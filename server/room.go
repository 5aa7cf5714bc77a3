package server

import (
	"sort"
	"sync"

	"villagesync/protocol"
)

// Room 一个空间房间（村庄或房屋内部），保存会话 -> 成员状态
type Room struct {
	ID      string
	members map[SessionID]protocol.MemberState
}

// RoomInfo 管理接口返回的房间概要
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// Registry 房间注册表：唯一的共享可变状态
// 写入只来自 Hub 事件循环；读写锁让管理接口可以在其他协程读取
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry 创建空注册表，由进程启动时创建并注入 Hub
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// EnsureRoom 获取或创建房间（幂等），返回是否新建
func (r *Registry) EnsureRoom(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		return false
	}
	r.rooms[roomID] = &Room{ID: roomID, members: make(map[SessionID]protocol.MemberState)}
	return true
}

// SetMember 插入或整体替换成员状态（后写覆盖，无版本号）；房间不存在时返回 false
func (r *Registry) SetMember(roomID string, sid SessionID, st protocol.MemberState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	room.members[sid] = cloneState(st)
	return true
}

// Member 读取单个成员状态
func (r *Registry) Member(roomID string, sid SessionID) (protocol.MemberState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return protocol.MemberState{}, false
	}
	st, ok := room.members[sid]
	if !ok {
		return protocol.MemberState{}, false
	}
	return cloneState(st), true
}

// HasMember 房间中是否有该会话的槽位
func (r *Registry) HasMember(roomID string, sid SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = room.members[sid]
	return ok
}

// RemoveMember 删除成员（不存在则无操作），返回是否删除以及房间是否已空
func (r *Registry) RemoveMember(roomID string, sid SessionID) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false, false
	}
	if _, ok := room.members[sid]; ok {
		delete(room.members, sid)
		removed = true
	}
	return removed, len(room.members) == 0
}

// DropIfEmpty 房间为空时删除，返回是否删除
func (r *Registry) DropIfEmpty(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok || len(room.members) > 0 {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// Snapshot 返回房间成员状态的防御性副本，键为会话 ID
func (r *Registry) Snapshot(roomID string) (map[string]protocol.MemberState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	out := make(map[string]protocol.MemberState, len(room.members))
	for sid, st := range room.members {
		out[string(sid)] = cloneState(st)
	}
	return out, true
}

// Rooms 列出所有房间及成员数（按 ID 排序）
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, RoomInfo{ID: id, Members: len(room.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneState(st protocol.MemberState) protocol.MemberState {
	if st.YNorm != nil {
		st.YNorm = protocol.Float(*st.YNorm)
	}
	return st
}
