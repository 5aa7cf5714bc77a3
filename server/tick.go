package server

import (
	"sort"
	"time"
)

// 合并广播模式（BroadcastHz > 0）：事件只标记房间为脏，按固定频率每个脏房间广播一次
// 入站消息速率与出站广播速率由此解耦

func tickInterval(hz int) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Second / time.Duration(hz)
}

// flushDirty 对每个脏房间广播一次（按房间 ID 顺序，便于复现）
func (h *Hub) flushDirty() {
	if len(h.dirty) == 0 {
		return
	}
	rooms := make([]string, 0, len(h.dirty))
	for id := range h.dirty {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	for _, id := range rooms {
		delete(h.dirty, id)
		h.Broadcast(id)
	}
}
