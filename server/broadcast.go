package server

import (
	"time"

	"villagesync/protocol"
)

// trigger 房间状态发生变化：立即广播，或在合并模式下标记待广播
func (h *Hub) trigger(roomID string) {
	if h.broadcastHz > 0 {
		h.dirty[roomID] = struct{}{}
		return
	}
	h.Broadcast(roomID)
}

// Broadcast 将房间的全量快照推送给房间内每个打开的会话，返回成功入队的数量
// 每次都是完整快照而非增量：漏收的客户端等下一次即可自愈，因此失败的接收者直接跳过，不重试
// 只能在事件循环内调用
func (h *Hub) Broadcast(roomID string) int {
	start := time.Now()
	players, ok := h.registry.Snapshot(roomID)
	if !ok {
		return 0
	}
	h.seq++
	b, err := protocol.Encode(protocol.PlayerUpdate{Seq: h.seq, VillageID: roomID, Players: players})
	if err != nil {
		h.log.Errorf("encode playerUpdate: room=%s err=%v", roomID, err)
		return 0
	}

	sent := 0
	for key := range players {
		s, ok := h.sessions[SessionID(key)]
		if !ok || !s.InRoom(roomID) {
			continue
		}
		if err := s.Conn.Send(b); err != nil {
			h.metrics.IncSendSkipped()
			h.log.Debugf("broadcast skipped: room=%s id=%s err=%v", roomID, key, err)
			continue
		}
		sent++
	}
	h.metrics.AddBroadcast(time.Since(start).Nanoseconds())
	return sent
}
