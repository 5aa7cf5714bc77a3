package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Admin 管理与监控接口
type Admin struct {
	Registry *Registry
	Metrics  *Metrics
	Hub      *Hub // 可选：提供事件循环内的实时会话数
}

// HandleRooms 房间列表或单个房间快照
// GET /admin/rooms            返回所有房间及成员数
// GET /admin/rooms?room=V1    返回该房间的成员状态快照
func (a *Admin) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": a.Registry.Rooms()})
		return
	}
	players, ok := a.Registry.Snapshot(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    roomID,
		"players": players,
	})
}

// HandleMetrics 输出运行指标
// GET /metrics
func (a *Admin) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"rooms":   len(a.Registry.Rooms()),
		"metrics": a.Metrics.Snapshot(),
	}
	if a.Hub != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if n, err := a.Hub.SessionCount(ctx); err == nil {
			payload["sessions"] = n
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
