package server

import (
	"sync/atomic"
)

// Metrics 记录 Hub 运行期的关键指标（用于监控与调试）
type Metrics struct {
	SessionsOpened   int64 // 建立的会话数
	SessionsClosed   int64 // 关闭的会话数
	MessagesAccepted int64 // 被处理的合法消息数
	MalformedDropped int64 // 因格式错误被丢弃的帧
	UnknownIgnored   int64 // 未知 type 被忽略的帧
	MovesRejected    int64 // 房间不匹配或无槽位被忽略的 move
	JoinsRejected    int64 // uid 与 token 不一致被忽略的 join
	Broadcasts       int64 // 广播次数
	SendsSkipped     int64 // 广播时因连接关闭或队列满跳过的接收者
	TotalBroadcastNs int64 // 广播累计耗时（纳秒）
}

func (m *Metrics) IncOpened() { atomic.AddInt64(&m.SessionsOpened, 1) }
func (m *Metrics) IncClosed() { atomic.AddInt64(&m.SessionsClosed, 1) }
func (m *Metrics) IncAccepted() { atomic.AddInt64(&m.MessagesAccepted, 1) }
func (m *Metrics) IncMalformed() { atomic.AddInt64(&m.MalformedDropped, 1) }
func (m *Metrics) IncUnknown() { atomic.AddInt64(&m.UnknownIgnored, 1) }
func (m *Metrics) IncMoveRejected() { atomic.AddInt64(&m.MovesRejected, 1) }
func (m *Metrics) IncJoinRejected() { atomic.AddInt64(&m.JoinsRejected, 1) }
func (m *Metrics) IncSendSkipped() { atomic.AddInt64(&m.SendsSkipped, 1) }
func (m *Metrics) AddBroadcast(ns int64) {
	atomic.AddInt64(&m.Broadcasts, 1)
	atomic.AddInt64(&m.TotalBroadcastNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	n := atomic.LoadInt64(&m.Broadcasts)
	total := atomic.LoadInt64(&m.TotalBroadcastNs)
	var avgMs float64
	if n > 0 {
		avgMs = float64(total) / float64(n) / 1e6
	}
	opened := atomic.LoadInt64(&m.SessionsOpened)
	closed := atomic.LoadInt64(&m.SessionsClosed)
	return map[string]any{
		"sessions_opened":   opened,
		"sessions_closed":   closed,
		"sessions_active":   opened - closed,
		"messages_accepted": atomic.LoadInt64(&m.MessagesAccepted),
		"malformed_dropped": atomic.LoadInt64(&m.MalformedDropped),
		"unknown_ignored":   atomic.LoadInt64(&m.UnknownIgnored),
		"moves_rejected":    atomic.LoadInt64(&m.MovesRejected),
		"joins_rejected":    atomic.LoadInt64(&m.JoinsRejected),
		"broadcasts":        n,
		"sends_skipped":     atomic.LoadInt64(&m.SendsSkipped),
		"avg_broadcast_ms":  avgMs,
	}
}
