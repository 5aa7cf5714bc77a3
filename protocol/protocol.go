// Package protocol 定义客户端与服务端之间的 JSON 文本帧（每帧一个对象，以 type 字段区分）
package protocol

// 消息类型（type 字段取值）
const (
	TypeJoinVillage  = "joinVillage"
	TypeMove         = "move"
	TypeLeaveVillage = "leaveVillage"
	TypePlayerUpdate = "playerUpdate"
	TypeWelcome      = "welcome"
)

// MemberState 某个成员的瞬时表现状态，由拥有该成员的客户端上报
// 服务端只做整体插入/删除，不做合并；UID 由服务端根据 join 消息写入
type MemberState struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	YNorm *float64 `json:"yNorm,omitempty"` // 客户端自身坐标系下的归一化纵坐标 (0..1)
	FlipX bool     `json:"flipX"`
	VX    float64  `json:"vx"`
	UID   string   `json:"uid,omitempty"`
}

// Message 所有帧的公共接口
type Message interface {
	Type() string
}

// JoinVillage 客户端加入房间（村庄或房屋内部）
// 示例：{"type":"joinVillage","villageId":"V1","uid":"alice"}
type JoinVillage struct {
	VillageID string `json:"villageId"`
	UID       string `json:"uid,omitempty"`
}

// Move 客户端上报自身状态，服务端整体覆盖
// 示例：{"type":"move","villageId":"V1","x":10,"y":20,"flipX":true,"vx":-300}
type Move struct {
	VillageID string   `json:"villageId"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	YNorm     *float64 `json:"yNorm,omitempty"`
	FlipX     bool     `json:"flipX,omitempty"`
	VX        float64  `json:"vx,omitempty"`
}

// LeaveVillage 客户端主动离开当前房间（例如退出房屋内部）
type LeaveVillage struct{}

// PlayerUpdate 服务端推送的房间全量快照，键为会话 ID
// Seq 在同一服务进程内单调递增，客户端据此丢弃重复或过期的快照；0 表示未编号
// VillageID 快照所属房间，换房后客户端据此丢弃旧房间仍在途中的快照
type PlayerUpdate struct {
	Seq       uint64                 `json:"seq,omitempty"`
	VillageID string                 `json:"villageId,omitempty"`
	Players   map[string]MemberState `json:"players"`
}

// Welcome 连接建立后服务端告知客户端自己的会话 ID
type Welcome struct {
	SessionID string `json:"sessionId"`
}

func (JoinVillage) Type() string { return TypeJoinVillage }
func (Move) Type() string { return TypeMove }
func (LeaveVillage) Type() string { return TypeLeaveVillage }
func (PlayerUpdate) Type() string { return TypePlayerUpdate }
func (Welcome) Type() string { return TypeWelcome }

// State 将 move 消息转换为成员状态（不含 UID）
func (m Move) State() MemberState {
	st := MemberState{X: m.X, Y: m.Y, FlipX: m.FlipX, VX: m.VX}
	if m.YNorm != nil {
		v := *m.YNorm
		st.YNorm = &v
	}
	return st
}

// Float 返回指向 v 副本的指针，便于构造可选字段
func Float(v float64) *float64 { return &v }
