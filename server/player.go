package server

import "github.com/google/uuid"

// SessionID 每条连接一个，由服务端生成，永不复用（不依赖任何传输层属性）
type SessionID string

// NewSessionID 生成随机 UUID 会话标识
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Conn 会话的发送端抽象：非阻塞发送，关闭后发送返回错误
type Conn interface {
	Send([]byte) error
	Close() error
}

// Session 一条打开的双工通道对应的临时身份
type Session struct {
	ID     SessionID
	RoomID string // 未加入房间时为空
	UID    string // 客户端自报，不做校验

	// 启用 token 校验时，升级阶段验证得到的用户 ID
	VerifiedUID string

	Conn Conn
}

// InRoom 会话当前是否在指定房间
func (s *Session) InRoom(roomID string) bool {
	return s.RoomID != "" && s.RoomID == roomID
}
