package client

import (
	"math"

	"villagesync/protocol"
)

const (
	DefaultPosEpsilon  = 0.5   // 像素
	DefaultNormEpsilon = 0.001 // 归一化 y
)

// ActorState 本地角色在某一帧的权威状态
type ActorState struct {
	X, Y  float64
	YNorm *float64
	FlipX bool
	VX    float64
}

// MoveSender 发送 move 消息的通道
type MoveSender interface {
	SendMove(m protocol.Move) error
}

// Publisher 每帧比较本地状态与上次发布的值，只在有意义的变化时发送 move
// 流量因此与实际状态变化成正比，而不是与帧率成正比
type Publisher struct {
	sender    MoveSender
	villageID string
	posEps    float64
	normEps   float64

	last      ActorState
	published bool
}

func NewPublisher(sender MoveSender, villageID string) *Publisher {
	return &Publisher{
		sender:    sender,
		villageID: villageID,
		posEps:    DefaultPosEpsilon,
		normEps:   DefaultNormEpsilon,
	}
}

// SetEpsilon 调整位置阈值
func (p *Publisher) SetEpsilon(pos, norm float64) {
	p.posEps = pos
	p.normEps = norm
}

// SetVillage 换房后下一帧必定发布
func (p *Publisher) SetVillage(villageID string) {
	p.villageID = villageID
	p.published = false
}

// Sample 提交一帧状态，返回是否发送了 move；发送失败时下一帧会重试
func (p *Publisher) Sample(s ActorState) (bool, error) {
	if p.published && !p.changed(s) {
		return false, nil
	}
	m := protocol.Move{
		VillageID: p.villageID,
		X:         s.X,
		Y:         s.Y,
		FlipX:     s.FlipX,
		VX:        s.VX,
	}
	if s.YNorm != nil {
		m.YNorm = protocol.Float(*s.YNorm)
	}
	if err := p.sender.SendMove(m); err != nil {
		return false, err
	}
	p.last = s
	if s.YNorm != nil {
		p.last.YNorm = protocol.Float(*s.YNorm)
	}
	p.published = true
	return true, nil
}

func (p *Publisher) changed(s ActorState) bool {
	prev := p.last
	switch {
	case math.Abs(s.X-prev.X) > p.posEps, math.Abs(s.Y-prev.Y) > p.posEps:
		return true
	case (s.YNorm == nil) != (prev.YNorm == nil):
		return true
	case s.YNorm != nil && math.Abs(*s.YNorm-*prev.YNorm) > p.normEps:
		return true
	case s.FlipX != prev.FlipX:
		return true
	case sign(s.VX) != sign(prev.VX):
		// 包含刚停下（vx 变为 0）的那一帧
		return true
	}
	return false
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
