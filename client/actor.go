package client

import "time"

// TweenDuration 远端成员从当前位置移动到新目标的插值时长
const TweenDuration = 100 * time.Millisecond

type Animation string

const (
	AnimIdle Animation = "idle"
	AnimWalk Animation = "walk"
)

// Vec 屏幕坐标
type Vec struct {
	X, Y float64
}

// RemoteActor 本地对一个远端成员的投影
type RemoteActor struct {
	ID            string // uid，匿名成员为会话 ID
	SessionID     string
	Username      string
	Avatar        string
	CharacterType string

	Pos    Vec // 当前渲染位置
	Target Vec
	FlipX  bool
	Anim   Animation

	from  Vec
	start time.Time
}

func newRemoteActor(id, sessionID string, p Profile, at Vec) *RemoteActor {
	return &RemoteActor{
		ID:            id,
		SessionID:     sessionID,
		Username:      p.Username,
		Avatar:        p.Avatar,
		CharacterType: CharacterType(p.Avatar),
		Pos:           at,
		Target:        at,
		from:          at,
		Anim:          AnimIdle,
	}
}

// MoveTo 以当前渲染位置为起点，线性插值到 target
func (a *RemoteActor) MoveTo(target Vec, now time.Time) {
	a.from = a.Pos
	a.Target = target
	a.start = now
}

// Step 推进插值；超过 TweenDuration 后停在目标位置
func (a *RemoteActor) Step(now time.Time) {
	if a.Pos == a.Target {
		return
	}
	t := float64(now.Sub(a.start)) / float64(TweenDuration)
	switch {
	case t <= 0:
		a.Pos = a.from
	case t >= 1:
		a.Pos = a.Target
	default:
		a.Pos = Vec{X: lerp(a.from.X, a.Target.X, t), Y: lerp(a.from.Y, a.Target.Y, t)}
	}
}

// AnimationKey 如 "KnightCharacter_walk"
func (a *RemoteActor) AnimationKey() string {
	return a.CharacterType + "_" + string(a.Anim)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func animationFor(vx float64) Animation {
	if vx != 0 {
		return AnimWalk
	}
	return AnimIdle
}
