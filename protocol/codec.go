package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed 帧不是合法 JSON 对象，或字段类型不符
	ErrMalformed = errors.New("protocol: malformed frame")
	// ErrUnknownType type 字段不是已知的消息类型
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Encode 按扁平格式编码：{"type":..., 其余字段}
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case JoinVillage:
		return json.Marshal(struct {
			Type string `json:"type"`
			JoinVillage
		}{TypeJoinVillage, m})
	case Move:
		return json.Marshal(struct {
			Type string `json:"type"`
			Move
		}{TypeMove, m})
	case LeaveVillage:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{TypeLeaveVillage})
	case PlayerUpdate:
		if m.Players == nil {
			m.Players = map[string]MemberState{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			PlayerUpdate
		}{TypePlayerUpdate, m})
	case Welcome:
		return json.Marshal(struct {
			Type string `json:"type"`
			Welcome
		}{TypeWelcome, m})
	case nil:
		return nil, fmt.Errorf("protocol: encode nil message")
	default:
		return nil, fmt.Errorf("protocol: encode %T: %w", msg, ErrUnknownType)
	}
}

// DecodeClient 解析客户端 -> 服务端帧
// 先用 gjson 读出 type 判别，再逐字段校验类型；任何不匹配的帧都返回 ErrMalformed
func DecodeClient(b []byte) (Message, error) {
	root, kind, err := peek(b)
	if err != nil {
		return nil, err
	}
	switch kind {
	case TypeJoinVillage:
		village, err := requireString(root, "villageId")
		if err != nil {
			return nil, err
		}
		uid, err := optionalString(root, "uid")
		if err != nil {
			return nil, err
		}
		return JoinVillage{VillageID: village, UID: uid}, nil
	case TypeMove:
		return decodeMove(root)
	case TypeLeaveVillage:
		return LeaveVillage{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

// DecodeServer 解析服务端 -> 客户端帧
func DecodeServer(b []byte) (Message, error) {
	_, kind, err := peek(b)
	if err != nil {
		return nil, err
	}
	switch kind {
	case TypePlayerUpdate:
		var pu PlayerUpdate
		if err := json.Unmarshal(b, &pu); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if pu.Players == nil {
			pu.Players = map[string]MemberState{}
		}
		return pu, nil
	case TypeWelcome:
		var w Welcome
		if err := json.Unmarshal(b, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

func peek(b []byte) (gjson.Result, string, error) {
	if len(b) == 0 {
		return gjson.Result{}, "", fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	if !gjson.ValidBytes(b) {
		return gjson.Result{}, "", fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return gjson.Result{}, "", fmt.Errorf("%w: not an object", ErrMalformed)
	}
	t := root.Get("type")
	if t.Type != gjson.String {
		return gjson.Result{}, "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return root, t.Str, nil
}

func decodeMove(root gjson.Result) (Message, error) {
	village, err := requireString(root, "villageId")
	if err != nil {
		return nil, err
	}
	x := root.Get("x")
	if x.Type != gjson.Number {
		return nil, fmt.Errorf("%w: move.x must be a number", ErrMalformed)
	}
	m := Move{VillageID: village, X: x.Num}

	y := root.Get("y")
	yNorm := root.Get("yNorm")
	switch {
	case y.Exists() && y.Type != gjson.Number:
		return nil, fmt.Errorf("%w: move.y must be a number", ErrMalformed)
	case yNorm.Exists() && yNorm.Type != gjson.Number && yNorm.Type != gjson.Null:
		return nil, fmt.Errorf("%w: move.yNorm must be a number", ErrMalformed)
	case !y.Exists() && yNorm.Type != gjson.Number:
		return nil, fmt.Errorf("%w: move needs y or yNorm", ErrMalformed)
	}
	m.Y = y.Num
	if yNorm.Type == gjson.Number {
		m.YNorm = Float(yNorm.Num)
	}

	switch flip := root.Get("flipX"); flip.Type {
	case gjson.True:
		m.FlipX = true
	case gjson.False, gjson.Null:
	default:
		if flip.Exists() {
			return nil, fmt.Errorf("%w: move.flipX must be a bool", ErrMalformed)
		}
	}

	vx := root.Get("vx")
	if vx.Exists() && vx.Type != gjson.Null {
		if vx.Type != gjson.Number {
			return nil, fmt.Errorf("%w: move.vx must be a number", ErrMalformed)
		}
		m.VX = vx.Num
	}

	// 1e400 之类的字面量是合法 JSON，但解析为 ±Inf 后整个房间的快照都无法编码
	fields := []struct {
		name string
		v    float64
	}{{"x", m.X}, {"y", m.Y}, {"vx", m.VX}}
	if m.YNorm != nil {
		fields = append(fields, struct {
			name string
			v    float64
		}{"yNorm", *m.YNorm})
	}
	for _, f := range fields {
		if math.IsInf(f.v, 0) || math.IsNaN(f.v) {
			return nil, fmt.Errorf("%w: move.%s must be finite", ErrMalformed, f.name)
		}
	}
	return m, nil
}

func requireString(root gjson.Result, field string) (string, error) {
	v := root.Get(field)
	if v.Type != gjson.String || v.Str == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrMalformed, field)
	}
	return v.Str, nil
}

func optionalString(root gjson.Result, field string) (string, error) {
	v := root.Get(field)
	switch v.Type {
	case gjson.String:
		return v.Str, nil
	case gjson.Null:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformed, field)
	}
}
