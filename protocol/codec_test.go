package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeClientJoin(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"joinVillage","villageId":"V1","uid":"alice"}`))
	if err != nil {
		t.Fatalf("decode join: %v", err)
	}
	join, ok := msg.(JoinVillage)
	if !ok {
		t.Fatalf("got %T, want JoinVillage", msg)
	}
	if join.VillageID != "V1" || join.UID != "alice" {
		t.Fatalf("join = %+v", join)
	}
}

func TestDecodeClientMoveOptionalFields(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"move","villageId":"V1","x":10,"y":20}`))
	if err != nil {
		t.Fatalf("decode move: %v", err)
	}
	mv := msg.(Move)
	if mv.X != 10 || mv.Y != 20 || mv.YNorm != nil || mv.FlipX || mv.VX != 0 {
		t.Fatalf("move = %+v", mv)
	}

	msg, err = DecodeClient([]byte(`{"type":"move","villageId":"H-bob","x":5,"yNorm":0.75,"flipX":true,"vx":-300}`))
	if err != nil {
		t.Fatalf("decode interior move: %v", err)
	}
	mv = msg.(Move)
	if mv.YNorm == nil || *mv.YNorm != 0.75 || !mv.FlipX || mv.VX != -300 {
		t.Fatalf("interior move = %+v", mv)
	}
	st := mv.State()
	*mv.YNorm = 0.1
	if *st.YNorm != 0.75 {
		t.Fatalf("State must copy yNorm, got %v", *st.YNorm)
	}
}

func TestDecodeClientRejectsMalformed(t *testing.T) {
	frames := map[string]string{
		"empty":          ``,
		"not json":       `{"type":`,
		"array":          `[1,2]`,
		"no type":        `{"villageId":"V1"}`,
		"numeric type":   `{"type":3}`,
		"empty village":  `{"type":"joinVillage","villageId":""}`,
		"numeric uid":    `{"type":"joinVillage","villageId":"V1","uid":7}`,
		"string x":       `{"type":"move","villageId":"V1","x":"10","y":2}`,
		"missing y":      `{"type":"move","villageId":"V1","x":10}`,
		"string flipX":   `{"type":"move","villageId":"V1","x":1,"y":2,"flipX":"yes"}`,
		"bool vx":        `{"type":"move","villageId":"V1","x":1,"y":2,"vx":true}`,
		"missing villag": `{"type":"move","x":1,"y":2}`,
		"overflow x":     `{"type":"move","villageId":"V1","x":1e400,"y":2}`,
		"overflow y":     `{"type":"move","villageId":"V1","x":1,"y":-1e400}`,
		"overflow yNorm": `{"type":"move","villageId":"V1","x":1,"yNorm":1e999}`,
		"overflow vx":    `{"type":"move","villageId":"V1","x":1,"y":2,"vx":-1e400}`,
	}
	for name, frame := range frames {
		if _, err := DecodeClient([]byte(frame)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: err = %v, want ErrMalformed", name, err)
		}
	}
}

func TestDecodeClientUnknownType(t *testing.T) {
	_, err := DecodeClient([]byte(`{"type":"teleport","villageId":"V1"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	// 服务端消息类型从客户端方向发来也视为未知
	_, err = DecodeClient([]byte(`{"type":"playerUpdate","players":{}}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestEncodePlayerUpdateIsFlat(t *testing.T) {
	b, err := Encode(PlayerUpdate{Players: map[string]MemberState{
		"s1": {X: 10, Y: 20, UID: "alice"},
	}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["type"]) != `"playerUpdate"` {
		t.Fatalf("type = %s", raw["type"])
	}
	if _, ok := raw["players"]; !ok {
		t.Fatalf("players missing in %s", b)
	}

	msg, err := DecodeServer(b)
	if err != nil {
		t.Fatalf("decode server: %v", err)
	}
	pu := msg.(PlayerUpdate)
	if got := pu.Players["s1"]; got.X != 10 || got.Y != 20 || got.UID != "alice" {
		t.Fatalf("s1 = %+v", got)
	}
}

func TestEncodeEmptyPlayerUpdateHasObject(t *testing.T) {
	b, err := Encode(PlayerUpdate{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"type":"playerUpdate","players":{}}` {
		t.Fatalf("encoded = %s", b)
	}
}

func TestEncodeClientFramesDecodeBack(t *testing.T) {
	b, err := Encode(Move{VillageID: "V1", X: 1.5, Y: 2, YNorm: Float(0.5), VX: 300})
	if err != nil {
		t.Fatalf("encode move: %v", err)
	}
	msg, err := DecodeClient(b)
	if err != nil {
		t.Fatalf("decode move %s: %v", b, err)
	}
	if mv := msg.(Move); mv.X != 1.5 || *mv.YNorm != 0.5 || mv.VX != 300 {
		t.Fatalf("move = %+v", mv)
	}

	b, err = Encode(LeaveVillage{})
	if err != nil {
		t.Fatalf("encode leave: %v", err)
	}
	if _, err := DecodeClient(b); err != nil {
		t.Fatalf("decode leave %s: %v", b, err)
	}
}
