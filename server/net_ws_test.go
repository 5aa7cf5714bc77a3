package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"villagesync/protocol"
)

func testConnConfig() ConnConfig {
	return ConnConfig{
		PingInterval:  time.Second,
		PongWait:      2 * time.Second,
		WriteWait:     time.Second,
		SendQueue:     16,
		MaxFrameBytes: 4096,
	}
}

func startServer(t *testing.T, verifier *TokenVerifier) (*Hub, *httptest.Server) {
	t.Helper()
	return startServerWith(t, verifier, testConnConfig())
}

func startServerWith(t *testing.T, verifier *TokenVerifier, cc ConnConfig) (*Hub, *httptest.Server) {
	t.Helper()
	h := startHub(t, HubOptions{})
	ws := NewHandler(h, HandlerOptions{Conn: cc, Verifier: verifier})
	srv := httptest.NewServer(NewMux(Routes{Hub: h, WS: ws}))
	t.Cleanup(srv.Close)
	return h, srv
}

func wsURL(srv *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	t.Cleanup(func() { _ = c.Close() })

	msg := readServer(t, c)
	w, ok := msg.(protocol.Welcome)
	if !ok || w.SessionID == "" {
		t.Fatalf("first message = %#v, want welcome", msg)
	}
	return c, w.SessionID
}

func readServer(t *testing.T, c *websocket.Conn) protocol.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeServer(b)
	if err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return msg
}

func readUpdate(t *testing.T, c *websocket.Conn) protocol.PlayerUpdate {
	t.Helper()
	for {
		if pu, ok := readServer(t, c).(protocol.PlayerUpdate); ok {
			return pu
		}
	}
}

func write(t *testing.T, c *websocket.Conn, msg protocol.Message) {
	t.Helper()
	b, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocketJoinMoveAndDisconnect(t *testing.T) {
	_, srv := startServer(t, nil)

	a, idA := dial(t, wsURL(srv, ""))
	b, idB := dial(t, wsURL(srv, ""))

	write(t, a, protocol.JoinVillage{VillageID: "V1", UID: "alice"})
	readUpdate(t, a)
	write(t, b, protocol.JoinVillage{VillageID: "V1", UID: "bob"})
	readUpdate(t, a)
	readUpdate(t, b)

	write(t, a, protocol.Move{VillageID: "V1", X: 10, Y: 20, YNorm: protocol.Float(0.4), FlipX: true, VX: 120})
	pu := readUpdate(t, b)
	st := pu.Players[idA]
	if st.X != 10 || st.Y != 20 || st.YNorm == nil || *st.YNorm != 0.4 || !st.FlipX || st.VX != 120 || st.UID != "alice" {
		t.Fatalf("state of A seen by B = %+v", st)
	}

	// 不发 leaveVillage 直接断开
	_ = a.Close()
	pu = readUpdate(t, b)
	if _, ok := pu.Players[idA]; ok {
		t.Fatalf("A still present after disconnect: %v", pu.Players)
	}
	if _, ok := pu.Players[idB]; !ok || len(pu.Players) != 1 {
		t.Fatalf("players = %v, want only B", pu.Players)
	}
}

func TestWebSocketOversizedFrameClosesConnection(t *testing.T) {
	_, srv := startServer(t, nil)
	c, _ := dial(t, wsURL(srv, ""))

	big := `{"type":"joinVillage","villageId":"` + strings.Repeat("x", 8192) + `"}`
	if err := c.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWebSocketHeartbeatDropsSilentPeer(t *testing.T) {
	cc := testConnConfig()
	cc.PingInterval = 50 * time.Millisecond
	cc.PongWait = 300 * time.Millisecond
	_, srv := startServerWith(t, nil, cc)

	silent, idSilent := dial(t, wsURL(srv, ""))
	// 不回 pong，之后也不再读：模拟半开连接
	silent.SetPingHandler(func(string) error { return nil })
	peer, idPeer := dial(t, wsURL(srv, ""))

	start := time.Now()
	write(t, silent, protocol.JoinVillage{VillageID: "V1"})
	write(t, peer, protocol.JoinVillage{VillageID: "V1"})

	sawSilent := false
	for {
		pu := readUpdate(t, peer)
		_, silentThere := pu.Players[idSilent]
		if silentThere {
			sawSilent = true
			continue
		}
		if _, ok := pu.Players[idPeer]; ok && sawSilent {
			break
		}
		if time.Since(start) > 3*time.Second {
			t.Fatalf("silent peer never dropped; players = %v", pu.Players)
		}
	}
	if elapsed := time.Since(start); elapsed < cc.PongWait {
		t.Fatalf("silent peer dropped after %s, before pong wait %s", elapsed, cc.PongWait)
	}
}

func TestWebSocketRequiresTokenWhenEnabled(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")
	_, srv := startServer(t, verifier)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err == nil {
		t.Fatalf("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %v, want 401", resp)
	}

	token, err := verifier.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, id := dial(t, wsURL(srv, "token="+token))
	write(t, c, protocol.JoinVillage{VillageID: "V1"})
	pu := readUpdate(t, c)
	if pu.Players[id].UID != "alice" {
		t.Fatalf("uid = %q, want verified alice", pu.Players[id].UID)
	}
}

func TestHealthz(t *testing.T) {
	_, srv := startServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
