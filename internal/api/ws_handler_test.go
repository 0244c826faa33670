package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"infrasite/internal/auth/authtest"
)

type fakeFeed struct {
	ch chan []byte
}

func (f *fakeFeed) Subscribe(ctx context.Context) (<-chan []byte, func() error) {
	return f.ch, func() error { return nil }
}

func dialWs(t *testing.T, h *WsHandler) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/admin/ws", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/admin/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWsHandler_RejectsBadCredentials(t *testing.T) {
	svc := authtest.New(t)
	refreshOnly, err := svc.GenerateTokenPair(1, "admin", false)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	viewer, err := svc.GenerateTokenPair(2, "viewer", false)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	pending, err := svc.GenerateTokenPair(3, "admin", true)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	cases := []struct {
		name string
		msg  wsAuthMessage
		want string
	}{
		{"wrong type", wsAuthMessage{Type: "hello", Token: "x"}, errWsAuthRequired.Error()},
		{"garbage token", wsAuthMessage{Type: "auth", Token: "not-a-jwt"}, errWsUnauthorized.Error()},
		{"refresh token", wsAuthMessage{Type: "auth", Token: refreshOnly.RefreshToken}, errWsUnauthorized.Error()},
		{"unknown role", wsAuthMessage{Type: "auth", Token: viewer.AccessToken}, errWsForbidden.Error()},
		{"password change pending", wsAuthMessage{Type: "auth", Token: pending.AccessToken}, errWsPasswordReset.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := dialWs(t, NewWsHandler(&fakeFeed{ch: make(chan []byte)}, svc, nil, nil))
			if err := conn.WriteJSON(tc.msg); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, _, err := conn.ReadMessage()
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				t.Fatalf("expected close error, got %v", err)
			}
			if closeErr.Code != websocket.ClosePolicyViolation || closeErr.Text != tc.want {
				t.Fatalf("unexpected close %d %q", closeErr.Code, closeErr.Text)
			}
		})
	}
}

func TestWsHandler_ForwardsEvents(t *testing.T) {
	svc := authtest.New(t)
	pair, err := svc.GenerateTokenPair(1, "editor", false)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	feed := &fakeFeed{ch: make(chan []byte, 1)}
	conn := dialWs(t, NewWsHandler(feed, svc, nil, nil))

	if err := conn.WriteJSON(wsAuthMessage{Type: "auth", Token: pair.AccessToken}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, ready, err := conn.ReadMessage()
	if err != nil || !strings.Contains(string(ready), `"ready"`) {
		t.Fatalf("expected ready message, got %s err=%v", ready, err)
	}

	feed.ch <- []byte(`{"type":"order.created","reference":"ABCD2345"}`)
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), "ABCD2345") {
		t.Fatalf("unexpected payload %s", msg)
	}
}
