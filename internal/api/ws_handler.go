package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"infrasite/internal/auth"
	"infrasite/internal/database"
	"infrasite/internal/events"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// WsHandler relays admin events to dashboard clients over WebSocket.
type WsHandler struct {
	feed        events.Feed
	authService *auth.AuthService
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

func NewWsHandler(feed events.Feed, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WsHandler{
		feed:        feed,
		authService: authService,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return originAllowed(r, allowedOrigins) },
		},
	}
}

// originAllowed accepts listed origins, or same-host origins when none are configured.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	return slices.Contains(allowed, origin)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HandleConnection upgrades the request, waits for the auth message and then
// forwards every admin event until either side goes away.
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	claims, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		writeClose(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(claims.UserID)), slog.String("role", claims.Role))
	log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client sends nothing after auth; reading only detects the disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.relay(ctx, conn)
	log.Info("websocket connection closed", slog.Any("reason", err))
}

var (
	errWsAuthRequired  = errors.New("auth required")
	errWsUnauthorized  = errors.New("unauthorized")
	errWsForbidden     = errors.New("forbidden")
	errWsPasswordReset = errors.New("password change required")
)

func (h *WsHandler) authenticate(conn *websocket.Conn) (*auth.TokenClaims, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var msg wsAuthMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, errWsAuthRequired
	}
	if msg.Type != "auth" || msg.Token == "" {
		return nil, errWsAuthRequired
	}
	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil || claims.TokenType != auth.TokenTypeAccess {
		return nil, errWsUnauthorized
	}
	if claims.Role != database.RoleAdmin && claims.Role != database.RoleEditor {
		return nil, errWsForbidden
	}
	if claims.MustChangePassword {
		return nil, errWsPasswordReset
	}
	return claims, nil
}

func (h *WsHandler) relay(ctx context.Context, conn *websocket.Conn) error {
	payloads, release := h.feed.Subscribe(ctx)
	defer release()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	if err := writeJSON(conn, gin.H{"type": "ready"}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-payloads:
			if !ok {
				return errors.New("event feed closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
