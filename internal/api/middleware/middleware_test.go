package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"infrasite/internal/auth/authtest"
)

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := authtest.New(t)

	router := gin.New()
	router.GET("/admin", AuthMiddleware(svc), RequireRole("admin"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint(ContextUserID)})
	})

	pair, err := svc.GenerateTokenPair(7, "admin", false)
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}
	editorPair, err := svc.GenerateTokenPair(8, "editor", false)
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"editor", "Bearer " + editorPair.AccessToken, http.StatusForbidden},
		{"admin", "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(router, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d got %d body=%s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRequirePasswordChangeCompleted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := authtest.New(t)

	router := gin.New()
	router.GET("/x", AuthMiddleware(svc), RequirePasswordChangeCompletedMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	pair, err := svc.GenerateTokenPair(1, "admin", true)
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	if w := serve(router, req); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}
}

func TestMetricsSecretMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	open := gin.New()
	open.GET("/metrics", MetricsSecretMiddleware(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := serve(open, httptest.NewRequest(http.MethodGet, "/metrics", nil)); w.Code != http.StatusOK {
		t.Fatalf("open endpoint: expected 200 got %d", w.Code)
	}

	guarded := gin.New()
	guarded.GET("/metrics", MetricsSecretMiddleware("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(guarded, httptest.NewRequest(http.MethodGet, "/metrics", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("no secret: expected 401 got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Metrics-Secret", "s3cret")
	if w := serve(guarded, req); w.Code != http.StatusOK {
		t.Fatalf("header secret: expected 200 got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if w := serve(guarded, req); w.Code != http.StatusOK {
		t.Fatalf("bearer secret: expected 200 got %d", w.Code)
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationIDMiddleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetCorrelationID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	w := serve(router, req)
	if w.Body.String() != "abc-123" || w.Header().Get(CorrelationIDHeader) != "abc-123" {
		t.Fatalf("expected caller id to be reused, got body=%q header=%q", w.Body.String(), w.Header().Get(CorrelationIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "bad id\nwith newline")
	w = serve(router, req)
	if got := w.Body.String(); len(got) != 36 || strings.Contains(got, " ") {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}
