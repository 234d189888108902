package bot

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	router := gin.New()
	registerRoutes(router, f.orch)
	return router, f
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestWebhookProcessesMessage(t *testing.T) {
	router, f := newTestRouter(t)

	body := `{
		"event": "webhookReceived",
		"messageId": "msg-9",
		"msgContent": {"conversation": "oi"},
		"sender": {"id": "5511999990000", "pushName": "Maria"}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"processed":true`) {
		t.Errorf("body = %q", w.Body.String())
	}
	if got := f.sender.lastTo("5511999990000"); !strings.Contains(got, "CPF") {
		t.Errorf("reply = %q", got)
	}
}

func TestWebhookIgnoresOwnMessages(t *testing.T) {
	router, f := newTestRouter(t)

	body := `{
		"event": "webhookReceived",
		"fromMe": true,
		"msgContent": {"conversation": "eco"},
		"sender": {"id": "5511999990000"}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	router.ServeHTTP(w, req)

	// Still 200 so the gateway does not redeliver, but nothing processed.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"processed":false`) {
		t.Errorf("body = %q", w.Body.String())
	}
	if len(f.sender.sent) != 0 {
		t.Errorf("sent %d messages", len(f.sender.sent))
	}
}

func TestWebhookBadBody(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"processed":false`) {
		t.Errorf("body = %q", w.Body.String())
	}
}
