package wa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Opts{
		Host:        srv.URL,
		InstanceID:  "inst-1",
		Token:       "tok-1",
		DedupWindow: -1,
	})
}

func TestSendText(t *testing.T) {
	var gotPath, gotAuth, gotInstance string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotInstance = r.URL.Query().Get("instanceId")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{}`))
	})

	if err := c.SendText(context.Background(), "5511999990000", "olá"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if gotPath != "/v1/message/send-text" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotInstance != "inst-1" {
		t.Errorf("instanceId = %q", gotInstance)
	}
	if gotBody["phone"] != "5511999990000" || gotBody["message"] != "olá" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestSendText_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if err := c.SendText(context.Background(), "551199", "oi"); err == nil {
		t.Fatal("want error on 502")
	}
}

func TestSendText_Dedup(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	c := New(Opts{Host: srv.URL, InstanceID: "i", Token: "t"})

	ctx := context.Background()
	if err := c.SendText(ctx, "551199", "mesma mensagem"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	err := c.SendText(ctx, "551199", "mesma mensagem")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("gateway called %d times", calls)
	}

	// Different recipient is not a duplicate.
	if err := c.SendText(ctx, "551188", "mesma mensagem"); err != nil {
		t.Errorf("other recipient: %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/message/read-message" {
			t.Errorf("path = %q", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{}`))
	})

	if err := c.MarkRead(context.Background(), "551199", "msg-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if gotBody["messageId"] != "msg-1" {
		t.Errorf("body = %v", gotBody)
	}
}

// -------------------------------------------------------------------------
// Webhook parsing
// -------------------------------------------------------------------------

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"event": "webhookReceived",
		"fromMe": false,
		"messageId": "msg-42",
		"moment": 1756720000,
		"msgContent": {"conversation": "meu cpf é 12345678909"},
		"sender": {"id": "5511999990000", "pushName": "Maria"}
	}`)

	in, ok := ParseWebhook(body)
	if !ok {
		t.Fatal("ok = false")
	}
	if in.Phone != "5511999990000" || in.Name != "Maria" {
		t.Errorf("inbound = %+v", in)
	}
	if in.Text != "meu cpf é 12345678909" || in.MessageID != "msg-42" {
		t.Errorf("inbound = %+v", in)
	}
}

func TestParseWebhook_Rejects(t *testing.T) {
	cases := map[string]string{
		"own message":   `{"event":"webhookReceived","fromMe":true,"msgContent":{"conversation":"x"},"sender":{"id":"1"}}`,
		"other event":   `{"event":"connectionUpdate"}`,
		"no sender":     `{"event":"webhookReceived","msgContent":{"conversation":"x"},"sender":{}}`,
		"no text":       `{"event":"webhookReceived","sender":{"id":"1"},"msgContent":{}}`,
		"not json":      `nope`,
	}
	for name, body := range cases {
		if _, ok := ParseWebhook([]byte(body)); ok {
			t.Errorf("%s: ok = true", name)
		}
	}
}

func TestParseWebhook_TextFallbacks(t *testing.T) {
	body := []byte(`{"event":"webhookReceived","sender":{"id":"1"},"msgContent":{"text":"via text"}}`)
	if in, ok := ParseWebhook(body); !ok || in.Text != "via text" {
		t.Errorf("text field: ok=%v in=%+v", ok, in)
	}

	body = []byte(`{"event":"webhookReceived","sender":{"id":"1"},"msgContent":{"listResponseMessage":{"title":"Concordo com tudo"}}}`)
	in, ok := ParseWebhook(body)
	if !ok || in.Text != "[MENU] Concordo com tudo" {
		t.Errorf("list response: ok=%v in=%+v", ok, in)
	}
}

// -------------------------------------------------------------------------
// Dedup cache
// -------------------------------------------------------------------------

func TestDedup_Expiry(t *testing.T) {
	d := NewDedup(50 * time.Millisecond)
	if d.Seen("551199", "oi") {
		t.Fatal("first message marked duplicate")
	}
	if !d.Seen("551199", "oi") {
		t.Fatal("immediate repeat not marked duplicate")
	}
	time.Sleep(80 * time.Millisecond)
	if d.Seen("551199", "oi") {
		t.Error("repeat after window marked duplicate")
	}
}

func TestDedup_TruncatesLongContent(t *testing.T) {
	d := NewDedup(time.Minute)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	// Same first 100 bytes, different tails: treated as the same message.
	a := string(long) + "x"
	b := string(long) + "y"
	if d.Seen("551199", a) {
		t.Fatal("first marked duplicate")
	}
	if !d.Seen("551199", b) {
		t.Error("same-prefix message not marked duplicate")
	}
}
