package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func completionServer(t *testing.T, content string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return New(Opts{BaseURL: srv.URL, Key: "test-key", Model: "test-model"})
}

func TestInterpret(t *testing.T) {
	c := completionServer(t, `{"cpf": "123.456.789-09", "saudacao": false, "resposta": "Confirmo o recebimento do CPF."}`)

	intent := c.Interpret(context.Background(), "meu cpf é 123.456.789-09")
	if intent.NationalID != "12345678909" {
		t.Errorf("id = %q", intent.NationalID)
	}
	if intent.Greeting {
		t.Error("greeting = true")
	}
	if intent.Reply == "" {
		t.Error("reply empty")
	}
}

func TestInterpret_FencedJSON(t *testing.T) {
	c := completionServer(t, "```json\n{\"cpf\": null, \"saudacao\": true, \"resposta\": \"Olá!\"}\n```")

	intent := c.Interpret(context.Background(), "oi, tudo bem?")
	if intent.NationalID != "" || !intent.Greeting {
		t.Errorf("intent = %+v", intent)
	}
}

func TestInterpret_ModelMissesID(t *testing.T) {
	// Model answers without the id, but the message carries one; the
	// deterministic scan must win.
	c := completionServer(t, `{"cpf": null, "saudacao": true, "resposta": null}`)

	intent := c.Interpret(context.Background(), "bom dia, 12345678909")
	if intent.NationalID != "12345678909" {
		t.Errorf("id = %q", intent.NationalID)
	}
}

func TestInterpret_Fallback(t *testing.T) {
	c := New(Opts{BaseURL: "http://127.0.0.1:1", Key: "k", Timeout: time.Second})

	intent := c.Interpret(context.Background(), "segue meu cpf 123.456.789-09")
	if intent.NationalID != "12345678909" {
		t.Errorf("id = %q", intent.NationalID)
	}

	intent = c.Interpret(context.Background(), "olá, boa tarde")
	if intent.NationalID != "" || !intent.Greeting {
		t.Errorf("intent = %+v", intent)
	}
}

func TestProposeRemovals(t *testing.T) {
	c := completionServer(t, `{"remover": [0, 2]}`)

	got := c.ProposeRemovals(context.Background(), []LogEntry{
		{Index: 0, Sender: "system", Content: "menu"},
		{Index: 1, Sender: "customer", Content: "sim"},
		{Index: 2, Sender: "system", Content: "menu"},
	})
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("got = %v", got)
	}
}

func TestProposeRemovals_TruncatesContent(t *testing.T) {
	var sent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		sent = string(raw)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"remover\":[]}"}}]}`)
	}))
	t.Cleanup(srv.Close)
	c := New(Opts{BaseURL: srv.URL, Key: "k"})

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	c.ProposeRemovals(context.Background(), []LogEntry{{Index: 0, Sender: "system", Content: string(long)}})

	if len(sent) > 3000 {
		t.Errorf("request body not truncated: %d bytes", len(sent))
	}
}

func TestProposeRemovals_Unavailable(t *testing.T) {
	c := New(Opts{BaseURL: "http://127.0.0.1:1", Key: "k", Timeout: time.Second})
	if got := c.ProposeRemovals(context.Background(), []LogEntry{{Index: 0, Sender: "system"}}); got != nil {
		t.Errorf("got = %v, want nil", got)
	}
}
