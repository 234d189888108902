// Package classify calls an OpenAI-compatible chat-completions endpoint for
// the two judgment calls the flow delegates to a model: reading an id out of
// a free-form first message, and proposing which system entries of a
// finished conversation log are noise.
//
// Every call degrades deterministically when the endpoint is unreachable,
// so the flow never depends on the model being up.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imobia/atende/internal/validate"
)

// Opts configures a Client.
type Opts struct {
	BaseURL string // default https://api.openai.com
	Key     string
	Model   string        // default gpt-4o-mini
	Timeout time.Duration // default 30s
}

// Client is a minimal chat-completions caller.
type Client struct {
	baseURL string
	key     string
	model   string
	http    *http.Client
}

func New(opts Opts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: opts.BaseURL,
		key:     opts.Key,
		model:   opts.Model,
		http:    &http.Client{Timeout: opts.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("classify: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("classify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify: call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classify: model returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("classify: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("classify: empty response")
	}
	return out.Choices[0].Message.Content, nil
}

// Intent is what the model read out of a first-contact message.
type Intent struct {
	NationalID string // digit-only, "" when absent
	Greeting   bool
	Reply      string // suggested reply, may be empty
}

const interpretSystem = `Você é uma corretora de locação profissional e eficiente chamada Bia.
Seu objetivo é identificar informações importantes para o processo de locação.
Mantenha um tom profissional e direto.`

const interpretPrompt = `Analise a mensagem do cliente:

Mensagem: %s

1. Identifique se é uma saudação ou primeiro contato
2. Procure por um CPF na mensagem (11 dígitos, com ou sem pontuação)

Retorne apenas um objeto JSON com:
- cpf: o CPF encontrado (apenas números), ou null
- saudacao: true se for saudação ou primeiro contato
- resposta: mensagem curta e apropriada para o cliente, ou null`

type interpretResult struct {
	CPF      string `json:"cpf"`
	Saudacao bool   `json:"saudacao"`
	Resposta string `json:"resposta"`
}

// Interpret asks the model what a first-contact message contains. On any
// failure it falls back to the deterministic id scan, so an unreachable
// model only costs the natural-language touches.
func (c *Client) Interpret(ctx context.Context, message string) Intent {
	raw, err := c.complete(ctx, interpretSystem, fmt.Sprintf(interpretPrompt, message), 200)
	if err != nil {
		return fallbackIntent(message)
	}

	var res interpretResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &res); err != nil {
		return fallbackIntent(message)
	}

	intent := Intent{Greeting: res.Saudacao, Reply: res.Resposta}
	if digits := validate.DigitsOnly(res.CPF); len(digits) == 11 {
		intent.NationalID = digits
	} else if found := validate.FindNationalID(message); found != "" {
		// Trust the deterministic scan over a model miss.
		intent.NationalID = found
	}
	return intent
}

func fallbackIntent(message string) Intent {
	return Intent{
		NationalID: validate.FindNationalID(message),
		Greeting:   validate.FindNationalID(message) == "",
	}
}

// LogEntry is one line of a finished conversation, as shown to the model.
type LogEntry struct {
	Index   int    `json:"index"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

const removalSystem = `Você é um especialista em limpeza de registros de conversa de WhatsApp.
Identifique mensagens do sistema que são ruído: duplicatas, logs técnicos e
menus repetidos. Nunca marque mensagens de clientes ou atendentes.`

const removalPrompt = `Analise as mensagens abaixo e indique quais devem ser removidas do
registro consolidado. Considere apenas mensagens com sender "system".

Mensagens:
%s

Retorne apenas um objeto JSON: {"remover": [índices]}`

type removalResult struct {
	Remover []int `json:"remover"`
}

// ProposeRemovals asks the model which entries are removable noise. The
// caller is expected to re-check the proposal; this function only truncates
// each entry to keep the request bounded. On failure it proposes nothing.
func (c *Client) ProposeRemovals(ctx context.Context, entries []LogEntry) []int {
	show := make([]LogEntry, len(entries))
	for i, e := range entries {
		if len(e.Content) > 500 {
			e.Content = e.Content[:500]
		}
		show[i] = e
	}
	payload, err := json.Marshal(show)
	if err != nil {
		return nil
	}

	raw, err := c.complete(ctx, removalSystem, fmt.Sprintf(removalPrompt, payload), 500)
	if err != nil {
		return nil
	}
	var res removalResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &res); err != nil {
		return nil
	}
	return res.Remover
}

// extractJSON strips markdown fences the model sometimes wraps around JSON.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
