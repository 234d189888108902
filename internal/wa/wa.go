// Package wa is the W-API WhatsApp gateway client: outbound text messages,
// read receipts, and inbound webhook parsing.
package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ErrDuplicate is returned by SendText when the same message was already
// sent to the recipient inside the dedup window.
var ErrDuplicate = errors.New("wa: duplicate message suppressed")

// Sender is the outbound surface the orchestrator depends on. Satisfied by
// *Client and by test fakes.
type Sender interface {
	SendText(ctx context.Context, phone, message string) error
	MarkRead(ctx context.Context, phone, messageID string) error
}

// Opts configures a Client.
type Opts struct {
	Host        string // default https://api.w-api.app
	InstanceID  string
	Token       string
	DedupWindow time.Duration // default 5m, 0 keeps the default, negative disables
	Timeout     time.Duration // default 15s
}

// Client talks to the W-API gateway.
type Client struct {
	host       string
	instanceID string
	token      string
	http       *http.Client
	dedup      *Dedup
}

func New(opts Opts) *Client {
	if opts.Host == "" {
		opts.Host = "https://api.w-api.app"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	var dedup *Dedup
	if opts.DedupWindow >= 0 {
		window := opts.DedupWindow
		if window == 0 {
			window = 5 * time.Minute
		}
		dedup = NewDedup(window)
	}
	return &Client{
		host:       opts.Host,
		instanceID: opts.InstanceID,
		token:      opts.Token,
		http:       &http.Client{Timeout: opts.Timeout},
		dedup:      dedup,
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wa: encode payload: %w", err)
	}

	url := fmt.Sprintf("%s%s?instanceId=%s", c.host, path, c.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("wa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wa: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wa: %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// SendText delivers one text message. Identical content to the same phone
// inside the dedup window is suppressed with ErrDuplicate.
func (c *Client) SendText(ctx context.Context, phone, message string) error {
	if c.dedup != nil && c.dedup.Seen(phone, message) {
		log.Printf("wa: suppressed duplicate to %s", phone)
		return ErrDuplicate
	}
	return c.post(ctx, "/v1/message/send-text", map[string]any{
		"phone":        phone,
		"message":      message,
		"delayMessage": 2,
	})
}

// MarkRead flags an inbound message as read on the participant's side.
func (c *Client) MarkRead(ctx context.Context, phone, messageID string) error {
	return c.post(ctx, "/v1/message/read-message", map[string]any{
		"phone":     phone,
		"messageId": messageID,
	})
}

// Inbound is one parsed webhook delivery.
type Inbound struct {
	Phone     string
	Name      string
	MessageID string
	Text      string
	Moment    int64
}

type webhookPayload struct {
	Event      string `json:"event"`
	FromMe     bool   `json:"fromMe"`
	MessageID  string `json:"messageId"`
	Moment     int64  `json:"moment"`
	MsgContent struct {
		Conversation string `json:"conversation"`
		Text         string `json:"text"`
		Message      string `json:"message"`
		ListResponse *struct {
			Title string `json:"title"`
		} `json:"listResponseMessage"`
	} `json:"msgContent"`
	Sender struct {
		ID       string `json:"id"`
		PushName string `json:"pushName"`
	} `json:"sender"`
}

// ParseWebhook decodes a W-API webhook body. ok is false for deliveries the
// flow must ignore: unsupported events, our own outbound echoes, and
// payloads with no sender or text.
func ParseWebhook(body []byte) (Inbound, bool) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Inbound{}, false
	}
	if p.Event != "webhookReceived" || p.FromMe {
		return Inbound{}, false
	}

	text := p.MsgContent.Conversation
	if text == "" {
		text = p.MsgContent.Text
	}
	if text == "" {
		text = p.MsgContent.Message
	}
	if text == "" && p.MsgContent.ListResponse != nil {
		text = "[MENU] " + p.MsgContent.ListResponse.Title
	}

	if p.Sender.ID == "" || text == "" {
		return Inbound{}, false
	}
	return Inbound{
		Phone:     p.Sender.ID,
		Name:      p.Sender.PushName,
		MessageID: p.MessageID,
		Text:      text,
		Moment:    p.Moment,
	}, true
}
