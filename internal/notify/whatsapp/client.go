// Package whatsapp sends template messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the client.
type Config struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	Language      string
	HTTPClient    HTTPDoer
}

// Client implements notify.Channel on the Cloud API.
type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	language      string
	client        HTTPDoer
}

// ErrRejected marks a message the provider refused.
var ErrRejected = errors.New("message rejected by provider")

func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		language:      lang,
		client:        client,
	}
}

func (c *Client) Name() string { return "whatsapp" }

type textParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []textParam `json:"parameters"`
}

type language struct {
	Code string `json:"code"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type messageRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         template `json:"template"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts a template message. The message counts as accepted only when the API
// answers 2xx with a message id.
func (c *Client) Send(ctx context.Context, to, templateID string, params []string) (bool, string, error) {
	body := messageRequest{
		MessagingProduct: "whatsapp",
		To:               digits(to),
		Type:             "template",
		Template:         template{Name: templateID, Language: language{Code: c.language}},
	}
	if len(params) > 0 {
		comp := component{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, textParam{Type: "text", Text: p})
		}
		body.Template.Components = []component{comp}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return false, "", fmt.Errorf("encode whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, "", fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, "", ctx.Err()
		}
		return false, "", fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, "", fmt.Errorf("read whatsapp response: %w", err)
	}
	var decoded messageResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if decoded.Error != nil && decoded.Error.Message != "" {
			msg = decoded.Error.Message
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return false, "", fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, msg)
		}
		return false, "", fmt.Errorf("whatsapp api: %d %s", resp.StatusCode, msg)
	}
	if len(decoded.Messages) == 0 || decoded.Messages[0].ID == "" {
		return false, "", fmt.Errorf("%w: response carried no message id", ErrRejected)
	}
	return true, decoded.Messages[0].ID, nil
}

// digits strips formatting; the API expects the number without "+" or spaces.
func digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
