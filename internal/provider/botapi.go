// Package provider holds the outbound clients for both provider
// protocols: the Bot API HTTP client and the MTProto bridge event
// stream.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnauthorized marks a rejected credential. Callers classify it as an
// auth failure, distinct from transport trouble.
var ErrUnauthorized = errors.New("provider: unauthorized")

// BotAPI is a minimal Telegram Bot API client. One instance serves all
// bot sessions; the token is passed per call.
type BotAPI struct {
	base   string
	client *http.Client
}

// NewBotAPI creates a client against the given API base URL.
func NewBotAPI(base string, timeout time.Duration) *BotAPI {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &BotAPI{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

// BotInfo is the getMe result subset the system uses.
type BotInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// GetMe validates a token against the provider and returns the bot's
// identity. Used as the connectivity probe.
func (b *BotAPI) GetMe(ctx context.Context, token string) (*BotInfo, error) {
	raw, err := b.apiCall(ctx, token, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var info BotInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("getMe: decode result: %w", err)
	}
	return &info, nil
}

// SendMessage delivers a text message and returns the provider message
// id.
func (b *BotAPI) SendMessage(ctx context.Context, token string, chatID int64, text string) (int64, error) {
	raw, err := b.apiCall(ctx, token, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return 0, err
	}
	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &sent); err != nil {
		return 0, fmt.Errorf("sendMessage: decode result: %w", err)
	}
	return sent.MessageID, nil
}

// SetWebhook registers the push delivery URL with the provider,
// replacing any previous registration.
func (b *BotAPI) SetWebhook(ctx context.Context, token, url string) error {
	_, err := b.apiCall(ctx, token, "setWebhook", map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "edited_message"},
	})
	return err
}

// DeleteWebhook removes the push registration.
func (b *BotAPI) DeleteWebhook(ctx context.Context, token string) error {
	_, err := b.apiCall(ctx, token, "deleteWebhook", nil)
	return err
}

// apiEnvelope is the Bot API response wrapper.
type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

func (b *BotAPI) apiCall(ctx context.Context, token, method string, params map[string]any) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/bot%s/%s", b.base, token, method)

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !env.OK {
		if env.ErrorCode == http.StatusUnauthorized || env.ErrorCode == http.StatusForbidden {
			return nil, fmt.Errorf("%s: %s: %w", method, env.Description, ErrUnauthorized)
		}
		return nil, fmt.Errorf("%s: api error %d: %s", method, env.ErrorCode, env.Description)
	}
	return env.Result, nil
}
