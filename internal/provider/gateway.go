package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leadpulse/outreach/internal/config"
	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/httpretry"
	"github.com/leadpulse/outreach/internal/pkg/logger"
)

// GatewayProvider delivers messages through an HTTP JSON gateway. SMS,
// chat, voice-drop and postal all speak the same contract:
//
//	POST {base_url}/v1/messages
//	{"to": "...", "body": "...", "subject": "..."}
//	-> 200 {"message_id": "..."}
//
// Retries on 429/5xx and network errors are handled inside the HTTP
// client; by the time Send sees a bad status, the retry budget is spent.
type GatewayProvider struct {
	channel domain.Channel
	baseURL string
	apiKey  string
	client  httpretry.HTTPDoer
}

// NewGatewayProvider creates a gateway-backed provider for the channel.
func NewGatewayProvider(channel domain.Channel, cfg config.GatewayConfig) *GatewayProvider {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayProvider{
		channel: channel,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
	}
}

// Channel reports the channel this provider serves.
func (p *GatewayProvider) Channel() domain.Channel { return p.channel }

type gatewaySendRequest struct {
	To      string `json:"to"`
	Body    string `json:"body"`
	Subject string `json:"subject,omitempty"`
}

type gatewaySendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Send posts one message to the gateway and returns its message id.
func (p *GatewayProvider) Send(ctx context.Context, identity string, msg *content.Rendered) (string, error) {
	payload, err := json.Marshal(gatewaySendRequest{
		To:      identity,
		Body:    msg.Body,
		Subject: msg.Subject,
	})
	if err != nil {
		return "", Permanent(fmt.Errorf("%s gateway: encode request: %w", p.channel, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", Permanent(fmt.Errorf("%s gateway: build request: %w", p.channel, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", Transient(fmt.Errorf("%s gateway: %w", p.channel, err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out gatewaySendResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return "", Transient(fmt.Errorf("%s gateway: decode response: %w", p.channel, err))
		}
		logger.Debug("gateway send ok",
			"channel", string(p.channel), "identity", identity, "message_id", out.MessageID)
		return out.MessageID, nil

	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity,
		resp.StatusCode == http.StatusGone:
		// The gateway is telling us this recipient will never work.
		return "", Permanent(fmt.Errorf("%s gateway: status %d: %s", p.channel, resp.StatusCode, gatewayErrorText(body)))

	default:
		return "", Transient(fmt.Errorf("%s gateway: status %d: %s", p.channel, resp.StatusCode, gatewayErrorText(body)))
	}
}

func gatewayErrorText(body []byte) string {
	var out gatewaySendResponse
	if err := json.Unmarshal(body, &out); err == nil && out.Error != "" {
		return out.Error
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
