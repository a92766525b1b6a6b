// Package publish implementa o colaborador de publicação como um webhook
// HTTP: a plataforma de mensageria recebe a menfess aprovada e devolve a
// referência da mensagem no canal.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

// WebhookPublisher envia a menfess por POST JSON. O payload nunca inclui a
// identidade do remetente; o cabeçalho Idempotency-Key carrega o id da
// menfess para que o receptor possa deduplicar retries.
type WebhookPublisher struct {
	url    string
	client *http.Client
}

var _ ports.Publisher = (*WebhookPublisher)(nil)

type leveledSlog struct {
	inner *slog.Logger
}

// retries intermediários saem como WARN, não ERROR
func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}
func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}
func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}
func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

// NewWebhookPublisher cria o publisher com retries limitados no client HTTP.
func NewWebhookPublisher(url string, logger *slog.Logger) (*WebhookPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("publish webhook URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})

	return &WebhookPublisher{
		url:    url,
		client: retryClient.StandardClient(),
	}, nil
}

type publishRequest struct {
	MenfessID int64    `json:"menfess_id"`
	Body      string   `json:"body"`
	Hashtags  []string `json:"hashtags"`
}

type publishResponse struct {
	ChannelRef string `json:"channel_ref"`
}

// Publish envia a menfess e retorna a referência da mensagem publicada.
func (p *WebhookPublisher) Publish(ctx context.Context, m *domain.Menfess) (string, error) {
	payload, err := json.Marshal(publishRequest{
		MenfessID: m.ID,
		Body:      m.Body,
		Hashtags:  m.Hashtags,
	})
	if err != nil {
		return "", fmt.Errorf("encode publish payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", strconv.FormatInt(m.ID, 10))

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("publish webhook: unexpected status %d", resp.StatusCode)
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	if out.ChannelRef == "" {
		return "", fmt.Errorf("publish webhook: empty channel_ref in response")
	}
	return out.ChannelRef, nil
}
