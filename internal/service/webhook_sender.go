package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"signalhub/internal/config"
	"signalhub/internal/domain"
	"signalhub/pkg/e"
)

type WebhookSource interface {
	BRPop(ctx context.Context, timeout time.Duration) (domain.StatusChangedWebhook, error)
}

// WebhookSender drains the status-change queue and POSTs each payload,
// retrying with linear backoff.
type WebhookSender struct {
	logger     *slog.Logger
	cfg        config.WebhookConfig
	queue      WebhookSource
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	observe    func(result string)
}

func NewWebhookSender(logger *slog.Logger, cfg config.WebhookConfig, q WebhookSource) *WebhookSender {
	return &WebhookSender{
		logger:     logger,
		cfg:        cfg,
		queue:      q,
		http:       &http.Client{Timeout: 5 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		observe:    func(string) {},
	}
}

// OnResult is called with "delivered" or "failed" once per payload.
func (s *WebhookSender) OnResult(fn func(result string)) *WebhookSender {
	s.observe = fn
	return s
}

func (s *WebhookSender) WithBackoff(d time.Duration) *WebhookSender {
	s.backoff = d
	return s
}

func (s *WebhookSender) Run(ctx context.Context) {
	s.logger.Info("webhookSender STARTED", slog.String("url", s.cfg.URL))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("webhookSender STOPPED", slog.String("reason", ctx.Err().Error()))
			return
		default:
		}

		payload, err := s.queue.BRPop(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, e.ErrWebHookEmpty) || ctx.Err() != nil {
				continue
			}
			s.logger.Error("BRPop failed", slog.Any("error", err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		s.logger.Info("sending webhook",
			slog.String("report_id", payload.ReportID.String()),
			slog.String("to", string(payload.To)),
		)
		if s.Send(ctx, payload) {
			s.observe("delivered")
		} else {
			s.observe("failed")
		}
	}
}

// Send reports whether the receiver accepted p within maxRetries attempts.
func (s *WebhookSender) Send(ctx context.Context, p domain.StatusChangedWebhook) bool {
	body, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("marshal webhook payload failed", slog.String("error", err.Error()))
		return false
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			s.logger.Info("stop retries due to context cancel")
			return false
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
		if err != nil {
			s.logger.Error("create webhook request failed", slog.String("error", err.Error()))
			return false
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			return true
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		reason := "unknown"
		if err != nil {
			reason = err.Error()
		} else if resp != nil {
			reason = resp.Status
		}

		s.logger.Warn("webhook failed",
			slog.Int("attempt", attempt),
			slog.String("url", s.cfg.URL),
			slog.String("reason", reason),
		)

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
	}
	return false
}
