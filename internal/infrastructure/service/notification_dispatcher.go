package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/circuitbreaker"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION DISPATCHER
// Wraps the concrete delivery channel with retries and a circuit breaker.
// Delivery is best-effort: the engine records the outcome on the event bus
// and moves on; it never blocks an activity on a webhook.
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher delivers notifications through an inner sender with retry and
// circuit breaking, and publishes sent/failed events.
type Dispatcher struct {
	inner     notification.Sender
	publisher shared.EventPublisher
	breaker   *circuitbreaker.CircuitBreaker
	retrier   *retry.Retrier
	log       *logger.Logger
}

// NewDispatcher creates a Dispatcher around the given delivery channel.
func NewDispatcher(inner notification.Sender, publisher shared.EventPublisher, log *logger.Logger) *Dispatcher {
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}

	return &Dispatcher{
		inner:     inner,
		publisher: publisher,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "notifications",
			FailureThreshold: 5,
			OpenTimeout:      time.Minute,
		}),
		retrier: retry.NotifierRetrier(),
		log:     log.With(logger.Component("notification_dispatcher")),
	}
}

// Send implements notification.Sender.
func (d *Dispatcher) Send(ctx context.Context, n *notification.Notification) error {
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.retrier.Do(ctx, func(ctx context.Context) error {
			return d.inner.Send(ctx, n)
		})
	})
	if err != nil {
		d.log.Error("notification delivery failed",
			logger.UserID(n.UserID.String()),
			logger.String("type", string(n.Type)),
			logger.Err(err),
		)
		d.publish(shared.EventNotificationFailed, n)
		return fmt.Errorf("dispatch notification: %w", err)
	}

	d.log.Debug("notification delivered",
		logger.UserID(n.UserID.String()),
		logger.String("type", string(n.Type)),
	)
	d.publish(shared.EventNotificationSent, n)
	return nil
}

func (d *Dispatcher) publish(eventType shared.EventType, n *notification.Notification) {
	event := shared.NewBaseEvent(eventType, n.UserID.String())
	if err := d.publisher.Publish(event); err != nil {
		d.log.Warn("publish notification event failed", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK SENDER
// ══════════════════════════════════════════════════════════════════════════════

// WebhookSenderConfig configures WebhookSender.
type WebhookSenderConfig struct {
	// URL receives a POST per notification.
	URL string

	// ServiceKey is sent as the X-Service-Key header.
	ServiceKey string

	// Timeout per request.
	Timeout time.Duration
}

// WebhookSender delivers notifications as JSON POSTs to the platform's
// notification webhook.
type WebhookSender struct {
	cfg    WebhookSenderConfig
	client *http.Client
}

// NewWebhookSender creates a WebhookSender.
func NewWebhookSender(cfg WebhookSenderConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook sender: URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &WebhookSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type webhookPayload struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Priority  string                 `json:"priority"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Send implements notification.Sender.
func (s *WebhookSender) Send(ctx context.Context, n *notification.Notification) error {
	payload := webhookPayload{
		ID:        n.ID,
		UserID:    n.UserID.String(),
		Type:      string(n.Type),
		Priority:  n.Priority.String(),
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal notification: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.ServiceKey != "" {
		req.Header.Set("X-Service-Key", s.cfg.ServiceKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("webhook request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// 4xx means the payload will never be accepted; retrying is noise.
		return retry.Permanent(fmt.Errorf("webhook rejected notification: status %d", resp.StatusCode))
	default:
		return retry.Retryable(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG SENDER
// ══════════════════════════════════════════════════════════════════════════════

// LogSender writes notifications to the log instead of delivering them.
// Used in development and as a safe default when no webhook is configured.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.With(logger.Component("log_sender"))}
}

// Send implements notification.Sender.
func (s *LogSender) Send(_ context.Context, n *notification.Notification) error {
	s.log.Info("notification",
		logger.UserID(n.UserID.String()),
		logger.String("type", string(n.Type)),
		logger.String("title", n.Title),
		logger.String("body", n.Body),
	)
	return nil
}
