// Package webhooks forwards domain events to operator-configured HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/consumers"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	consumerName = "webhooks"

	SignatureHeader = "X-Cribnosh-Signature"
	EventHeader     = "X-Cribnosh-Event"
	DeliveryHeader  = "X-Cribnosh-Delivery"

	defaultTimeout       = 10 * time.Second
	responseBodyReadSize = 512
)

// Delivery is the JSON body posted to every target.
type Delivery struct {
	ID         uuid.UUID             `json:"id"`
	Type       enums.OutboxEventType `json:"type"`
	OccurredAt time.Time             `json:"occurred_at"`
	Actor      *outbox.ActorRef      `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

// Dispatcher posts every domain event to each configured target. Any failed
// target fails the whole delivery so Pub/Sub redelivers it; receivers dedupe
// on the delivery header.
type Dispatcher struct {
	targets    []string
	secret     []byte
	httpClient *http.Client
	logg       *logger.Logger
}

// Option configures optional dispatcher behavior.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.httpClient = client
		}
	}
}

func NewDispatcher(cfg config.WebhooksConfig, logg *logger.Logger, opts ...Option) (*Dispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	targets := make([]string, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		if trimmed := strings.TrimSpace(target); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one webhook target required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("webhook secret required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	d := &Dispatcher{
		targets:    targets,
		secret:     []byte(cfg.Secret),
		httpClient: &http.Client{Timeout: timeout},
		logg:       logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

func (d *Dispatcher) Name() string { return consumerName }

func (d *Dispatcher) Handles(eventType enums.OutboxEventType) bool { return eventType.IsValid() }

func (d *Dispatcher) Handle(ctx context.Context, event consumers.Event) error {
	body, err := json.Marshal(Delivery{
		ID:         event.ID,
		Type:       event.Type,
		OccurredAt: event.Envelope.OccurredAt,
		Actor:      event.Envelope.Actor,
		Data:       event.Envelope.Data,
	})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}
	signature := Sign(d.secret, body)

	var errs error
	for _, target := range d.targets {
		if err := d.post(ctx, target, event, body, signature); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID.String(),
		"event_type": string(event.Type),
	})
	if errs != nil {
		d.logg.Warn(logCtx, "webhook delivery failed: "+errs.Error())
		return errs
	}
	d.logg.Debug(logCtx, "webhook delivered")
	return nil
}

func (d *Dispatcher) post(ctx context.Context, target string, event consumers.Event, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(EventHeader, string(event.Type))
	req.Header.Set(DeliveryHeader, event.ID.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadSize))
		return fmt.Errorf("post %s: status %d: %s", target, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body, prefixed with the algorithm.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}
