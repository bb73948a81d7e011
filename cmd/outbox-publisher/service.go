package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	backlogEvery          = 15 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	Backlog(ctx context.Context, maxAttempts int) (outbox.Backlog, error)
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events onto Pub/Sub. Each batch is claimed with
// FOR UPDATE SKIP LOCKED inside one transaction, so publishers can run side
// by side without double-sending.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	dlq          dlqRepository
	metrics      *metrics.OutboxMetrics
	publishers   *publisherCache
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	for _, dep := range []struct {
		ok   bool
		name string
	}{
		{params.Config != nil, "config"},
		{params.Logger != nil, "logger"},
		{params.DB != nil, "database client"},
		{params.PubSub != nil, "pubsub client"},
		{params.Repository != nil, "outbox repository"},
		{params.Registry != nil, "event registry"},
		{params.DLQRepository != nil, "dlq repository"},
	} {
		if !dep.ok {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		publishers:   newPublisherCache(factory),
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. An empty batch waits one poll interval; a
// failed batch backs off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	defer s.publishers.stop()

	wait := time.Duration(0)
	var observed time.Time
	for {
		if err := sleep(ctx, withJitter(wait)); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}
		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, s.pollInterval, maxBackoff)
		case processed:
			wait = 0
		default:
			wait = s.pollInterval
		}
		if time.Since(observed) >= backlogEvery {
			s.observeBacklog(ctx)
			observed = time.Now()
		}
	}
}

func (s *Service) observeBacklog(ctx context.Context) {
	backlog, err := s.repo.Backlog(ctx, s.maxAttempts)
	if err != nil {
		s.logg.Warn(ctx, "outbox backlog query failed: "+err.Error())
		return
	}
	var age time.Duration
	if backlog.Oldest != nil {
		age = time.Since(*backlog.Oldest)
	}
	s.metrics.SetBacklog(backlog.Pending, age)
}

// pending is one claimed row between publish and bookkeeping.
type pending struct {
	event    models.OutboxEvent
	fields   map[string]any
	result   publishResult
	err      error
	terminal bool
}

// processBatch claims a batch, starts every publish before waiting on any of
// them, then settles rows in fetch order. Only bookkeeping failures abort the
// transaction; publish failures are written to the row.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		batch := make([]*pending, 0, len(events))
		for _, event := range events {
			batch = append(batch, s.start(publishCtx, event))
		}
		for _, p := range batch {
			if err := s.settle(ctx, publishCtx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) start(ctx context.Context, event models.OutboxEvent) *pending {
	p := &pending{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		p.fields = eventFields(event, outbox.PayloadEnvelope{}, "")
		p.err, p.terminal = err, true
		return p
	}
	topic := resolved.Descriptor.Topic
	p.fields = eventFields(event, resolved.Envelope, topic)

	pub := s.publishers.get(topic)
	if pub == nil {
		p.err, p.terminal = fmt.Errorf("publisher not configured for topic %s", topic), true
		return p
	}
	if p.result = pub.Publish(ctx, message(event, resolved.Envelope)); p.result == nil {
		p.err, p.terminal = fmt.Errorf("publisher returned nil for topic %s", topic), true
	}
	return p
}

func message(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.OrderingKey(),
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, p *pending) error {
	event := p.event
	if p.err == nil {
		_, p.err = p.result.Get(publishCtx)
		var nonRetry registry.NonRetryableError
		p.terminal = errors.As(p.err, &nonRetry)
	}

	switch {
	case p.err == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, p.fields), "outbox event published")
		return nil
	case p.terminal:
		return s.deadLetter(ctx, tx, p, enums.OutboxDLQReasonNonRetryable, p.err)
	}

	p.fields["attempt_count"] = event.AttemptCount + 1
	if event.FinalAttempt(s.maxAttempts) {
		return s.deadLetter(ctx, tx, p, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", p.err))
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, p.fields), "error", p.err.Error()), "outbox publish failed")
	s.metrics.IncFailed(string(event.EventType))
	if err := s.repo.MarkFailedTx(tx, event.ID, p.err); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, p *pending, reason enums.OutboxDLQErrorReason, cause error) error {
	event := p.event
	p.fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, p.fields), "error", cause.Error()), "outbox event will not be retried")

	if err := s.dlq.InsertTx(tx, event.DeadLetter(reason, cause.Error(), time.Now().UTC())); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

func eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
