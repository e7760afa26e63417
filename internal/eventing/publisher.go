package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"farmgate/internal/observability/metrics"
)

// ErrAckTimeout indicates the broker did not acknowledge within the
// configured ack window.
var ErrAckTimeout = errors.New("publisher: broker ack timeout")

// Publisher delivers resolved events to the broker. Every event for one
// device goes to the same topic, so the broker preserves per-device order;
// delivery blocks until the broker acknowledges or retries are exhausted.
type Publisher struct {
	client         mqtt.Client
	topicPrefix    string
	qos            byte
	maxRetries     uint64
	initialBackoff time.Duration
	ackTimeout     time.Duration
	breaker        *gobreaker.CircuitBreaker
	acked          *publishSet
	logger         *log.Logger
}

// PublisherOption overrides publisher behavior.
type PublisherOption func(*Publisher)

// WithMaxRetries bounds publish retry attempts.
func WithMaxRetries(n int) PublisherOption {
	return func(p *Publisher) {
		if n >= 0 {
			p.maxRetries = uint64(n)
		}
	}
}

// WithAckTimeout bounds the wait for a broker acknowledgement.
func WithAckTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.ackTimeout = d
		}
	}
}

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.initialBackoff = d
		}
	}
}

// NewPublisher constructs a publisher over a connected broker client.
func NewPublisher(client mqtt.Client, cfg BrokerConfig, logger *log.Logger, opts ...PublisherOption) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("publisher: nil client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	pub := &Publisher{
		client:         client,
		topicPrefix:    cfg.TopicPrefix,
		qos:            byte(cfg.QoS),
		maxRetries:     uint64(cfg.MaxRetries),
		initialBackoff: cfg.InitialBackoff,
		ackTimeout:     cfg.AckTimeout,
		acked:          newPublishSet(cfg.DedupTTL, cfg.DedupMax),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(pub)
	}

	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	pub.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("breaker %s: %s -> %s", name, from, to)
			metrics.IncBreakerTransition(to.String())
		},
	})
	return pub, nil
}

// Publish blocks until the broker acknowledges the event. Transient
// failures retry with exponential backoff up to the configured bound; a
// cancelled context abandons the attempt without further retries. An
// event id already acknowledged this session returns immediately.
func (p *Publisher) Publish(ctx context.Context, event ResolvedEvent) error {
	if event.EventID == "" || event.DeviceID == "" || event.TalhaoID == "" {
		return errors.New("publisher: incomplete event")
	}
	if p.acked.Seen(event.EventID) {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("publisher: encode %s: %w", event.EventID, err)
	}
	topic := p.topicPrefix + "/" + event.DeviceID

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialBackoff
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.IncPublishRetry()
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		_, execErr := p.breaker.Execute(func() (any, error) {
			token := p.client.Publish(topic, p.qos, false, payload)
			return nil, p.waitAck(ctx, token)
		})
		if execErr == nil {
			return nil
		}
		if errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded) {
			return backoff.Permanent(execErr)
		}
		p.logger.Printf("publish %s attempt %d failed: %v", event.EventID, attempt, execErr)
		return execErr
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx)); err != nil {
		metrics.ObservePublish("error")
		return fmt.Errorf("publisher: deliver %s: %w", event.EventID, err)
	}

	p.acked.Mark(event.EventID)
	metrics.ObservePublish("success")
	return nil
}

// waitAck waits for the broker acknowledgement, bounded by the ack
// timeout and the caller's context.
func (p *Publisher) waitAck(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(p.ackTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
