// Package outbox delivers change events recorded in the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/tracker/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Store claims pending outbox rows and records delivery outcomes.
type Store interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []int64) error
	// MarkFailed records a failed attempt. Rows that reach maxAttempts are
	// parked and no longer claimed.
	MarkFailed(ctx context.Context, ids []int64, reason string, maxAttempts int) (parked int64, err error)
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string
	Payload       json.RawMessage
	Attempts      int
}

// Dispatcher drains the outbox table and delivers events to Kafka.
type Dispatcher struct {
	store            Store
	producer         messageWriter
	pollInterval     time.Duration
	batchSize        int
	maxAttempts      int
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxAttempts sets how many failed deliveries park a row.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store Store, producer messageWriter, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:            store,
		producer:         producer,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		maxAttempts:      5,
		logger:           log.New(log.Writer(), "[outbox] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// RunOnce processes a single batch. Used by the CLI drain command.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	return d.processBatch(ctx)
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.store.Claim(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	var errs error
	for topic, batch := range groupByTopic(messages) {
		records, ids, err := buildRecords(batch)
		if err == nil {
			err = d.producer.WriteMessages(ctx, topic, records...)
		}
		if err != nil {
			d.logger.Printf("delivery failure topic=%s events=%d: %v", topic, len(ids), err)
			failedCounter.WithLabelValues(topic).Add(float64(len(ids)))
			parked, markErr := d.store.MarkFailed(ctx, ids, err.Error(), d.maxAttempts)
			if markErr != nil {
				errs = errors.Join(errs, markErr)
			}
			if parked > 0 {
				parkedCounter.WithLabelValues(topic).Add(float64(parked))
			}
			continue
		}
		if err := d.store.MarkPublished(ctx, ids); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		deliveredCounter.WithLabelValues(topic).Add(float64(len(ids)))
	}
	return errs
}

func groupByTopic(messages []Message) map[string][]Message {
	batches := make(map[string][]Message)
	for _, msg := range messages {
		batches[msg.Topic] = append(batches[msg.Topic], msg)
	}
	return batches
}

func buildRecords(batch []Message) ([]kafka.Message, []int64, error) {
	records := make([]kafka.Message, 0, len(batch))
	ids := make([]int64, 0, len(batch))
	for _, msg := range batch {
		ids = append(ids, msg.EventID)
	}
	for _, msg := range batch {
		if _, ok := events.Route(msg.EventType); !ok {
			return nil, ids, fmt.Errorf("no route for event_type=%s", msg.EventType)
		}
		records = append(records, kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: []byte(msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "aggregate_type", Value: []byte(msg.AggregateType)},
				{Key: "aggregate_id", Value: []byte(msg.AggregateID)},
			},
		})
	}
	return records, ids, nil
}
