package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/tracker/internal/events"
)

// ErrUnknownTopic is returned for topics the tracker does not publish to.
var ErrUnknownTopic = errors.New("outbox: unknown topic")

// defaultBatchTimeout keeps synchronous dispatcher writes from waiting on
// kafka-go's one second default.
const defaultBatchTimeout = 50 * time.Millisecond

// KafkaProducer publishes change events with one writer per tracker topic.
// Writers are created on first use.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	topics       map[string]struct{}

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// ProducerOption customises a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout overrides how long a writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// NewKafkaProducer creates a producer for the topics in events.Topics.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: defaultBatchTimeout,
		topics:       make(map[string]struct{}),
		writers:      make(map[string]*kafka.Writer),
	}
	for _, topic := range events.Topics() {
		p.topics[topic] = struct{}{}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages publishes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer, err := p.writerForTopic(topic)
	if err != nil {
		return err
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d events to %s: %w", len(msgs), topic, err)
	}
	return nil
}

func (p *KafkaProducer) writerForTopic(topic string) (*kafka.Writer, error) {
	if _, ok := p.topics[topic]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer, nil
	}

	// Keys are user or session ids; hashing keeps one user's events in order.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = writer
	return writer, nil
}

// Close flushes and closes every writer opened so far.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
