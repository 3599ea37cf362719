//go:build integration

package consumer

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/tracker/internal/events"
	"example.com/tracker/internal/outbox"
)

func TestDispatchedEventsReachTheProcessor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: events.TopicCookingSessions, NumPartitions: 1, ReplicationFactor: 1}))
	require.NoError(t, conn.Close())

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()
	store := &memoryOutbox{pending: []outbox.Message{{
		EventID:       1,
		UserID:        "u1",
		AggregateType: "meal",
		AggregateID:   "meal-1",
		EventType:     events.TypeCookingCompleted,
		Topic:         events.TopicCookingSessions,
		PartitionKey:  "u1",
		Payload:       []byte(`{"user_id":"u1","meal_id":"meal-1","cook_count":3}`),
	}}}
	dispatcher := outbox.NewDispatcher(store, producer, 10*time.Millisecond, 10, outbox.WithLogger(log.New(testWriter{t}, "", 0)))
	require.NoError(t, dispatcher.RunOnce(ctx))
	require.Equal(t, []int64{1}, store.published)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "tracker-integration",
		Topic:       events.TopicCookingSessions,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	received := make(chan Message, 1)
	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = NewProcessor(reader, handlerFunc(func(_ context.Context, msg Message) error {
			received <- msg
			return nil
		}), WithLogger(log.New(testWriter{t}, "", 0))).Run(consumerCtx)
	}()

	select {
	case msg := <-received:
		require.Equal(t, events.TypeCookingCompleted, msg.EventType)
		require.Equal(t, "meal", msg.AggregateType)
		require.Equal(t, "meal-1", msg.AggregateID)
		require.Equal(t, "u1", msg.Key)
		require.JSONEq(t, `{"user_id":"u1","meal_id":"meal-1","cook_count":3}`, string(msg.Payload))
	case <-ctx.Done():
		t.Fatal("event was not consumed")
	}
}

type handlerFunc func(context.Context, Message) error

func (f handlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

type memoryOutbox struct {
	mu        sync.Mutex
	pending   []outbox.Message
	published []int64
}

func (s *memoryOutbox) Claim(_ context.Context, limit int) ([]outbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > limit {
		claimed := s.pending[:limit]
		s.pending = s.pending[limit:]
		return claimed, nil
	}
	claimed := s.pending
	s.pending = nil
	return claimed, nil
}

func (s *memoryOutbox) MarkPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *memoryOutbox) MarkFailed(context.Context, []int64, string, int) (int64, error) {
	return 0, nil
}
