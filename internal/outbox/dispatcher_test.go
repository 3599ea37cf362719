package outbox

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/events"
)

func TestDispatcherPublishesPerTopicAndMarksPublished(t *testing.T) {
	store := &stubStore{pending: []Message{
		{EventID: 1, UserID: "u1", EventType: events.TypeCalendarEventUpserted, Topic: events.TopicCalendarEvents, PartitionKey: "u1", Payload: []byte(`{"event_id":"e1"}`)},
		{EventID: 2, UserID: "u1", EventType: events.TypeSessionStateChanged, Topic: events.TopicActivitySessions, PartitionKey: "s1", Payload: []byte(`{"session_id":"s1"}`)},
		{EventID: 3, UserID: "u1", EventType: events.TypeCalendarEventDeleted, Topic: events.TopicCalendarEvents, PartitionKey: "u1", Payload: []byte(`{"event_id":"e1"}`)},
	}}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, 10*time.Millisecond, 10, WithLogger(log.New(testWriter{t}, "", 0)))

	before := testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TopicCalendarEvents))
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.RunOnce(context.Background()))

	require.Len(t, producer.writes, 2)
	byTopic := map[string][]kafka.Message{}
	for _, w := range producer.writes {
		byTopic[w.topic] = w.messages
	}
	require.Len(t, byTopic[events.TopicCalendarEvents], 2)
	require.Len(t, byTopic[events.TopicActivitySessions], 1)
	require.Equal(t, "s1", string(byTopic[events.TopicActivitySessions][0].Key))
	require.Equal(t, events.TypeSessionStateChanged, headerValue(byTopic[events.TopicActivitySessions][0], "event_type"))

	require.ElementsMatch(t, []int64{1, 2, 3}, store.published)
	require.InDelta(t, before+2, testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TopicCalendarEvents)), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)
}

func TestDispatcherRecordsFailureAndParks(t *testing.T) {
	store := &stubStore{
		pending: []Message{
			{EventID: 7, EventType: events.TypeCookingCompleted, Topic: events.TopicCookingSessions, PartitionKey: "u2", Payload: []byte(`{}`)},
		},
		parkOnFail: true,
	}
	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(store, producer, 10*time.Millisecond, 10, WithMaxAttempts(3), WithLogger(log.New(testWriter{t}, "", 0)))

	beforeFailed := testutil.ToFloat64(failedCounter.WithLabelValues(events.TopicCookingSessions))
	beforeParked := testutil.ToFloat64(parkedCounter.WithLabelValues(events.TopicCookingSessions))

	require.NoError(t, dispatcher.RunOnce(context.Background()))

	require.Empty(t, store.published)
	require.Equal(t, []int64{7}, store.failed)
	require.Equal(t, "kafka write failed", store.lastReason)
	require.Equal(t, 3, store.lastMax)
	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter.WithLabelValues(events.TopicCookingSessions)), 0.0001)
	require.InDelta(t, beforeParked+1, testutil.ToFloat64(parkedCounter.WithLabelValues(events.TopicCookingSessions)), 0.0001)
}

func TestDispatcherRejectsUnroutableEvents(t *testing.T) {
	store := &stubStore{pending: []Message{
		{EventID: 9, EventType: "calendar.unknown", Topic: events.TopicCalendarEvents, Payload: []byte(`{}`)},
	}}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, 10*time.Millisecond, 10, WithLogger(log.New(testWriter{t}, "", 0)))

	require.NoError(t, dispatcher.RunOnce(context.Background()))

	require.Empty(t, producer.writes, "unroutable events should skip kafka writes")
	require.Equal(t, []int64{9}, store.failed)
	require.Contains(t, store.lastReason, "no route for event_type=calendar.unknown")
}

func TestDispatcherIdleBatchIsNoop(t *testing.T) {
	store := &stubStore{}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, 10*time.Millisecond, 10)

	require.NoError(t, dispatcher.RunOnce(context.Background()))
	require.Empty(t, producer.writes)
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	dispatcher := NewDispatcher(&stubStore{}, &stubProducer{}, time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

type stubStore struct {
	mu         sync.Mutex
	pending    []Message
	published  []int64
	failed     []int64
	lastReason string
	lastMax    int
	parkOnFail bool
}

func (s *stubStore) Claim(ctx context.Context, limit int) ([]Message, error) {
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

func (s *stubStore) MarkPublished(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *stubStore) MarkFailed(ctx context.Context, ids []int64, reason string, maxAttempts int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, ids...)
	s.lastReason = reason
	s.lastMax = maxAttempts
	if s.parkOnFail {
		return int64(len(ids)), nil
	}
	return 0, nil
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
