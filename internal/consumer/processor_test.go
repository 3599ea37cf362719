package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/events"
)

func changeMessage(offset int64, eventType string, payload string) kafka.Message {
	return kafka.Message{
		Topic:     events.TopicActivitySessions,
		Partition: 0,
		Offset:    offset,
		Time:      time.Date(2025, time.October, 27, 18, 32, 0, 0, time.UTC),
		Key:       []byte("s1"),
		Value:     []byte(payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "aggregate_type", Value: []byte("cardio")},
			{Key: "aggregate_id", Value: []byte("s1")},
		},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := `{"session_id":"s1","kind":"cardio","duration_minutes":32}`
	reader := &stubReader{messages: []kafka.Message{changeMessage(10, events.TypeSessionStateChanged, payload)}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(processedCounter.WithLabelValues(events.TopicActivitySessions, events.TypeSessionStateChanged))

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeSessionStateChanged, handler.last.EventType)
	require.Equal(t, "cardio", handler.last.AggregateType)
	require.Equal(t, "s1", handler.last.AggregateID)
	require.Equal(t, "s1", handler.last.Key)
	require.EqualValues(t, 10, handler.last.Offset)
	require.JSONEq(t, payload, string(handler.last.Payload))
	require.InDelta(t, before+1, testutil.ToFloat64(processedCounter.WithLabelValues(events.TopicActivitySessions, events.TypeSessionStateChanged)), 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{changeMessage(20, events.TypeSessionStateChanged, `{}`)}}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	missingType := changeMessage(30, "", `{}`)
	badJSON := changeMessage(31, events.TypeCookingCompleted, `{"meal_id":`)
	reader := &stubReader{messages: []kafka.Message{missingType, badJSON}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues(events.TopicActivitySessions))

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
	require.InDelta(t, before+2, testutil.ToFloat64(decodeErrorCounter.WithLabelValues(events.TopicActivitySessions)), 0.0001)
}

func TestProcessorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader := &stubReader{messages: []kafka.Message{changeMessage(1, events.TypeSessionStateChanged, `{}`)}}
	handler := &stubHandler{}

	require.ErrorIs(t, NewProcessor(reader, handler).Run(ctx), context.Canceled)
	require.Zero(t, handler.calls)
}

func TestPrintHandlerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrintHandler(&buf)

	msg, err := decodeMessage(changeMessage(7, events.TypeSessionStateChanged, `{"session_id":"s1"}`))
	require.NoError(t, err)
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.NoError(t, handler.Handle(context.Background(), msg))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var printed map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &printed))
	require.Equal(t, events.TopicActivitySessions, printed["topic"])
	require.Equal(t, events.TypeSessionStateChanged, printed["event_type"])
	require.EqualValues(t, 7, printed["offset"])
	require.Equal(t, map[string]any{"session_id": "s1"}, printed["payload"])
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
