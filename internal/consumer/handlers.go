package consumer

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChangeLogHandler appends consumed events to the change_log table. Replays
// of an already stored offset are ignored.
type ChangeLogHandler struct {
	pool *pgxpool.Pool
}

// NewChangeLogHandler constructs a handler backed by the provided pool.
func NewChangeLogHandler(pool *pgxpool.Pool) *ChangeLogHandler {
	return &ChangeLogHandler{pool: pool}
}

// Handle stores the event.
func (h *ChangeLogHandler) Handle(ctx context.Context, msg Message) error {
	received := msg.Timestamp
	if received.IsZero() {
		received = time.Now().UTC()
	}
	_, err := h.pool.Exec(ctx,
		`INSERT INTO change_log (event_type, aggregate_type, aggregate_id, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.AggregateType,
		msg.AggregateID,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		[]byte(msg.Payload),
		received,
	)
	return err
}

// PrintHandler writes one JSON line per event, for tailing topics from a terminal.
type PrintHandler struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewPrintHandler constructs a PrintHandler writing to w.
func NewPrintHandler(w io.Writer) *PrintHandler {
	return &PrintHandler{enc: json.NewEncoder(w)}
}

type printedEvent struct {
	Topic       string          `json:"topic"`
	Partition   int             `json:"partition"`
	Offset      int64           `json:"offset"`
	Time        time.Time       `json:"time"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Handle prints the event.
func (h *PrintHandler) Handle(_ context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enc.Encode(printedEvent{
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Time:        msg.Timestamp.UTC(),
		EventType:   msg.EventType,
		AggregateID: msg.AggregateID,
		Payload:     msg.Payload,
	})
}
