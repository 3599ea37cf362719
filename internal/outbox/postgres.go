package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Claim locks up to limit deliverable rows and stamps claimed_at.
func (s *PostgresStore) Claim(ctx context.Context, limit int) (messages []Message, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const query = `SELECT event_id, user_id, aggregate_type, aggregate_id, event_type, topic, partition_key, payload, attempts
        FROM outbox
        WHERE published_at IS NULL AND failed_at IS NULL
          AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.EventID, &msg.UserID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.PartitionKey, &msg.Payload, &msg.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.EventID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		tx.Rollback(ctx)
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkPublished stamps published_at on delivered rows.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW(), last_error = NULL WHERE event_id = ANY($1)`, ids)
	return err
}

// MarkFailed records a failed attempt with exponential backoff capped at one
// hour, and parks rows that reached maxAttempts.
func (s *PostgresStore) MarkFailed(ctx context.Context, ids []int64, reason string, maxAttempts int) (int64, error) {
	const stmt = `UPDATE outbox
           SET attempts = attempts + 1,
               last_error = $2,
               next_attempt_at = NOW() + LEAST(interval '1 hour', interval '1 second' * power(2, attempts)),
               failed_at = CASE WHEN attempts + 1 >= $3 THEN NOW() ELSE NULL END
         WHERE event_id = ANY($1)
     RETURNING failed_at IS NOT NULL`

	rows, err := s.pool.Query(ctx, stmt, ids, reason, maxAttempts)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var parked int64
	for rows.Next() {
		var isParked bool
		if err := rows.Scan(&isParked); err != nil {
			return parked, err
		}
		if isParked {
			parked++
		}
	}
	return parked, rows.Err()
}

// Requeue returns parked rows to the pending queue with a fresh attempt budget.
func (s *PostgresStore) Requeue(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE outbox SET failed_at = NULL, attempts = 0, next_attempt_at = NULL
        WHERE failed_at IS NOT NULL AND published_at IS NULL`)
	if err != nil {
		return 0, err
	}
	requeuedCounter.Add(float64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// Stats summarises the outbox backlog.
type Stats struct {
	Pending int64
	Parked  int64
}

// Stats counts pending and parked rows.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `SELECT
            COUNT(*) FILTER (WHERE published_at IS NULL AND failed_at IS NULL),
            COUNT(*) FILTER (WHERE failed_at IS NOT NULL AND published_at IS NULL)
        FROM outbox`).Scan(&stats.Pending, &stats.Parked)
	return stats, err
}
