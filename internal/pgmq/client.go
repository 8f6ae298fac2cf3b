// Package pgmq is a thin client for the pgmq Postgres message queue
// extension.
package pgmq

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client wraps a Postgres pool for pgmq queue operations.
type Client struct {
	pool *pgxpool.Pool
}

// New returns a pgmq client backed by the given pool.
func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Message is a single pgmq message.
type Message struct {
	ID   int64  // message identifier
	Data []byte // raw JSON payload
}

// EnsureQueue creates the queue if it does not exist.
func (c *Client) EnsureQueue(ctx context.Context, queue string) error {
	if _, err := c.pool.Exec(ctx, "SELECT pgmq.create($1)", queue); err != nil {
		return fmt.Errorf("pgmq create failed: %w", err)
	}
	return nil
}

// Send pushes a JSON payload into the given queue.
func (c *Client) Send(ctx context.Context, queue string, payload []byte) error {
	if _, err := c.pool.Exec(ctx, "SELECT pgmq.send($1, $2::jsonb, 0)", queue, string(payload)); err != nil {
		return fmt.Errorf("pgmq send failed: %w", err)
	}
	return nil
}

// ReadWithPoll reads up to maxMessages from the queue, blocking up to
// timeoutSec seconds when the queue is empty.
func (c *Client) ReadWithPoll(ctx context.Context, queue string, timeoutSec, maxMessages int) ([]*Message, error) {
	rows, err := c.pool.Query(ctx, "SELECT msg_id, message FROM pgmq.read_with_poll($1, $2, $3)", queue, timeoutSec, maxMessages)
	if err != nil {
		return nil, fmt.Errorf("pgmq read_with_poll failed: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("pgmq read scan failed: %w", err)
		}
		msgs = append(msgs, &Message{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgmq read rows error: %w", err)
	}
	return msgs, nil
}

// Delete removes messages by their IDs from the specified queue.
func (c *Client) Delete(ctx context.Context, queue string, msgIDs []int64) error {
	if _, err := c.pool.Exec(ctx, "SELECT pgmq.delete($1, $2)", queue, msgIDs); err != nil {
		return fmt.Errorf("pgmq delete failed: %w", err)
	}
	return nil
}
