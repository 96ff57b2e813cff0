package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultQueueSize = 256
	sendTimeout      = 30 * time.Second
)

// Queue hands messages to a Sender from a single background goroutine.
// Enqueue never blocks: when the bounded buffer is full the message is
// dropped with a warning.
type Queue struct {
	sender Sender
	logger *slog.Logger
	msgs   chan Message
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue and starts its delivery loop. size <= 0 uses
// DefaultQueueSize.
func NewQueue(sender Sender, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		sender: sender,
		logger: logger.With("component", "mail"),
		msgs:   make(chan Message, size),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// Enqueue schedules msg for delivery and reports whether it was accepted.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue closed, dropping message", "subject", msg.Subject)
		return false
	}
	select {
	case q.msgs <- msg:
		return true
	default:
		q.logger.Warn("queue full, dropping message", "subject", msg.Subject)
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be sent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.msgs)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for msg := range q.msgs {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := q.sender.Send(ctx, msg); err != nil {
			q.logger.Warn("delivery failed", "subject", msg.Subject, "error", err)
		}
		cancel()
	}
}
