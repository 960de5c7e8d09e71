package router

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/agora/pkg/protocol"
)

// Mailbox is an unbounded FIFO message queue: one per registered
// agent, safe for concurrent producers with a single consumer.
type Mailbox struct {
	mu     sync.Mutex
	queue  []*protocol.Message
	wake   chan struct{}
	closed bool
}

func newMailbox() *Mailbox {
	return &Mailbox{wake: make(chan struct{}, 1)}
}

// push enqueues a message. Messages pushed after close are dropped.
func (mb *Mailbox) push(msg *protocol.Message) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.queue = append(mb.queue, msg)
	mb.mu.Unlock()
	select {
	case mb.wake <- struct{}{}:
	default:
	}
	return true
}

// close marks the mailbox closed and wakes any blocked receiver.
// Already queued messages remain receivable.
func (mb *Mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	select {
	case mb.wake <- struct{}{}:
	default:
	}
}

// TryReceive pops the oldest queued message without blocking.
func (mb *Mailbox) TryReceive() (*protocol.Message, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) == 0 {
		return nil, false
	}
	msg := mb.queue[0]
	mb.queue = mb.queue[1:]
	return msg, true
}

// Receive blocks until a message is available, the mailbox is closed,
// or ctx is done. The boolean is false when no message was received.
func (mb *Mailbox) Receive(ctx context.Context) (*protocol.Message, bool) {
	for {
		mb.mu.Lock()
		if len(mb.queue) > 0 {
			msg := mb.queue[0]
			mb.queue = mb.queue[1:]
			mb.mu.Unlock()
			return msg, true
		}
		if mb.closed {
			mb.mu.Unlock()
			return nil, false
		}
		mb.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-mb.wake:
		}
	}
}

// ReceiveTimeout waits up to d for a message. A timeout yields
// (nil, false) rather than an error.
func (mb *Mailbox) ReceiveTimeout(d time.Duration) (*protocol.Message, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return mb.Receive(ctx)
}

// Len reports the number of queued messages.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}
