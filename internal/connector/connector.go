// Package connector implements the bounded queue that links an operator to
// its consumer.
//
// A Connector owns one bounded FIFO per producer worker. Consumers pop from
// any producer queue that has data, so messages of a single producer keep
// their program order while the relative order across producers is not
// defined.
//
// Control messages are merged at the consumer side:
//
//   - EndOfEpoch acts as a barrier. A producer's EoE holds its queue until
//     every producer has delivered its EoE for the same epoch. The connector
//     then hands exactly one EoE to every consumer. A consumer always
//     receives its pending EoE before any data of the next epoch.
//   - EndOfFile is sticky. Once every producer sent EoF, every pop returns
//     EoF.
//
// Pushing data or EoE after EoF from the same producer, or a second EoF, is a
// protocol violation. Close and context cancellation unblock every waiter
// with a Cancelled error.
package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
)

// Connector is a bounded multi-producer, multi-consumer message queue.
type Connector struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	queues      [][]message.Message
	capacity    int
	producerEOF []bool

	pendingEOE []int
	eof        bool
	next       int
	closed     bool

	numConsumers int
	outCount     atomic.Int64
}

// New creates a connector with numProducers queues of queueCapacity slots
// each, read by numConsumers consumer workers.
func New(numProducers, numConsumers, queueCapacity int) (*Connector, error) {
	switch {
	case numProducers < 1:
		return nil, errs.New(errs.InvalidArgument, "connector.New", "producer count must be positive, got %d", numProducers)
	case numConsumers < 1:
		return nil, errs.New(errs.InvalidArgument, "connector.New", "consumer count must be positive, got %d", numConsumers)
	case queueCapacity < 1:
		return nil, errs.New(errs.InvalidArgument, "connector.New", "queue capacity must be positive, got %d", queueCapacity)
	}
	c := &Connector{
		queues:       make([][]message.Message, numProducers),
		capacity:     queueCapacity,
		producerEOF:  make([]bool, numProducers),
		pendingEOE:   make([]int, numConsumers),
		numConsumers: numConsumers,
	}
	for i := range c.queues {
		c.queues[i] = make([]message.Message, 0, queueCapacity)
	}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return c, nil
}

// wake makes blocked callers re-check their wait condition once ctx is done.
func (c *Connector) wake(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.notEmpty.Broadcast()
		c.notFull.Broadcast()
	})
}

// Push appends msg to the queue owned by producerID, blocking while it is full.
func (c *Connector) Push(ctx context.Context, producerID int, msg message.Message) error {
	const op = "connector.Push"
	if producerID < 0 || producerID >= len(c.queues) {
		return errs.New(errs.InvalidArgument, op, "producer %d out of range [0,%d)", producerID, len(c.queues))
	}

	stop := c.wake(ctx)
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.producerEOF[producerID] {
		return errs.New(errs.ProtocolViolation, op, "producer %d pushed %s after eof", producerID, msg.Flag)
	}
	for len(c.queues[producerID]) >= c.capacity && !c.closed && ctx.Err() == nil {
		c.notFull.Wait()
	}
	if c.closed {
		return errs.New(errs.Cancelled, op, "connector closed")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Cancelled, op, err)
	}

	c.queues[producerID] = append(c.queues[producerID], msg)
	if msg.IsEOF() {
		c.producerEOF[producerID] = true
	}
	c.outCount.Add(1)
	c.notEmpty.Broadcast()
	return nil
}

// Pop returns the next message for consumerID, blocking until one is available.
func (c *Connector) Pop(ctx context.Context, consumerID int) (message.Message, error) {
	const op = "connector.Pop"
	if consumerID < 0 || consumerID >= c.numConsumers {
		return message.Message{}, errs.New(errs.InvalidArgument, op, "consumer %d out of range [0,%d)", consumerID, c.numConsumers)
	}

	stop := c.wake(ctx)
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.closed {
			return message.Message{}, errs.New(errs.Cancelled, op, "connector closed")
		}
		if err := ctx.Err(); err != nil {
			return message.Message{}, errs.Wrap(errs.Cancelled, op, err)
		}
		if msg, ok := c.take(consumerID); ok {
			return msg, nil
		}
		c.notEmpty.Wait()
	}
}

// take picks the next deliverable message for consumerID. It must be called
// with c.mu held.
func (c *Connector) take(consumerID int) (message.Message, bool) {
	if c.pendingEOE[consumerID] > 0 {
		c.pendingEOE[consumerID]--
		return message.EOE(), true
	}
	if c.eof {
		return message.EOF(), true
	}

	n := len(c.queues)
	atBarrier, finished := 0, 0
	for i := range n {
		q := (c.next + i) % n
		if len(c.queues[q]) == 0 {
			continue
		}
		switch head := c.queues[q][0]; head.Flag {
		case message.Data:
			c.dequeue(q)
			c.next = (q + 1) % n
			return head, true
		case message.EndOfEpoch:
			atBarrier++
		case message.EndOfFile:
			finished++
		}
	}

	switch {
	case atBarrier > 0 && atBarrier+finished == n:
		for q := range c.queues {
			if len(c.queues[q]) > 0 && c.queues[q][0].IsEOE() {
				c.dequeue(q)
			}
		}
		for i := range c.pendingEOE {
			c.pendingEOE[i]++
		}
		c.pendingEOE[consumerID]--
		c.notEmpty.Broadcast()
		return message.EOE(), true
	case finished == n:
		for q := range c.queues {
			c.dequeue(q)
		}
		c.eof = true
		c.notEmpty.Broadcast()
		return message.EOF(), true
	}
	return message.Message{}, false
}

func (c *Connector) dequeue(q int) {
	c.queues[q][0] = message.Message{}
	c.queues[q] = c.queues[q][1:]
	c.notFull.Broadcast()
}

// Close shuts the connector down. Blocked and future pushes and pops fail
// with Cancelled.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// Closed reports whether Close was called.
func (c *Connector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Size returns the number of queued messages across all producer queues.
func (c *Connector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := 0
	for _, q := range c.queues {
		size += len(q)
	}
	return size
}

// Capacity returns the total number of queue slots.
func (c *Connector) Capacity() int {
	return c.capacity * len(c.queues)
}

// OutBuffersCount returns how many messages were pushed successfully.
func (c *Connector) OutBuffersCount() int64 {
	return c.outCount.Load()
}

func (c *Connector) NumProducers() int { return len(c.queues) }
func (c *Connector) NumConsumers() int { return c.numConsumers }
