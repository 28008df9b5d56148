package optree

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/dataflow/internal/connector"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/sampler"
)

// InvalidID is the id of a node that is not associated with a tree.
const InvalidID = -1

// DefaultQueueSize is the per-producer queue capacity of a new node.
const DefaultQueueSize = 16

// State is the lifecycle of a node's worker loop.
type State int32

const (
	// Idle means the worker finished an epoch and waits for the next one.
	Idle State = iota
	// Running means the worker is inside an epoch.
	Running
	// Terminated means the worker observed EoF.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// ControlFlag is a bit in a node's control flag set.
type ControlFlag uint32

const (
	// FlagRepeated marks a node inside the subtree of a repeat operator.
	FlagRepeated ControlFlag = 1 << iota
	// FlagLastRepeat marks a node running its final repeat iteration.
	FlagLastRepeat
)

// Node is one stage of the execution tree. It owns its ordered children and
// its output connector and refers back to its parents and tree.
type Node struct {
	op        Operator
	id        int
	tree      *Tree
	queueSize int
	sampler   sampler.Sampler

	children []*Node
	parents  []*Node

	out *connector.Connector

	state      atomic.Int32
	workers    []atomic.Int32
	flags      atomic.Uint32
	eofWorkers atomic.Int32
	resetCh    chan struct{}

	colMu  sync.RWMutex
	colMap map[string]int
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithQueueSize sets the per-producer capacity of the node's output. Zero
// makes the node inlined.
func WithQueueSize(size int) NodeOption {
	return func(n *Node) { n.queueSize = size }
}

// WithSampler attaches a sampler to the node.
func WithSampler(s sampler.Sampler) NodeOption {
	return func(n *Node) { n.sampler = s }
}

// NewNode creates a standalone node running op.
func NewNode(op Operator, opts ...NodeOption) *Node {
	n := &Node{
		op:        op,
		id:        InvalidID,
		queueSize: DefaultQueueSize,
		resetCh:   make(chan struct{}, 1),
		colMap:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) ID() int                         { return n.id }
func (n *Node) Tree() *Tree                     { return n.tree }
func (n *Node) Operator() Operator              { return n.op }
func (n *Node) Sampler() sampler.Sampler        { return n.sampler }
func (n *Node) QueueSize() int                  { return n.queueSize }
func (n *Node) NumWorkers() int                 { return n.op.NumWorkers() }
func (n *Node) Connector() *connector.Connector { return n.out }

// Inlined reports whether the node has no output queue of its own.
func (n *Node) Inlined() bool { return n.queueSize == 0 }

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Child returns the child at index i, or nil.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Parents returns a copy of the parent list.
func (n *Node) Parents() []*Node {
	return append([]*Node(nil), n.parents...)
}

func (n *Node) State() State { return State(n.state.Load()) }

// SetState is used by operators and their handlers to move through the
// epoch lifecycle. It moves every worker of n along with the node.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
	for i := range n.workers {
		n.workers[i].Store(int32(s))
	}
}

// WorkerState is the state worker workerID of n is in. Nodes that were
// never prepared have no worker slots and report the node state.
func (n *Node) WorkerState(workerID int) State {
	if w := n.workerSlot(workerID); w != nil {
		return State(w.Load())
	}
	return n.State()
}

// SetWorkerState moves one worker of n, and the node with it.
func (n *Node) SetWorkerState(workerID int, s State) {
	if w := n.workerSlot(workerID); w != nil {
		w.Store(int32(s))
	}
	n.state.Store(int32(s))
}

func (n *Node) workerSlot(workerID int) *atomic.Int32 {
	if workerID < 0 || workerID >= len(n.workers) {
		return nil
	}
	return &n.workers[workerID]
}

func (n *Node) SetControlFlag(f ControlFlag) {
	for {
		old := n.flags.Load()
		if n.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func (n *Node) ClearControlFlag(f ControlFlag) {
	for {
		old := n.flags.Load()
		if n.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

func (n *Node) HasControlFlag(f ControlFlag) bool {
	return ControlFlag(n.flags.Load())&f == f
}

func (n *Node) ControlFlags() ControlFlag { return ControlFlag(n.flags.Load()) }

// Reset rewinds the node for another pass over its data: the operator's
// Resetter runs, the node goes back to Running and a worker blocked in
// WaitForReset is released. Worker states are left alone.
func (n *Node) Reset(ctx context.Context) error {
	if r, ok := n.op.(Resetter); ok {
		if err := r.Reset(ctx, n); err != nil {
			return errs.Wrap(errs.Internal, "Node.Reset "+n.NameWithID(), err)
		}
	}
	n.eofWorkers.Store(0)
	// Workers leave Idle on their own when the next epoch's data arrives.
	n.state.Store(int32(Running))
	select {
	case n.resetCh <- struct{}{}:
	default:
	}
	return nil
}

// ResetSubtree resets n and every node below it, parents before children.
func (n *Node) ResetSubtree(ctx context.Context) error {
	for c := range preOrder(n) {
		if err := c.Reset(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WaitForReset blocks until Reset is called on the node.
func (n *Node) WaitForReset(ctx context.Context) error {
	select {
	case <-n.resetCh:
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.Cancelled, "Node.WaitForReset "+n.NameWithID(), ctx.Err())
	}
}
