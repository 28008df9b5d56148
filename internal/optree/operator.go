package optree

import (
	"context"

	"github.com/vk/dataflow/internal/message"
)

// Operator is the concrete stage behind a Node. The tree calls Run once per
// non-inlined node on a dedicated goroutine; Run returns when the operator
// has pushed its EoF or the context is cancelled.
type Operator interface {
	// Name is the operator kind, e.g. "Map". It is part of the CRC.
	Name() string
	// Run is the worker entry point.
	Run(ctx context.Context, n *Node) error
	// NumWorkers is the number of goroutines reading this operator's inputs.
	NumWorkers() int
	// NumConsumers is the minimum number of consumer slots on the output.
	// The node raises it to the number of workers of its parents.
	NumConsumers() int
	// NumProducers is the number of goroutines pushing to the output.
	NumProducers() int
}

// The interfaces below are optional capabilities. The node checks for them
// with a type assertion and falls back to its default behavior.

// EOEHandler replaces DefaultEOEReceived.
type EOEHandler interface {
	EOEReceived(ctx context.Context, n *Node, workerID int) error
}

// EOFHandler replaces DefaultEOFReceived.
type EOFHandler interface {
	EOFReceived(ctx context.Context, n *Node, workerID int) error
}

// Resetter rewinds operator state between repeats.
type Resetter interface {
	Reset(ctx context.Context, n *Node) error
}

// ColMapper is implemented by operators that add, drop or reorder columns.
type ColMapper interface {
	ComputeColMap(ctx context.Context, n *Node) (map[string]int, error)
}

// PreActioner runs after the base pre-order prepare action.
type PreActioner interface {
	PrepareNodePreAction(ctx context.Context, n *Node) error
}

// PostActioner runs after the base post-order prepare action.
type PostActioner interface {
	PrepareNodePostAction(ctx context.Context, n *Node) error
}

// Acceptor lets an operator take over dispatch of a pass onto its node.
type Acceptor interface {
	PreAccept(ctx context.Context, n *Node, p NodePass) (bool, error)
	Accept(ctx context.Context, n *Node, p NodePass) (bool, error)
}

// Inliner serves reads of an inlined node in the caller's goroutine.
// Inlined operators without it pass reads straight through to child 0.
type Inliner interface {
	NextBuffer(ctx context.Context, n *Node, workerID int) (message.Message, error)
}

// Describer returns the operator configuration in a stable textual form. The
// output is part of the CRC and must not contain runtime state.
type Describer interface {
	Describe() string
}

// Fingerprinter covers configuration too large for Describe, such as literal
// data. Its output only feeds the CRC.
type Fingerprinter interface {
	Fingerprint() string
}

// WorkerConnectorRegistrar is called for every reachable node right before
// the tree launches its workers.
type WorkerConnectorRegistrar interface {
	RegisterWorkerConnectors(ctx context.Context, n *Node) error
}

// Parallelism carries the worker accessors of Operator. Operators embed it
// and set Workers; zero means one worker.
type Parallelism struct {
	Workers int
}

func (p Parallelism) NumWorkers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}

func (p Parallelism) NumProducers() int { return p.NumWorkers() }

func (p Parallelism) NumConsumers() int { return 1 }
