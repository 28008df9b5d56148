package ops

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
	"github.com/vk/dataflow/internal/optree"
)

// Repeat replays its subtree Count times. At every end of epoch except the
// last it resets the leaves below it, which start their next pass. The
// intermediate EoEs are absorbed, so the consumer sees one epoch holding
// every repeat, unless the operator was built by NewEpochCtrl.
//
// Repeats nest: an inner repeat registers itself as a leaf of the outer one
// and resets its own leaves when the outer one resets it.
type Repeat struct {
	serial
	Count int

	epochs bool
	eoeOps []*optree.Node
	done   atomic.Int32
}

// NewEpochCtrl returns a repeat that forwards the EoE of every pass, turning
// each pass over the subtree into an epoch of its own.
func NewEpochCtrl(epochs int) *Repeat {
	return &Repeat{Count: epochs, epochs: true}
}

func (r *Repeat) Name() string {
	if r.epochs {
		return "EpochCtrl"
	}
	return "Repeat"
}

func (r *Repeat) Describe() string { return fmt.Sprintf("count=%d", r.Count) }

// NoOp reports whether the operator can be removed from the tree.
func (r *Repeat) NoOp() bool { return r.Count == 1 && !r.epochs }

// EOEOps returns the nodes the operator resets between passes.
func (r *Repeat) EOEOps() []*optree.Node { return append([]*optree.Node(nil), r.eoeOps...) }

func (r *Repeat) PrepareNodePreAction(_ context.Context, n *optree.Node) error {
	if r.Count < 1 {
		return errs.New(errs.InvalidArgument, "Repeat.PrepareNodePreAction", "%s count must be positive, got %d", n.NameWithID(), r.Count)
	}
	n.Tree().PushPrepareFlags(optree.PrepareRepeat)
	return nil
}

// PrepareNodePostAction collects the leaves registered by the subtree.
func (r *Repeat) PrepareNodePostAction(_ context.Context, n *optree.Node) error {
	if readers := n.Readers(); readers > 1 {
		return errs.New(errs.UnsupportedOperation, "Repeat.PrepareNodePostAction", "inlined %s is read by %d workers", n.NameWithID(), readers)
	}
	t := n.Tree()
	below := make(map[*optree.Node]bool)
	for d := range n.Descendants() {
		below[d] = true
	}
	r.eoeOps = r.eoeOps[:0]
	for {
		top, ok := t.PopFromEOEOpStack()
		if !ok {
			break
		}
		if !below[top] {
			t.AddToEOEOpStack(top)
			break
		}
		r.eoeOps = append(r.eoeOps, top)
	}
	t.PopPrepareFlags()

	switch {
	case n.HasControlFlag(optree.FlagRepeated):
		t.AddToEOEOpStack(n)
	case r.Count == 1:
		r.markLast()
	}
	return nil
}

// markLast flags the leaves for their final pass.
func (r *Repeat) markLast() {
	for _, leaf := range r.eoeOps {
		leaf.SetControlFlag(optree.FlagLastRepeat)
		if inner, ok := leaf.Operator().(*Repeat); ok && inner.Count == 1 {
			inner.markLast()
		}
	}
}

// lastPass reports whether the current passes of n are its final ones.
func lastPass(n *optree.Node) bool {
	return !n.HasControlFlag(optree.FlagRepeated) || n.HasControlFlag(optree.FlagLastRepeat)
}

func (r *Repeat) EOEReceived(ctx context.Context, n *optree.Node, workerID int) error {
	done := int(r.done.Add(1))
	if done == r.Count-1 && lastPass(n) {
		r.markLast()
	}
	if done < r.Count {
		if r.epochs {
			n.SetState(optree.Idle)
			if n.Connector() != nil {
				if err := n.Push(ctx, workerID, message.EOE()); err != nil {
					return err
				}
			}
		} else {
			n.SetState(optree.Running)
		}
		ctxlog.FromContext(ctx).Debug("Repeat pass done.", "node", n.NameWithID(), "pass", done, "count", r.Count)
		return r.resetLeaves(ctx)
	}

	r.done.Store(0)
	n.SetState(optree.Idle)
	if n.Connector() == nil {
		return nil
	}
	return n.Push(ctx, workerID, message.EOE())
}

// Reset is called by an enclosing repeat.
func (r *Repeat) Reset(ctx context.Context, _ *optree.Node) error {
	r.done.Store(0)
	return r.resetLeaves(ctx)
}

func (r *Repeat) resetLeaves(ctx context.Context) error {
	for _, leaf := range r.eoeOps {
		if err := leaf.Reset(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repeat) Run(ctx context.Context, n *optree.Node) error {
	return forward(ctx, n, 0, r.next)
}

func (r *Repeat) NextBuffer(ctx context.Context, n *optree.Node, workerID int) (message.Message, error) {
	return r.next(ctx, n, workerID)
}

func (r *Repeat) next(ctx context.Context, n *optree.Node, workerID int) (message.Message, error) {
	return n.GetNextInput(ctx, workerID, 0)
}
