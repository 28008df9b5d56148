// Package opt holds the tree rewrites run by optree.Tree.Optimize.
package opt

import (
	"context"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/ops"
	"github.com/vk/dataflow/internal/optree"
)

// NoOper is implemented by operators that can tell they would not change
// their input.
type NoOper interface {
	NoOp() bool
}

// RemovalPass removes every node whose operator reports itself as a no-op
// and has exactly one child and at most one parent.
type RemovalPass struct {
	optree.BasePass
}

func (RemovalPass) Name() string { return "removal" }

func (RemovalPass) RunOnNode(ctx context.Context, n *optree.Node) (bool, error) {
	op, ok := n.Operator().(NoOper)
	if !ok || !op.NoOp() || len(n.Children()) != 1 || len(n.Parents()) > 1 {
		return false, nil
	}
	ctxlog.FromContext(ctx).Debug("Removing no-op node.", "node", n.NameWithID())
	if err := n.Remove(); err != nil {
		return false, err
	}
	return true, nil
}

// EpochInjectionPass puts an epoch control operator above the root so the
// tree runs Epochs passes over its data, each ending with its own EoE.
type EpochInjectionPass struct {
	optree.BasePass
	Epochs int
}

func (EpochInjectionPass) Name() string { return "epoch-injection" }

func (p EpochInjectionPass) RunOnNode(ctx context.Context, n *optree.Node) (bool, error) {
	if p.Epochs < 2 || n != n.Tree().Root() {
		return false, nil
	}
	ctrl := optree.NewNode(ops.NewEpochCtrl(p.Epochs), optree.WithQueueSize(0))
	if err := n.InsertAsParent(ctrl); err != nil {
		return false, err
	}
	ctxlog.FromContext(ctx).Debug("Injected epoch control.", "node", ctrl.NameWithID(), "epochs", p.Epochs)
	return true, nil
}

// PrintPass logs every node it visits at debug level.
type PrintPass struct {
	optree.BasePass
}

func (PrintPass) Name() string { return "print" }

func (PrintPass) PreRunOnNode(ctx context.Context, n *optree.Node) (bool, error) {
	ctxlog.FromContext(ctx).Debug("Visiting node.",
		"node", n.NameWithID(),
		"children", len(n.Children()),
		"queue_size", n.QueueSize(),
		"workers", n.NumWorkers())
	return false, nil
}

// Default returns the passes run before every prepare.
func Default(epochs int) []optree.NodePass {
	return []optree.NodePass{PrintPass{}, RemovalPass{}, EpochInjectionPass{Epochs: epochs}}
}
