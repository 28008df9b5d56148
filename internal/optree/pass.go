package optree

import (
	"context"
	"fmt"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
)

// NodePass is a tree-wide rewrite. PreRunOnNode is called on the way down,
// RunOnNode on the way back up. Both report whether they modified the tree.
type NodePass interface {
	Name() string
	PreRunOnNode(ctx context.Context, n *Node) (bool, error)
	RunOnNode(ctx context.Context, n *Node) (bool, error)
}

// BasePass implements both callbacks as no-ops. Passes embed it and
// override what they need.
type BasePass struct{}

func (BasePass) PreRunOnNode(context.Context, *Node) (bool, error) { return false, nil }
func (BasePass) RunOnNode(context.Context, *Node) (bool, error)    { return false, nil }

// PreAccept dispatches the pre-order callback of p onto n.
func (n *Node) PreAccept(ctx context.Context, p NodePass) (bool, error) {
	if a, ok := n.op.(Acceptor); ok {
		return a.PreAccept(ctx, n, p)
	}
	return p.PreRunOnNode(ctx, n)
}

// Accept dispatches the post-order callback of p onto n.
func (n *Node) Accept(ctx context.Context, p NodePass) (bool, error) {
	if a, ok := n.op.(Acceptor); ok {
		return a.Accept(ctx, n, p)
	}
	return p.RunOnNode(ctx, n)
}

// RunPass walks the tree once with p. Callbacks may rewrite the tree: the
// children of a node are re-read by index after every visit and each node is
// visited at most once.
func (t *Tree) RunPass(ctx context.Context, p NodePass) (bool, error) {
	const op = "Tree.RunPass"
	if s := t.State(); s > Building {
		return false, errs.New(errs.InvalidState, op, "cannot run pass %s on a %s tree", p.Name(), s)
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running pass.", "pass", p.Name())

	modified, err := t.walk(ctx, t.root, p, make(map[*Node]bool))
	if err != nil {
		return modified, fmt.Errorf("pass %s: %w", p.Name(), err)
	}
	logger.Debug("Pass finished.", "pass", p.Name(), "modified", modified)
	return modified, nil
}

func (t *Tree) walk(ctx context.Context, n *Node, p NodePass, visited map[*Node]bool) (bool, error) {
	if n == nil || visited[n] {
		return false, nil
	}
	visited[n] = true

	modified, err := n.PreAccept(ctx, p)
	if err != nil {
		return modified, err
	}
	for i := 0; i < len(n.children); {
		c := n.children[i]
		m, err := t.walk(ctx, c, p, visited)
		modified = modified || m
		if err != nil {
			return modified, err
		}
		// A child replaced in place is visited at the same index.
		if i < len(n.children) && n.children[i] == c {
			i++
		}
	}
	m, err := n.Accept(ctx, p)
	return modified || m, err
}
