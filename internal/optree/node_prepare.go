package optree

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/vk/dataflow/internal/connector"
	"github.com/vk/dataflow/internal/errs"
)

// PrepareNodePreAction runs top-down before the children of n are prepared.
// Nodes below a repeat operator get FlagRepeated.
func (n *Node) PrepareNodePreAction(ctx context.Context) error {
	if n.tree != nil && n.tree.PrepareFlags()&PrepareRepeat != 0 {
		n.SetControlFlag(FlagRepeated)
	}
	if a, ok := n.op.(PreActioner); ok {
		return a.PrepareNodePreAction(ctx, n)
	}
	return nil
}

// PrepareNodePostAction runs bottom-up after the children of n are
// prepared. It registers repeated leaves with the tree, creates the output
// connector and computes the column map.
func (n *Node) PrepareNodePostAction(ctx context.Context) error {
	const op = "Node.PrepareNodePostAction"
	if n.tree != nil && len(n.children) == 0 && n.HasControlFlag(FlagRepeated) {
		n.tree.AddToEOEOpStack(n)
	}

	if n.queueSize < 0 {
		return errs.New(errs.InvalidArgument, op, "%s has negative queue size %d", n.NameWithID(), n.queueSize)
	}
	if len(n.parents) > 1 {
		return errs.New(errs.UnsupportedOperation, op, "%s feeds %d parents, an output connector serves a single consumer", n.NameWithID(), len(n.parents))
	}
	if _, ok := n.op.(Inliner); n.Inlined() && len(n.children) == 0 && !ok {
		return errs.New(errs.InvalidArgument, op, "inlined %s has no child and no inline read, give it a queue", n.NameWithID())
	}
	if !n.Inlined() {
		consumers := max(n.op.NumConsumers(), n.consumers())
		out, err := connector.New(n.op.NumProducers(), consumers, n.queueSize)
		if err != nil {
			return fmt.Errorf("creating connector for %s: %w", n.NameWithID(), err)
		}
		n.out = out
	} else if n.op.NumWorkers() > 1 {
		return errs.New(errs.InvalidArgument, op, "inlined %s cannot run %d workers", n.NameWithID(), n.op.NumWorkers())
	}

	n.workers = make([]atomic.Int32, n.readers())
	for i := range n.workers {
		n.workers[i].Store(n.state.Load())
	}

	if err := n.ComputeColMap(ctx); err != nil {
		return err
	}
	if a, ok := n.op.(PostActioner); ok {
		return a.PrepareNodePostAction(ctx, n)
	}
	return nil
}

// ComputeColMap fills the column map of n from its operator's ColMapper, or
// inherits it unchanged from the single child.
func (n *Node) ComputeColMap(ctx context.Context) error {
	const op = "Node.ComputeColMap"
	var (
		cols map[string]int
		err  error
	)
	switch m, ok := n.op.(ColMapper); {
	case ok:
		if cols, err = m.ComputeColMap(ctx, n); err != nil {
			return fmt.Errorf("computing column map of %s: %w", n.NameWithID(), err)
		}
	case len(n.children) == 0:
		return nil
	case len(n.children) == 1:
		cols = n.children[0].ColumnNameMap()
	default:
		return errs.New(errs.UnsupportedOperation, op, "%s has %d children and no column mapping", n.NameWithID(), len(n.children))
	}
	return n.setColumnNameMap(op, cols)
}

// SetColumnNameMap replaces the column map of n. The map is frozen once the
// tree is prepared.
func (n *Node) SetColumnNameMap(cols map[string]int) error {
	const op = "Node.SetColumnNameMap"
	if n.tree != nil && n.tree.State() >= Prepared {
		return errs.New(errs.InvalidState, op, "column map of %s is frozen", n.NameWithID())
	}
	return n.setColumnNameMap(op, cols)
}

func (n *Node) setColumnNameMap(op string, cols map[string]int) error {
	seen := make([]bool, len(cols))
	for name, idx := range cols {
		if idx < 0 || idx >= len(cols) || seen[idx] {
			return errs.New(errs.InvalidArgument, op, "column %q of %s has index %d, indices must be a permutation of 0..%d", name, n.NameWithID(), idx, len(cols)-1)
		}
		seen[idx] = true
	}

	n.colMu.Lock()
	defer n.colMu.Unlock()
	n.colMap = maps.Clone(cols)
	if n.colMap == nil {
		n.colMap = make(map[string]int)
	}
	return nil
}

// ColumnNameMap returns a copy of the column map of n.
func (n *Node) ColumnNameMap() map[string]int {
	n.colMu.RLock()
	defer n.colMu.RUnlock()
	return maps.Clone(n.colMap)
}

func (n *Node) HasColumnNameMap() bool {
	n.colMu.RLock()
	defer n.colMu.RUnlock()
	return len(n.colMap) > 0
}

// ColumnNameMapAsString renders the column map ordered by index, e.g.
// "{id:0, name:1}".
func (n *Node) ColumnNameMapAsString() string {
	n.colMu.RLock()
	names := slices.Collect(maps.Keys(n.colMap))
	slices.SortFunc(names, func(a, b string) int { return n.colMap[a] - n.colMap[b] })
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s:%d", name, n.colMap[name])
	}
	n.colMu.RUnlock()
	return "{" + strings.Join(parts, ", ") + "}"
}

// ConnectorSize is the number of queued messages on the output of n. An
// inlined node reports the size of child 0, recursively.
func (n *Node) ConnectorSize() int {
	if n.Inlined() {
		if len(n.children) == 0 {
			return 0
		}
		return n.children[0].ConnectorSize()
	}
	if n.out == nil {
		return 0
	}
	return n.out.Size()
}

// ConnectorCapacity is the number of queue slots on the output of n. An
// inlined node reports the capacity of child 0, recursively.
func (n *Node) ConnectorCapacity() int {
	if n.Inlined() {
		if len(n.children) == 0 {
			return 0
		}
		return n.children[0].ConnectorCapacity()
	}
	if n.out == nil {
		return 0
	}
	return n.out.Capacity()
}

// ConnectorOutBufferCount is the number of messages pushed on the output of
// n, or -1 when n has no connector.
func (n *Node) ConnectorOutBufferCount() int64 {
	if n.out == nil {
		return -1
	}
	return n.out.OutBuffersCount()
}

func (n *Node) ChildOpConnectorSize(i int) int {
	if c := n.Child(i); c != nil {
		return c.ConnectorSize()
	}
	return 0
}

func (n *Node) ChildOpConnectorCapacity(i int) int {
	if c := n.Child(i); c != nil {
		return c.ConnectorCapacity()
	}
	return 0
}
