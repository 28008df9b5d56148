package optree

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
)

// TreeState is the lifecycle of an execution tree.
type TreeState int32

const (
	// Init is an empty tree.
	Init TreeState = iota
	// Building is a tree with nodes whose structure may still change.
	Building
	// Prepared is a tree whose connectors exist. Its structure and column
	// maps are frozen.
	Prepared
	// Executing is a launched tree.
	Executing
	// Finished is a tree whose workers all returned.
	Finished
)

func (s TreeState) String() string {
	switch s {
	case Init:
		return "init"
	case Building:
		return "building"
	case Prepared:
		return "prepared"
	case Executing:
		return "executing"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// PrepareFlag is a tree-wide setting visible to nodes while they prepare.
type PrepareFlag uint32

const (
	PrepareNone PrepareFlag = 0
	// PrepareRepeat is set while the subtree of a repeat operator prepares.
	PrepareRepeat PrepareFlag = 1 << 0
)

// Tree owns a set of nodes, assigns their ids and drives their prepare and
// launch phases.
type Tree struct {
	mu    sync.RWMutex
	nodes []*Node
	root  *Node
	state atomic.Int32

	prepareFlags []PrepareFlag
	eoeOps       []*Node

	passes   []NodePass
	optimize bool

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelCauseFunc
	waitOnce sync.Once
	waitErr  error
}

// Option configures a Tree.
type Option func(*Tree)

// WithPasses registers the passes run by Optimize, in order.
func WithPasses(passes ...NodePass) Option {
	return func(t *Tree) { t.passes = append(t.passes, passes...) }
}

// WithOptimize makes Prepare run Optimize first.
func WithOptimize(enabled bool) Option {
	return func(t *Tree) { t.optimize = enabled }
}

// New creates an empty tree.
func New(opts ...Option) *Tree {
	t := &Tree{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tree) State() TreeState { return TreeState(t.state.Load()) }

func (t *Tree) Root() *Node { return t.root }

// Nodes returns every node ever associated with the tree, ordered by id.
// Removed nodes keep their id and stay in the list.
func (t *Tree) Nodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Node(nil), t.nodes...)
}

// Node returns the node with the given id.
func (t *Tree) Node(id int) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[id], true
}

// AssociateNode gives n an id in this tree. Associating a node twice is a
// no-op.
func (t *Tree) AssociateNode(n *Node) error {
	const op = "Tree.AssociateNode"
	switch {
	case n == nil:
		return errs.New(errs.InvalidArgument, op, "nil node")
	case n.tree == t:
		return nil
	case n.tree != nil:
		return errs.New(errs.InvalidState, op, "%s belongs to another tree", n.NameWithID())
	case t.State() > Building:
		return errs.New(errs.InvalidState, op, "tree is %s", t.State())
	}
	t.associate(n)
	return nil
}

// AssignRoot makes n the root of the tree and associates its subtree.
func (t *Tree) AssignRoot(n *Node) error {
	const op = "Tree.AssignRoot"
	switch {
	case n == nil:
		return errs.New(errs.InvalidArgument, op, "nil node")
	case len(n.parents) > 0:
		return errs.New(errs.InvalidArgument, op, "%s has parents and cannot be the root", n.NameWithID())
	case t.State() > Building:
		return errs.New(errs.InvalidState, op, "tree is %s", t.State())
	}
	for d := range preOrder(n) {
		if d.tree != nil && d.tree != t {
			return errs.New(errs.InvalidState, op, "%s belongs to another tree", d.NameWithID())
		}
	}
	t.associateSubtree(n)
	t.root = n
	return nil
}

func (t *Tree) associate(n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.id = len(t.nodes)
	n.tree = t
	t.nodes = append(t.nodes, n)
	t.state.CompareAndSwap(int32(Init), int32(Building))
}

func (t *Tree) associateSubtree(n *Node) {
	for d := range preOrder(n) {
		if d.tree == nil {
			t.associate(d)
		}
	}
}

// PrepareFlags returns the flags in effect for the node being prepared.
func (t *Tree) PrepareFlags() PrepareFlag {
	if len(t.prepareFlags) == 0 {
		return PrepareNone
	}
	return t.prepareFlags[len(t.prepareFlags)-1]
}

// PushPrepareFlags adds f for the subtree about to be prepared.
func (t *Tree) PushPrepareFlags(f PrepareFlag) {
	t.prepareFlags = append(t.prepareFlags, t.PrepareFlags()|f)
}

// PopPrepareFlags restores the flags of the enclosing subtree.
func (t *Tree) PopPrepareFlags() {
	if len(t.prepareFlags) > 0 {
		t.prepareFlags = t.prepareFlags[:len(t.prepareFlags)-1]
	}
}

// AddToEOEOpStack records a node that a repeat operator above it resets at
// the end of every epoch.
func (t *Tree) AddToEOEOpStack(n *Node) {
	t.eoeOps = append(t.eoeOps, n)
}

// PopFromEOEOpStack removes the most recently recorded node.
func (t *Tree) PopFromEOEOpStack() (*Node, bool) {
	if len(t.eoeOps) == 0 {
		return nil, false
	}
	n := t.eoeOps[len(t.eoeOps)-1]
	t.eoeOps = t.eoeOps[:len(t.eoeOps)-1]
	return n, true
}

// Optimize runs the registered passes in order.
func (t *Tree) Optimize(ctx context.Context) error {
	for _, p := range t.passes {
		if _, err := t.RunPass(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Prepare optimizes the tree if enabled, then prepares every reachable node:
// PrepareNodePreAction on the way down, PrepareNodePostAction on the way up.
func (t *Tree) Prepare(ctx context.Context) error {
	const op = "Tree.Prepare"
	if s := t.State(); s != Building {
		return errs.New(errs.InvalidState, op, "cannot prepare a %s tree", s)
	}
	if t.root == nil {
		return errs.New(errs.InvalidState, op, "tree has no root")
	}
	logger := ctxlog.FromContext(ctx)

	if t.optimize {
		if err := t.Optimize(ctx); err != nil {
			return err
		}
		if t.root == nil {
			return errs.New(errs.InvalidState, op, "optimization removed every node")
		}
	}

	t.prepareFlags = t.prepareFlags[:0]
	t.eoeOps = t.eoeOps[:0]
	if err := t.prepareNode(ctx, t.root, make(map[*Node]bool)); err != nil {
		return err
	}
	t.state.Store(int32(Prepared))
	logger.Debug("Tree prepared.", "root", t.root.NameWithID(), "nodes", len(t.Nodes()))
	return nil
}

func (t *Tree) prepareNode(ctx context.Context, n *Node, visited map[*Node]bool) error {
	if visited[n] {
		return nil
	}
	visited[n] = true
	if err := n.PrepareNodePreAction(ctx); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := t.prepareNode(ctx, c, visited); err != nil {
			return err
		}
	}
	return n.PrepareNodePostAction(ctx)
}

// PreOrder yields the nodes reachable from the root, parents first.
func (t *Tree) PreOrder() iter.Seq[*Node] {
	return preOrder(t.root)
}

// PostOrder yields the nodes reachable from the root, children first.
func (t *Tree) PostOrder() iter.Seq[*Node] {
	return postOrder(t.root)
}

// Descendants yields n and every node below it, parents first.
func (n *Node) Descendants() iter.Seq[*Node] {
	return preOrder(n)
}

func preOrder(n *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		visited := make(map[*Node]bool)
		var visit func(*Node) bool
		visit = func(n *Node) bool {
			if n == nil || visited[n] {
				return true
			}
			visited[n] = true
			if !yield(n) {
				return false
			}
			for _, c := range n.children {
				if !visit(c) {
					return false
				}
			}
			return true
		}
		visit(n)
	}
}

func postOrder(n *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		visited := make(map[*Node]bool)
		var visit func(*Node) bool
		visit = func(n *Node) bool {
			if n == nil || visited[n] {
				return true
			}
			visited[n] = true
			for _, c := range n.children {
				if !visit(c) {
					return false
				}
			}
			return yield(n)
		}
		visit(n)
	}
}
