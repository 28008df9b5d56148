package optree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vk/dataflow/internal/message"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubOp is a configurable operator for tree tests.
type stubOp struct {
	Parallelism
	name string
	desc string
	run  func(ctx context.Context, n *Node) error
}

func (o *stubOp) Name() string { return o.name }

func (o *stubOp) Describe() string { return o.desc }

func (o *stubOp) Run(ctx context.Context, n *Node) error {
	if o.run == nil {
		return nil
	}
	return o.run(ctx, n)
}

func stub(name string, opts ...NodeOption) *Node {
	return NewNode(&stubOp{name: name}, opts...)
}

// scriptRun pushes msgs on the output of the node, then returns.
func scriptRun(msgs ...message.Message) func(ctx context.Context, n *Node) error {
	return func(ctx context.Context, n *Node) error {
		for _, m := range msgs {
			if err := n.Push(ctx, 0, m); err != nil {
				return err
			}
		}
		return nil
	}
}

// forwardRun copies child 0 to the output until EoF, relying on the default
// control handlers to forward EoE and EoF.
func forwardRun(ctx context.Context, n *Node) error {
	for {
		msg, err := n.GetNextInput(ctx, 0, 0)
		if err != nil {
			return err
		}
		switch {
		case msg.IsEOF():
			return nil
		case msg.IsData():
			if err := n.Push(ctx, 0, msg); err != nil {
				return err
			}
		}
	}
}

// chain links nodes so that each one is the only child of the previous one
// and assigns the first as the root of a new tree.
func chain(t *testing.T, nodes ...*Node) *Tree {
	t.Helper()
	for i := 0; i+1 < len(nodes); i++ {
		require.NoError(t, nodes[i].AddChild(nodes[i+1]))
	}
	tree := New()
	require.NoError(t, tree.AssignRoot(nodes[0]))
	return tree
}

// requireConsistent checks that parent and child links agree everywhere.
func requireConsistent(t *testing.T, nodes []*Node) {
	t.Helper()
	count := func(list []*Node, x *Node) int {
		c := 0
		for _, n := range list {
			if n == x {
				c++
			}
		}
		return c
	}
	for _, n := range nodes {
		for _, c := range n.children {
			require.Equal(t, 1, count(c.parents, n), "%s lists child %s, but not vice versa", n, c)
			require.Equal(t, 1, count(n.children, c), "%s lists child %s twice", n, c)
		}
		for _, p := range n.parents {
			require.Equal(t, 1, count(p.children, n), "%s lists parent %s, but not vice versa", n, p)
		}
		require.False(t, n.reachesStrictly(n), "%s is its own ancestor", n)
	}
}

// reachesStrictly reports whether target is a proper descendant of n.
func (n *Node) reachesStrictly(target *Node) bool {
	for _, c := range n.children {
		if c.reaches(target) {
			return true
		}
	}
	return false
}

// shape describes the child lists of a tree by node name, for go-cmp.
func shape(root *Node) map[string][]string {
	out := make(map[string][]string)
	for n := range preOrder(root) {
		names := []string{}
		for _, c := range n.children {
			names = append(names, c.op.Name())
		}
		out[n.op.Name()] = names
	}
	return out
}
