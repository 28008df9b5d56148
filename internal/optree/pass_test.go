package optree

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dataflow/internal/errs"
)

// recordPass logs the visit order and optionally rewrites nodes.
type recordPass struct {
	BasePass
	pre, post []string
	onPre     func(n *Node) (bool, error)
	onPost    func(n *Node) (bool, error)
}

func (p *recordPass) Name() string { return "record" }

func (p *recordPass) PreRunOnNode(_ context.Context, n *Node) (bool, error) {
	p.pre = append(p.pre, n.op.Name())
	if p.onPre != nil {
		return p.onPre(n)
	}
	return false, nil
}

func (p *recordPass) RunOnNode(_ context.Context, n *Node) (bool, error) {
	p.post = append(p.post, n.op.Name())
	if p.onPost != nil {
		return p.onPost(n)
	}
	return false, nil
}

func fanTree(t *testing.T) (*Tree, map[string]*Node) {
	t.Helper()
	nodes := map[string]*Node{}
	for _, name := range []string{"root", "a", "a1", "b", "b1"} {
		nodes[name] = stub(name)
	}
	require.NoError(t, nodes["root"].AddChild(nodes["a"]))
	require.NoError(t, nodes["root"].AddChild(nodes["b"]))
	require.NoError(t, nodes["a"].AddChild(nodes["a1"]))
	require.NoError(t, nodes["b"].AddChild(nodes["b1"]))
	tree := New()
	require.NoError(t, tree.AssignRoot(nodes["root"]))
	return tree, nodes
}

func TestRunPass_Order(t *testing.T) {
	tree, _ := fanTree(t)
	p := &recordPass{}
	modified, err := tree.RunPass(t.Context(), p)
	require.NoError(t, err)
	assert.False(t, modified)
	assert.Equal(t, []string{"root", "a", "a1", "b", "b1"}, p.pre)
	assert.Equal(t, []string{"a1", "a", "b1", "b", "root"}, p.post)
}

func TestRunPass_RemoveDuringWalk(t *testing.T) {
	tree, _ := fanTree(t)
	p := &recordPass{onPost: func(n *Node) (bool, error) {
		if n.op.Name() == "a" || n.op.Name() == "b" {
			return true, n.Remove()
		}
		return false, nil
	}}
	modified, err := tree.RunPass(t.Context(), p)
	require.NoError(t, err)
	assert.True(t, modified)
	assert.Equal(t, []string{"a1", "a", "b1", "b", "root"}, p.post, "each node is visited once")
	assert.Empty(t, cmp.Diff(map[string][]string{"root": {"a1", "b1"}, "a1": {}, "b1": {}}, shape(tree.Root())))
}

func TestRunPass_InsertDuringWalk(t *testing.T) {
	tree, nodes := fanTree(t)
	p := &recordPass{onPre: func(n *Node) (bool, error) {
		if n.op.Name() == "b" {
			return true, n.InsertAsParent(stub("cache"))
		}
		return false, nil
	}}
	modified, err := tree.RunPass(t.Context(), p)
	require.NoError(t, err)
	assert.True(t, modified)
	assert.Equal(t, []string{"root", "a", "a1", "b", "b1", "cache"}, p.pre)
	assert.Equal(t, []*Node{nodes["a"], nodes["b"].Parents()[0]}, nodes["root"].Children())
	requireConsistent(t, tree.Nodes())
}

func TestRunPass_Error(t *testing.T) {
	tree, _ := fanTree(t)
	boom := errors.New("boom")
	p := &recordPass{onPre: func(n *Node) (bool, error) {
		if n.op.Name() == "a1" {
			return false, boom
		}
		return false, nil
	}}
	_, err := tree.RunPass(t.Context(), p)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"root", "a", "a1"}, p.pre)
}

// countingAcceptor intercepts dispatch and only lets the post-order callback
// through.
type countingAcceptor struct {
	stubOp
	intercepted int
}

func (o *countingAcceptor) PreAccept(context.Context, *Node, NodePass) (bool, error) {
	o.intercepted++
	return false, nil
}

func (o *countingAcceptor) Accept(ctx context.Context, n *Node, p NodePass) (bool, error) {
	o.intercepted++
	return p.RunOnNode(ctx, n)
}

func TestRunPass_Acceptor(t *testing.T) {
	op := &countingAcceptor{stubOp: stubOp{name: "custom"}}
	tree := chain(t, NewNode(op), stub("leaf"))
	p := &recordPass{}
	_, err := tree.RunPass(t.Context(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, op.intercepted)
	assert.Equal(t, []string{"leaf"}, p.pre)
	assert.Equal(t, []string{"leaf", "custom"}, p.post)
}

func TestOptimize_RunsPassesInOrder(t *testing.T) {
	var order []string
	first := &recordPass{onPre: func(n *Node) (bool, error) {
		if n.ID() == 0 {
			order = append(order, "first")
		}
		return false, nil
	}}
	second := &recordPass{onPre: func(n *Node) (bool, error) {
		if n.ID() == 0 {
			order = append(order, "second")
		}
		return false, nil
	}}
	root := stub("root")
	tree := New(WithPasses(first, second), WithOptimize(true))
	require.NoError(t, tree.AssignRoot(root))
	require.NoError(t, tree.Prepare(t.Context()))
	assert.Equal(t, []string{"first", "second"}, order)

	_, err := tree.RunPass(t.Context(), first)
	assert.True(t, errs.Is(err, errs.InvalidState), "passes do not run on prepared trees")
}
