package optree

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dataflow/internal/errs"
)

func TestAddChild(t *testing.T) {
	t.Run("links both directions", func(t *testing.T) {
		p, a, b := stub("p"), stub("a"), stub("b")
		require.NoError(t, p.AddChild(a))
		require.NoError(t, p.AddChild(b))
		assert.Equal(t, []*Node{a, b}, p.Children())
		assert.Equal(t, []*Node{p}, a.Parents())
		assert.Equal(t, InvalidID, a.ID(), "standalone nodes have no id")
	})

	t.Run("rejected additions", func(t *testing.T) {
		p, c := stub("p"), stub("c")
		require.NoError(t, p.AddChild(c))

		for _, tc := range []struct {
			name  string
			child *Node
			kind  errs.Kind
		}{
			{"nil", nil, errs.InvalidArgument},
			{"self", p, errs.InvalidArgument},
			{"duplicate", c, errs.AlreadyExists},
		} {
			t.Run(tc.name, func(t *testing.T) {
				err := p.AddChild(tc.child)
				assert.True(t, errs.Is(err, tc.kind), "got %v", err)
				assert.Equal(t, []*Node{c}, p.Children())
			})
		}
	})

	t.Run("cycle", func(t *testing.T) {
		a, b, c := stub("a"), stub("b"), stub("c")
		require.NoError(t, a.AddChild(b))
		require.NoError(t, b.AddChild(c))
		err := c.AddChild(a)
		assert.True(t, errs.Is(err, errs.InvalidArgument))
		assert.Empty(t, c.Children())
		assert.Empty(t, a.Parents())
	})

	t.Run("associates the subtree of a new child", func(t *testing.T) {
		root := stub("root")
		tree := New()
		require.NoError(t, tree.AssignRoot(root))

		c, g := stub("c"), stub("g")
		require.NoError(t, c.AddChild(g))
		require.NoError(t, root.AddChild(c))
		assert.Same(t, tree, c.Tree())
		assert.Same(t, tree, g.Tree())
		assert.Equal(t, 1, c.ID())
		assert.Equal(t, 2, g.ID())
	})

	t.Run("different trees", func(t *testing.T) {
		a, b := stub("a"), stub("b")
		require.NoError(t, New().AssignRoot(a))
		require.NoError(t, New().AssignRoot(b))
		assert.True(t, errs.Is(a.AddChild(b), errs.InvalidState))
		assert.Empty(t, a.Children())
	})
}

func TestRemoveChild(t *testing.T) {
	p, a, b := stub("p"), stub("a"), stub("b")
	require.NoError(t, p.AddChild(a))
	require.NoError(t, p.AddChild(b))

	require.NoError(t, p.RemoveChild(a))
	assert.Equal(t, []*Node{b}, p.Children())
	assert.Empty(t, a.Parents())

	err := p.RemoveChild(a)
	assert.True(t, errs.Is(err, errs.NotFound))
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestRemove(t *testing.T) {
	t.Run("middle of a chain", func(t *testing.T) {
		p, c, g := stub("p"), stub("c"), stub("g")
		tree := chain(t, p, c, g)

		require.NoError(t, c.Remove())
		assert.Equal(t, []*Node{g}, p.Children())
		assert.Equal(t, []*Node{p}, g.Parents())
		assert.Empty(t, c.Children())
		assert.Empty(t, c.Parents())
		assert.Same(t, p, tree.Root())

		n, ok := tree.Node(c.ID())
		require.True(t, ok, "removed nodes keep their id")
		assert.Same(t, c, n)
	})

	t.Run("keeps the position of the replaced child", func(t *testing.T) {
		p, a, c, b, g := stub("p"), stub("a"), stub("c"), stub("b"), stub("g")
		require.NoError(t, p.AddChild(a))
		require.NoError(t, p.AddChild(c))
		require.NoError(t, p.AddChild(b))
		require.NoError(t, c.AddChild(g))

		require.NoError(t, c.Remove())
		assert.Equal(t, []*Node{a, g, b}, p.Children())
	})

	t.Run("leaf", func(t *testing.T) {
		p, a, b := stub("p"), stub("a"), stub("b")
		require.NoError(t, p.AddChild(a))
		require.NoError(t, p.AddChild(b))
		require.NoError(t, a.Remove())
		assert.Equal(t, []*Node{b}, p.Children())
	})

	t.Run("root re-roots at the child", func(t *testing.T) {
		r, c := stub("r"), stub("c")
		tree := chain(t, r, c)
		require.NoError(t, r.Remove())
		assert.Same(t, c, tree.Root())
		assert.Empty(t, c.Parents())
	})

	t.Run("unsupported shapes", func(t *testing.T) {
		p1, p2, m, c1, c2 := stub("p1"), stub("p2"), stub("m"), stub("c1"), stub("c2")
		require.NoError(t, m.AddChild(c1))
		require.NoError(t, m.AddChild(c2))
		assert.True(t, errs.Is(m.Remove(), errs.UnsupportedOperation))

		require.NoError(t, p1.AddChild(c1))
		require.NoError(t, p2.AddChild(c1))
		assert.True(t, errs.Is(c1.Remove(), errs.UnsupportedOperation))
		requireConsistent(t, []*Node{p1, p2, m, c1, c2})
		assert.Len(t, c1.Parents(), 3)
	})
}

func TestInsertAsParent(t *testing.T) {
	t.Run("splices into an edge", func(t *testing.T) {
		p, c, n := stub("p"), stub("c"), stub("n")
		tree := chain(t, p, c)

		require.NoError(t, c.InsertAsParent(n))
		assert.Equal(t, []*Node{n}, p.Children())
		assert.Equal(t, []*Node{p}, n.Parents())
		assert.Equal(t, []*Node{c}, n.Children())
		assert.Equal(t, []*Node{n}, c.Parents())
		assert.Same(t, tree, n.Tree())
		assert.NotEqual(t, InvalidID, n.ID())
	})

	t.Run("root", func(t *testing.T) {
		r, n := stub("r"), stub("n")
		tree := chain(t, r)
		require.NoError(t, r.InsertAsParent(n))
		assert.Same(t, n, tree.Root())
		assert.Empty(t, n.Parents())
	})

	t.Run("multiple parents", func(t *testing.T) {
		p1, p2, x, c, n := stub("p1"), stub("p2"), stub("x"), stub("c"), stub("n")
		require.NoError(t, p1.AddChild(x))
		require.NoError(t, p1.AddChild(c))
		require.NoError(t, p2.AddChild(c))

		require.NoError(t, c.InsertAsParent(n))
		assert.Equal(t, []*Node{x, n}, p1.Children())
		assert.Equal(t, []*Node{n}, p2.Children())
		assert.Equal(t, []*Node{p1, p2}, n.Parents())
		assert.Equal(t, []*Node{n}, c.Parents())
		requireConsistent(t, []*Node{p1, p2, x, c, n})
	})

	t.Run("new node must be standalone", func(t *testing.T) {
		p, c, n, other := stub("p"), stub("c"), stub("n"), stub("other")
		require.NoError(t, p.AddChild(c))
		require.NoError(t, n.AddChild(other))

		for _, bad := range []*Node{nil, c, n, p} {
			err := c.InsertAsParent(bad)
			assert.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)
		}
		assert.Equal(t, []*Node{c}, p.Children())
		assert.Equal(t, []*Node{p}, c.Parents())
	})
}

func TestMutations_FrozenAfterPrepare(t *testing.T) {
	r, c := stub("r"), stub("c")
	tree := chain(t, r, c)
	require.NoError(t, tree.Prepare(t.Context()))

	assert.True(t, errs.Is(r.AddChild(stub("x")), errs.InvalidState))
	assert.True(t, errs.Is(r.RemoveChild(c), errs.InvalidState))
	assert.True(t, errs.Is(c.Remove(), errs.InvalidState))
	assert.True(t, errs.Is(c.InsertAsParent(stub("y")), errs.InvalidState))
	assert.Equal(t, []*Node{c}, r.Children())
}

// TestRandomMutations applies random mutation sequences and checks that the
// links stay mutual and acyclic, and that failed mutations change nothing.
func TestRandomMutations(t *testing.T) {
	for seed := range uint64(10) {
		rng := rand.New(rand.NewPCG(seed, 42))
		tree := New()
		root := stub("root")
		require.NoError(t, tree.AssignRoot(root))
		nodes := []*Node{root}

		for step := range 150 {
			pick := func() *Node { return nodes[rng.IntN(len(nodes))] }
			before := snapshot(nodes)

			var err error
			switch rng.IntN(5) {
			case 0, 1:
				n := stub("n")
				err = pick().AddChild(n)
				nodes = append(nodes, n)
			case 2:
				err = pick().AddChild(pick())
			case 3:
				p := pick()
				if len(p.children) > 0 {
					err = p.RemoveChild(p.children[rng.IntN(len(p.children))])
				} else {
					err = p.RemoveChild(pick())
				}
			case 4:
				if rng.IntN(2) == 0 {
					n := stub("n")
					err = pick().InsertAsParent(n)
					nodes = append(nodes, n)
				} else {
					err = pick().Remove()
				}
			}

			requireConsistent(t, nodes)
			if err != nil {
				after := snapshot(nodes[:len(before)])
				require.Empty(t, cmp.Diff(before, after), "seed %d step %d: failed mutation %v changed the tree", seed, step, err)
			}
		}

		seen := make(map[int]bool)
		for _, n := range tree.Nodes() {
			require.False(t, seen[n.ID()], "duplicate id %d", n.ID())
			seen[n.ID()] = true
			got, ok := tree.Node(n.ID())
			require.True(t, ok)
			require.Same(t, n, got)
		}
	}
}

// snapshot records the links of nodes by their index in the slice.
func snapshot(nodes []*Node) [][2][]int {
	index := make(map[*Node]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}
	ids := func(list []*Node) []int {
		out := []int{}
		for _, n := range list {
			if i, ok := index[n]; ok {
				out = append(out, i)
			} else {
				out = append(out, -1)
			}
		}
		return out
	}
	snap := make([][2][]int, len(nodes))
	for i, n := range nodes {
		snap[i] = [2][]int{ids(n.children), ids(n.parents)}
	}
	return snap
}
