package ops

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vk/dataflow/internal/optree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mustRow(t *testing.T, vals ...any) Row {
	t.Helper()
	row, err := NewRow(vals...)
	require.NoError(t, err)
	return row
}

// ints is a one-column generator emitting the given ids.
func ints(t *testing.T, column string, ids ...int) *Generator {
	t.Helper()
	g := &Generator{Columns: []string{column}}
	for _, id := range ids {
		g.Rows = append(g.Rows, mustRow(t, id))
	}
	return g
}

// build makes each node the only child of the previous one and prepares the
// tree rooted at the first.
func build(t *testing.T, nodes ...*optree.Node) (*optree.Tree, error) {
	t.Helper()
	for i := 0; i+1 < len(nodes); i++ {
		require.NoError(t, nodes[i].AddChild(nodes[i+1]))
	}
	tree := optree.New()
	require.NoError(t, tree.AssignRoot(nodes[0]))
	return tree, tree.Prepare(t.Context())
}

func launch(t *testing.T, nodes ...*optree.Node) *optree.Tree {
	t.Helper()
	tree, err := build(t, nodes...)
	require.NoError(t, err)
	require.NoError(t, tree.Launch(t.Context()))
	return tree
}

// collect drains the root and returns the rows of each epoch in JSON form.
func collect(t *testing.T, tree *optree.Tree) [][]string {
	t.Helper()
	var epochs [][]string
	current := []string{}
	for {
		msg, err := tree.Next(t.Context())
		require.NoError(t, err)
		switch {
		case msg.IsEOF():
			require.NoError(t, tree.Wait())
			return epochs
		case msg.IsEOE():
			epochs = append(epochs, current)
			current = []string{}
		default:
			row, err := RowOf(msg)
			require.NoError(t, err)
			current = append(current, row.String())
		}
	}
}

// failure drains the root until it returns an error.
func failure(t *testing.T, tree *optree.Tree) error {
	t.Helper()
	for {
		msg, err := tree.Next(t.Context())
		if err != nil {
			_ = tree.Wait()
			return err
		}
		require.False(t, msg.IsEOF(), "tree ended without an error")
	}
}
