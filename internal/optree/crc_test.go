package optree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dataflow/internal/sampler"
)

func buildForCRC(t *testing.T, tree *Tree, desc string) *Node {
	t.Helper()
	root := NewNode(&stubOp{name: "map", desc: desc, Parallelism: Parallelism{Workers: 2}})
	leaf := NewNode(&stubOp{name: "gen", desc: "rows=3"}, WithSampler(&sampler.Sequential{Count: 2}), WithQueueSize(4))
	require.NoError(t, root.AddChild(leaf))
	require.NoError(t, tree.AssignRoot(root))
	return root
}

func TestGenerateCRC_Deterministic(t *testing.T) {
	a := buildForCRC(t, New(), "fn=upper")
	assert.Equal(t, GenerateCRC(a), GenerateCRC(a))

	// Shift the ids of the second tree.
	shifted := New()
	for range 5 {
		require.NoError(t, shifted.AssociateNode(stub("unused")))
	}
	b := buildForCRC(t, shifted, "fn=upper")
	require.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, GenerateCRC(a), GenerateCRC(b))

	// Runtime state does not contribute.
	b.SetControlFlag(FlagRepeated)
	b.SetState(Terminated)
	assert.Equal(t, GenerateCRC(a), GenerateCRC(b))
}

func TestGenerateCRC_ConfigurationSensitive(t *testing.T) {
	base := GenerateCRC(buildForCRC(t, New(), "fn=upper"))
	assert.NotEqual(t, base, GenerateCRC(buildForCRC(t, New(), "fn=lower")))

	extra := buildForCRC(t, New(), "fn=upper")
	require.NoError(t, extra.Child(0).AddChild(stub("deeper")))
	assert.NotEqual(t, base, GenerateCRC(extra))

	other := buildForCRC(t, New(), "fn=upper")
	other.Child(0).sampler = &sampler.Sequential{Count: 3}
	assert.NotEqual(t, base, GenerateCRC(other))
}

func TestMaskCRC(t *testing.T) {
	assert.Equal(t, uint32(0xa282ead8), maskCRC(0))
	assert.NotEqual(t, maskCRC(1), maskCRC(2))
}
