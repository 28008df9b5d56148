package ops

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
	"github.com/vk/dataflow/internal/optree"
)

// RowFunc computes one value from a row, given the column map of the input.
type RowFunc func(cols map[string]int, row Row) (cty.Value, error)

// Map writes the result of Fn into Column, appending the column when the
// input does not have it. Several workers may run Fn concurrently, so Fn
// must be safe for concurrent use.
type Map struct {
	optree.Parallelism
	Column string
	Fn     RowFunc
	// Label identifies Fn in Describe and in errors.
	Label string

	in        map[string]int
	target    int
	processed []atomic.Int64
}

func (m *Map) Name() string { return "Map" }

func (m *Map) Describe() string {
	return fmt.Sprintf("column=%s fn=%q workers=%d", m.Column, m.Label, m.NumWorkers())
}

// NoOp reports whether the operator can be removed from the tree.
func (m *Map) NoOp() bool { return m.Fn == nil }

func (m *Map) ComputeColMap(_ context.Context, n *optree.Node) (map[string]int, error) {
	const op = "Map.ComputeColMap"
	child, err := onlyChild(op, n)
	if err != nil {
		return nil, err
	}
	in := child.ColumnNameMap()
	if m.Fn == nil {
		return in, nil
	}
	if m.Column == "" {
		return nil, errs.New(errs.InvalidArgument, op, "%s has no output column", n.NameWithID())
	}
	out := maps.Clone(in)
	idx, ok := in[m.Column]
	if !ok {
		idx = len(in)
		out[m.Column] = idx
	}
	m.in, m.target = in, idx
	return out, nil
}

// RegisterWorkerConnectors allocates the per-worker row counters.
func (m *Map) RegisterWorkerConnectors(ctx context.Context, n *optree.Node) error {
	m.processed = make([]atomic.Int64, m.NumWorkers())
	ctxlog.FromContext(ctx).Debug("Map workers registered.", "node", n.NameWithID(), "workers", m.NumWorkers())
	return nil
}

// Processed returns the number of rows each worker has transformed.
func (m *Map) Processed() []int64 {
	out := make([]int64, len(m.processed))
	for i := range m.processed {
		out[i] = m.processed[i].Load()
	}
	return out
}

func (m *Map) Run(ctx context.Context, n *optree.Node) error {
	return n.LaunchWorkers(ctx, m.NumWorkers(), func(ctx context.Context, workerID int) error {
		return forward(ctx, n, workerID, m.next)
	})
}

// NextBuffer serves an inlined map. Its single slot counts the rows of every
// caller.
func (m *Map) NextBuffer(ctx context.Context, n *optree.Node, workerID int) (message.Message, error) {
	return m.next(ctx, n, workerID)
}

func (m *Map) next(ctx context.Context, n *optree.Node, workerID int) (message.Message, error) {
	msg, err := n.GetNextInput(ctx, workerID, 0)
	if err != nil || !msg.IsData() || m.Fn == nil {
		return msg, err
	}
	row, err := RowOf(msg)
	if err != nil {
		return message.Message{}, err
	}
	v, err := m.Fn(m.in, row)
	if err != nil {
		return message.Message{}, fmt.Errorf("evaluating %q for column %s: %w", m.Label, m.Column, err)
	}

	out := row.Clone()
	if m.target == len(out) {
		out = append(out, v)
	} else {
		out[m.target] = v
	}
	if len(m.processed) > 0 {
		m.processed[min(workerID, len(m.processed)-1)].Add(1)
	}
	return message.NewData(out), nil
}
