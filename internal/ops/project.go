package ops

import (
	"context"
	"fmt"

	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
	"github.com/vk/dataflow/internal/optree"
)

// Project keeps Columns, in that order, and drops every other column. An
// empty Columns passes rows through.
type Project struct {
	serial
	Columns []string

	idx []int
}

func (p *Project) Name() string { return "Project" }

func (p *Project) Describe() string { return fmt.Sprintf("columns=%v", p.Columns) }

// NoOp reports whether the operator can be removed from the tree.
func (p *Project) NoOp() bool { return len(p.Columns) == 0 }

func (p *Project) ComputeColMap(_ context.Context, n *optree.Node) (map[string]int, error) {
	const op = "Project.ComputeColMap"
	child, err := onlyChild(op, n)
	if err != nil {
		return nil, err
	}
	in := child.ColumnNameMap()
	if len(p.Columns) == 0 {
		return in, nil
	}
	out := make(map[string]int, len(p.Columns))
	p.idx = make([]int, len(p.Columns))
	for i, name := range p.Columns {
		j, ok := in[name]
		if !ok {
			return nil, errs.New(errs.NotFound, op, "%s has no input column %q, have %s", n.NameWithID(), name, child.ColumnNameMapAsString())
		}
		if _, dup := out[name]; dup {
			return nil, errs.New(errs.InvalidArgument, op, "column %q is projected twice", name)
		}
		out[name] = i
		p.idx[i] = j
	}
	return out, nil
}

func (p *Project) Run(ctx context.Context, n *optree.Node) error {
	return forward(ctx, n, 0, p.next)
}

func (p *Project) NextBuffer(ctx context.Context, n *optree.Node, workerID int) (message.Message, error) {
	return p.next(ctx, n, workerID)
}

func (p *Project) next(ctx context.Context, n *optree.Node, workerID int) (message.Message, error) {
	msg, err := n.GetNextInput(ctx, workerID, 0)
	if err != nil || !msg.IsData() || len(p.idx) == 0 {
		return msg, err
	}
	row, err := RowOf(msg)
	if err != nil {
		return message.Message{}, err
	}
	out := make(Row, len(p.idx))
	for i, j := range p.idx {
		if j >= len(row) {
			return message.Message{}, errs.New(errs.InvalidArgument, "Project.next", "row has %d values, column %q is at %d", len(row), p.Columns[i], j)
		}
		out[i] = row[j]
	}
	return message.NewData(out), nil
}
