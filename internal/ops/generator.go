package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
	"github.com/vk/dataflow/internal/optree"
	"github.com/vk/dataflow/internal/sampler"
)

// Generator is a leaf that emits in-memory rows. The sampler of its node
// picks the rows of every epoch; without one every row is emitted in order.
//
// Below a repeat operator the generator waits for a reset after each epoch
// and pushes EoF after the epoch flagged as the last repeat.
type Generator struct {
	serial
	Columns []string
	Rows    []Row
}

func (g *Generator) Name() string { return "Generator" }

func (g *Generator) Describe() string {
	return fmt.Sprintf("columns=%v rows=%d", g.Columns, len(g.Rows))
}

// Fingerprint encodes every row, one per line.
func (g *Generator) Fingerprint() string {
	var b strings.Builder
	for _, row := range g.Rows {
		b.WriteString(row.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (g *Generator) ComputeColMap(_ context.Context, n *optree.Node) (map[string]int, error) {
	const op = "Generator.ComputeColMap"
	if len(n.Children()) > 0 {
		return nil, errs.New(errs.InvalidState, op, "%s is a leaf and cannot have children", n.NameWithID())
	}
	cols := make(map[string]int, len(g.Columns))
	for i, name := range g.Columns {
		if name == "" {
			return nil, errs.New(errs.InvalidArgument, op, "column %d has no name", i)
		}
		if _, dup := cols[name]; dup {
			return nil, errs.New(errs.InvalidArgument, op, "duplicate column %q", name)
		}
		cols[name] = i
	}
	for i, row := range g.Rows {
		if len(row) != len(g.Columns) {
			return nil, errs.New(errs.InvalidArgument, op, "row %d has %d values, want %d", i, len(row), len(g.Columns))
		}
	}
	return cols, nil
}

// Reset rewinds the sampler for the next repeat.
func (g *Generator) Reset(_ context.Context, n *optree.Node) error {
	if s := n.Sampler(); s != nil {
		s.Reset()
	}
	return nil
}

func (g *Generator) Run(ctx context.Context, n *optree.Node) error {
	logger := ctxlog.FromContext(ctx)
	s := n.Sampler()
	if s == nil {
		s = &sampler.Sequential{}
	}
	if err := s.Init(len(g.Rows)); err != nil {
		return err
	}

	for epoch := 1; ; epoch++ {
		ids, err := s.Epoch()
		if err != nil {
			return err
		}
		for _, i := range ids {
			if err := n.Push(ctx, 0, message.NewData(g.Rows[i])); err != nil {
				return err
			}
		}
		// The flag is read before the EoE goes out: the repeat above sets it
		// for the next pass while handling this EoE.
		last := lastPass(n)
		n.SetState(optree.Idle)
		if err := n.Push(ctx, 0, message.EOE()); err != nil {
			return err
		}
		logger.Debug("Generator epoch done.", "epoch", epoch, "rows", len(ids))

		if last {
			break
		}
		if err := n.WaitForReset(ctx); err != nil {
			return err
		}
	}

	if err := n.Push(ctx, 0, message.EOF()); err != nil {
		return err
	}
	n.SetState(optree.Terminated)
	return nil
}
