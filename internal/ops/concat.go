package ops

import (
	"context"
	"maps"

	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
	"github.com/vk/dataflow/internal/optree"
)

// Concat emits the epoch of each child in child order, then a single EoE.
// Every child must produce the same columns and the same number of epochs.
type Concat struct {
	serial
}

func (c *Concat) Name() string { return "Concat" }

func (c *Concat) ComputeColMap(_ context.Context, n *optree.Node) (map[string]int, error) {
	const op = "Concat.ComputeColMap"
	children := n.Children()
	if len(children) == 0 {
		return nil, errs.New(errs.InvalidState, op, "%s has no children", n.NameWithID())
	}
	cols := children[0].ColumnNameMap()
	for _, child := range children[1:] {
		if !maps.Equal(cols, child.ColumnNameMap()) {
			return nil, errs.New(errs.InvalidArgument, op, "%s columns %s differ from %s columns %s",
				child.NameWithID(), child.ColumnNameMapAsString(), children[0].NameWithID(), children[0].ColumnNameMapAsString())
		}
	}
	return cols, nil
}

func (c *Concat) PrepareNodePostAction(_ context.Context, n *optree.Node) error {
	if n.Inlined() {
		return errs.New(errs.InvalidArgument, "Concat.PrepareNodePostAction", "%s reads several children and cannot be inlined", n.NameWithID())
	}
	return nil
}

// EOEReceived ends the epoch of one child. Run emits the merged EoE.
func (c *Concat) EOEReceived(_ context.Context, n *optree.Node, _ int) error {
	n.SetState(optree.Idle)
	return nil
}

// EOFReceived is a no-op. Run emits EoF once every child ended.
func (c *Concat) EOFReceived(context.Context, *optree.Node, int) error { return nil }

func (c *Concat) Run(ctx context.Context, n *optree.Node) error {
	children := len(n.Children())
	for {
		ended := 0
		for i := range children {
			eof, err := c.drainChild(ctx, n, i)
			if err != nil {
				return err
			}
			if eof {
				ended++
			}
		}
		switch {
		case ended == children:
			if err := n.Push(ctx, 0, message.EOF()); err != nil {
				return err
			}
			n.SetState(optree.Terminated)
			return nil
		case ended > 0:
			return errs.New(errs.InvalidState, "Concat.Run", "%d of %d children of %s ended while the others produced another epoch", ended, children, n.NameWithID())
		}
		if err := n.Push(ctx, 0, message.EOE()); err != nil {
			return err
		}
	}
}

// drainChild forwards one epoch of child i and reports whether it ended
// with EoF instead.
func (c *Concat) drainChild(ctx context.Context, n *optree.Node, i int) (bool, error) {
	for {
		msg, err := n.GetNextInput(ctx, 0, i)
		if err != nil {
			return false, err
		}
		switch {
		case msg.IsEOE():
			return false, nil
		case msg.IsEOF():
			return true, nil
		}
		if err := n.Push(ctx, 0, msg); err != nil {
			return false, err
		}
	}
}
