package ops

import (
	"context"
	"fmt"

	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/optree"
)

// Take passes at most Limit rows per epoch. A Limit of zero or less passes
// everything.
type Take struct {
	serial
	Limit int
}

func (t *Take) Name() string { return "Take" }

func (t *Take) Describe() string { return fmt.Sprintf("limit=%d", t.Limit) }

// NoOp reports whether the operator can be removed from the tree.
func (t *Take) NoOp() bool { return t.Limit <= 0 }

// PrepareNodePostAction rejects inlining: the per-epoch count lives on the
// task of the node.
func (t *Take) PrepareNodePostAction(_ context.Context, n *optree.Node) error {
	if n.Inlined() {
		return errs.New(errs.InvalidArgument, "Take.PrepareNodePostAction", "%s cannot be inlined", n.NameWithID())
	}
	return nil
}

func (t *Take) Run(ctx context.Context, n *optree.Node) error {
	taken := 0
	for {
		msg, err := n.GetNextInput(ctx, 0, 0)
		if err != nil {
			return err
		}
		switch {
		case msg.IsEOF():
			return nil
		case msg.IsEOE():
			taken = 0
		case t.Limit <= 0 || taken < t.Limit:
			taken++
			if err := n.Push(ctx, 0, msg); err != nil {
				return err
			}
		}
	}
}
