package ops

import (
	"context"

	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
	"github.com/vk/dataflow/internal/optree"
)

// stepFunc returns the next output message of an operator on one worker.
type stepFunc func(ctx context.Context, n *optree.Node, workerID int) (message.Message, error)

// forward pushes the data returned by step until EoF. EoE and EoF reach the
// output through the control handlers of n.
func forward(ctx context.Context, n *optree.Node, workerID int, step stepFunc) error {
	for {
		msg, err := step(ctx, n, workerID)
		if err != nil {
			return err
		}
		switch {
		case msg.IsEOF():
			return nil
		case msg.IsData():
			if err := n.Push(ctx, workerID, msg); err != nil {
				return err
			}
		}
	}
}

// serial gives an operator exactly one worker.
type serial struct{}

func (serial) NumWorkers() int   { return 1 }
func (serial) NumProducers() int { return 1 }
func (serial) NumConsumers() int { return 1 }

// onlyChild returns the single input of n.
func onlyChild(op string, n *optree.Node) (*optree.Node, error) {
	if c := n.Children(); len(c) == 1 {
		return c[0], nil
	}
	return nil, errs.New(errs.InvalidState, op, "%s needs exactly one child, has %d", n.NameWithID(), len(n.Children()))
}
