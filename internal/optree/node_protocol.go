package optree

import (
	"context"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
)

// GetNextBuffer is the raw read from the output of n. Control messages are
// returned as they are. Inlined nodes serve the read in the caller's
// goroutine, through their Inliner or straight from child 0.
func (n *Node) GetNextBuffer(ctx context.Context, workerID int) (message.Message, error) {
	const op = "Node.GetNextBuffer"
	if n.out != nil {
		return n.out.Pop(ctx, workerID)
	}
	if !n.Inlined() {
		return message.Message{}, errs.New(errs.InvalidState, op, "%s has no output connector, tree not prepared", n.NameWithID())
	}
	if inl, ok := n.op.(Inliner); ok {
		return inl.NextBuffer(ctx, n, workerID)
	}
	if len(n.children) == 0 {
		return message.Message{}, errs.New(errs.InvalidState, op, "inlined %s has no child to read from", n.NameWithID())
	}
	return n.children[0].GetNextBuffer(ctx, workerID)
}

// GetNextInput reads the next message from child childIdx and runs the
// control message handlers of n. After an EoE the read is retried when the
// handler left worker workerID outside Idle, otherwise the EoE is returned
// as the epoch boundary. EoF is returned after EOFReceived.
func (n *Node) GetNextInput(ctx context.Context, workerID, childIdx int) (message.Message, error) {
	const op = "Node.GetNextInput"
	child := n.Child(childIdx)
	if child == nil {
		return message.Message{}, errs.New(errs.InvalidArgument, op, "%s has no child %d", n.NameWithID(), childIdx)
	}

	for {
		msg, err := child.GetNextBuffer(ctx, workerID)
		if err != nil {
			return message.Message{}, err
		}
		switch msg.Flag {
		case message.EndOfEpoch:
			if err := n.EOEReceived(ctx, workerID); err != nil {
				return message.Message{}, err
			}
			if n.WorkerState(workerID) != Idle {
				continue
			}
			return msg, nil
		case message.EndOfFile:
			if err := n.EOFReceived(ctx, workerID); err != nil {
				return message.Message{}, err
			}
			return msg, nil
		default:
			if n.WorkerState(workerID) == Terminated {
				return message.Message{}, errs.New(errs.ProtocolViolation, op, "%s received data after eof", n.NameWithID())
			}
			if w := n.workerSlot(workerID); w != nil {
				w.CompareAndSwap(int32(Idle), int32(Running))
			}
			n.state.CompareAndSwap(int32(Idle), int32(Running))
			return msg, nil
		}
	}
}

// EOEReceived runs the operator's EOEHandler or DefaultEOEReceived.
func (n *Node) EOEReceived(ctx context.Context, workerID int) error {
	if h, ok := n.op.(EOEHandler); ok {
		return h.EOEReceived(ctx, n, workerID)
	}
	return n.DefaultEOEReceived(ctx, workerID)
}

// EOFReceived runs the operator's EOFHandler or DefaultEOFReceived.
func (n *Node) EOFReceived(ctx context.Context, workerID int) error {
	if h, ok := n.op.(EOFHandler); ok {
		return h.EOFReceived(ctx, n, workerID)
	}
	return n.DefaultEOFReceived(ctx, workerID)
}

// DefaultEOEReceived moves worker workerID to Idle and forwards the EoE on
// the output of n, if it has one.
func (n *Node) DefaultEOEReceived(ctx context.Context, workerID int) error {
	n.SetWorkerState(workerID, Idle)
	if n.out == nil {
		return nil
	}
	return n.out.Push(ctx, workerID, message.EOE())
}

// DefaultEOFReceived forwards the EoF on the output of n, if it has one. The
// node is Terminated once every worker reading it has seen EoF.
func (n *Node) DefaultEOFReceived(ctx context.Context, workerID int) error {
	if n.out != nil {
		if err := n.out.Push(ctx, workerID, message.EOF()); err != nil {
			return err
		}
	}
	if w := n.workerSlot(workerID); w != nil {
		w.Store(int32(Terminated))
	}
	if int(n.eofWorkers.Add(1)) >= n.readers() {
		n.SetState(Terminated)
		ctxlog.FromContext(ctx).Debug("Node terminated.", "node", n.NameWithID())
	}
	return nil
}

// Push sends msg on the output of n from worker workerID.
func (n *Node) Push(ctx context.Context, workerID int, msg message.Message) error {
	if n.out == nil {
		return errs.New(errs.InvalidState, "Node.Push", "%s has no output connector", n.NameWithID())
	}
	return n.out.Push(ctx, workerID, msg)
}

// Readers returns the number of goroutines calling GetNextInput on n.
func (n *Node) Readers() int { return n.readers() }

// readers is the number of goroutines calling GetNextInput on n. Inlined
// nodes run on the workers of their consumers.
func (n *Node) readers() int {
	if n.Inlined() {
		return n.consumers()
	}
	return n.op.NumWorkers()
}

// consumers is the number of goroutines that read the output of n.
func (n *Node) consumers() int {
	c := 1
	for _, p := range n.parents {
		c = max(c, p.readers())
	}
	return c
}
