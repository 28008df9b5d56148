package optree

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
)

// errStopped is the cancellation cause of a tree shut down with Stop.
var errStopped = errs.New(errs.Cancelled, "Tree.Stop", "tree stopped")

// Launch starts one task per reachable non-inlined node. Inlined nodes run
// on the goroutines of their consumers. The first task failure cancels the
// context shared by all tasks and is returned by Wait and Next.
func (t *Tree) Launch(ctx context.Context) error {
	const op = "Tree.Launch"
	if s := t.State(); s != Prepared {
		return errs.New(errs.InvalidState, op, "cannot launch a %s tree", s)
	}
	logger := ctxlog.FromContext(ctx)

	for n := range t.PreOrder() {
		if r, ok := n.op.(WorkerConnectorRegistrar); ok {
			if err := r.RegisterWorkerConnectors(ctx, n); err != nil {
				return fmt.Errorf("registering worker connectors of %s: %w", n.NameWithID(), err)
			}
		}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	t.group, t.groupCtx = errgroup.WithContext(runCtx)
	t.cancel = cancel
	t.state.Store(int32(Executing))

	tasks := 0
	for n := range t.PostOrder() {
		if n.Inlined() {
			continue
		}
		n.SetState(Running)
		nodeCtx := ctxlog.With(t.groupCtx, "node", n.NameWithID())
		t.group.Go(func() error {
			l := ctxlog.FromContext(nodeCtx)
			l.Debug("Node task started.")
			if err := n.op.Run(nodeCtx, n); err != nil {
				l.Debug("Node task failed.", "error", err)
				return fmt.Errorf("%s: %w", n.NameWithID(), err)
			}
			l.Debug("Node task finished.")
			return nil
		})
		tasks++
	}
	logger.Info("Tree launched.", "tasks", tasks)
	return nil
}

// LaunchWorkers starts count extra tasks for n, each running fn with its
// worker id. Operators call it from Run to process their input in parallel.
func (n *Node) LaunchWorkers(ctx context.Context, count int, fn func(ctx context.Context, workerID int) error) error {
	const op = "Node.LaunchWorkers"
	t := n.tree
	if t == nil || t.State() != Executing {
		return errs.New(errs.InvalidState, op, "%s is not part of an executing tree", n.NameWithID())
	}
	for w := range count {
		workerCtx := ctxlog.With(ctx, "worker", w)
		t.group.Go(func() error {
			if err := fn(workerCtx, w); err != nil {
				return fmt.Errorf("%s worker %d: %w", n.NameWithID(), w, err)
			}
			return nil
		})
	}
	return nil
}

// Wait blocks until every task returned and reports the first failure.
func (t *Tree) Wait() error {
	if t.group == nil {
		return errs.New(errs.InvalidState, "Tree.Wait", "tree was not launched")
	}
	t.waitOnce.Do(func() {
		t.waitErr = t.group.Wait()
		t.cancel(nil)
		t.state.Store(int32(Finished))
	})
	return t.waitErr
}

// Next pops the next message from the root. When a task failed, Next
// returns that failure instead of the resulting cancellation.
func (t *Tree) Next(ctx context.Context) (message.Message, error) {
	const op = "Tree.Next"
	if t.group == nil {
		return message.Message{}, errs.New(errs.InvalidState, op, "tree was not launched")
	}

	popCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.groupCtx, cancel)
	defer stop()

	msg, err := t.root.GetNextBuffer(popCtx, 0)
	if err == nil {
		return msg, nil
	}
	if ctx.Err() == nil && t.groupCtx.Err() != nil {
		if werr := t.Wait(); werr != nil {
			return message.Message{}, werr
		}
		if cause := context.Cause(t.groupCtx); errors.Is(cause, errStopped) {
			return message.Message{}, cause
		}
	}
	return message.Message{}, err
}

// Stop cancels every task and closes every connector.
func (t *Tree) Stop() {
	if t.cancel != nil {
		t.cancel(errStopped)
	}
	for _, n := range t.Nodes() {
		if n.out != nil {
			n.out.Close()
		}
	}
}
