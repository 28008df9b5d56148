package app

import (
	"context"
	"fmt"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/introspect"
	"github.com/vk/dataflow/internal/opt"
	"github.com/vk/dataflow/internal/ops"
	"github.com/vk/dataflow/internal/optree"
)

// Stats summarizes a finished run.
type Stats struct {
	Rows   int
	Epochs int
	CRC    uint32
}

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) (*Stats, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	p, err := a.loader.Load(ctx, a.config.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}

	passes := []optree.NodePass{opt.EpochInjectionPass{Epochs: a.config.Epochs}}
	if a.config.Optimize {
		passes = opt.Default(a.config.Epochs)
	}
	tree, err := p.Tree(optree.WithPasses(passes...), optree.WithOptimize(true))
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}
	if err := tree.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare tree: %w", err)
	}
	stats := &Stats{CRC: optree.GenerateCRC(tree.Root())}
	a.logger.Info("Tree prepared.", "root", tree.Root().NameWithID(), "crc", fmt.Sprintf("%08x", stats.CRC))

	if a.config.PrintTree {
		if err := tree.Print(a.outW, nil); err != nil {
			return nil, err
		}
	}

	a.logger.Info("🚀 Starting pipeline...")
	if err := tree.Launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch tree: %w", err)
	}

	// Launch registers the worker counters the collector reads.
	if a.config.IntrospectPort > 0 {
		srv := introspect.NewServer(ctx, tree)
		if _, err := srv.Start(a.config.IntrospectPort); err != nil {
			tree.Stop()
			_ = tree.Wait()
			return nil, err
		}
		defer srv.Close()
	}
	if err := a.drain(ctx, tree, stats); err != nil {
		tree.Stop()
		_ = tree.Wait()
		return stats, fmt.Errorf("execution failed: %w", err)
	}
	if err := tree.Wait(); err != nil {
		return stats, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Pipeline finished.", "rows", stats.Rows, "epochs", stats.Epochs)
	return stats, nil
}

// drain writes every row of the root as a JSON object, one per line, until
// EoF.
func (a *App) drain(ctx context.Context, tree *optree.Tree, stats *Stats) error {
	cols := tree.Root().ColumnNameMap()
	for {
		msg, err := tree.Next(ctx)
		if err != nil {
			return err
		}
		switch {
		case msg.IsEOF():
			return nil
		case msg.IsEOE():
			stats.Epochs++
			a.logger.Debug("Epoch finished.", "epoch", stats.Epochs, "rows", stats.Rows)
			continue
		}

		row, err := ops.RowOf(msg)
		if err != nil {
			return err
		}
		obj, err := row.Object(cols)
		if err != nil {
			return err
		}
		line, err := ctyjson.SimpleJSONValue{Value: obj}.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding row %d: %w", stats.Rows, err)
		}
		if _, err := fmt.Fprintf(a.outW, "%s\n", line); err != nil {
			return err
		}
		stats.Rows++
	}
}
