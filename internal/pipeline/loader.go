package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/optree"
	"github.com/vk/dataflow/internal/sampler"
)

// Pipeline is a linked set of nodes, ready to be placed in a tree.
type Pipeline struct {
	nodes map[string]*optree.Node
	names []string
	root  *optree.Node
}

// Root returns the node that is nobody's input.
func (p *Pipeline) Root() *optree.Node { return p.root }

// Node returns the node declared under name.
func (p *Pipeline) Node(name string) (*optree.Node, bool) {
	n, ok := p.nodes[name]
	return n, ok
}

// Names returns the declared operator names in declaration order.
func (p *Pipeline) Names() []string { return slices.Clone(p.names) }

// Tree places the pipeline in a new tree.
func (p *Pipeline) Tree(opts ...optree.Option) (*optree.Tree, error) {
	t := optree.New(opts...)
	if err := t.AssignRoot(p.root); err != nil {
		return nil, err
	}
	return t, nil
}

// Loader turns pipeline files into pipelines.
type Loader struct {
	registry *Registry
}

// NewLoader creates a loader resolving operator kinds through r.
func NewLoader(r *Registry) *Loader {
	return &Loader{registry: r}
}

// declaration is an op block along with the file it came from.
type declaration struct {
	block *opBlock
	src   []byte
}

// Load reads every pipeline file found under paths and builds one pipeline
// from all of their blocks.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Pipeline loader started.", "path_count", len(paths))

	files, err := findFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errs.New(errs.NotFound, "pipeline.Load", "no %s files found in %v", fileExtension, paths)
	}
	logger.Debug("Discovered pipeline files.", "count", len(files))

	parser := hclparse.NewParser()
	var decls []declaration
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse pipeline file %s: %w", file, diags)
		}
		more, err := decode(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode pipeline file %s: %w", file, err)
		}
		decls = append(decls, more...)
	}
	return l.build(ctx, decls)
}

// Parse builds a pipeline from a single in-memory file.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*Pipeline, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse pipeline %s: %w", filename, diags)
	}
	decls, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pipeline %s: %w", filename, err)
	}
	return l.build(ctx, decls)
}

func decode(f *hcl.File) ([]declaration, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return nil, diags
	}
	decls := make([]declaration, len(root.Ops))
	for i, b := range root.Ops {
		decls[i] = declaration{block: b, src: f.Bytes}
	}
	return decls, nil
}

func (l *Loader) build(ctx context.Context, decls []declaration) (*Pipeline, error) {
	const op = "pipeline.build"
	logger := ctxlog.FromContext(ctx)
	p := &Pipeline{nodes: make(map[string]*optree.Node)}
	inputs := make(map[string][]string)

	for _, d := range decls {
		b := d.block
		if _, dup := p.nodes[b.Name]; dup {
			return nil, errs.New(errs.AlreadyExists, op, "op %q declared twice, again at %s", b.Name, b.Body.MissingItemRange())
		}
		factory, ok := l.registry.Lookup(b.Kind)
		if !ok {
			return nil, errs.New(errs.NotFound, op, "op %q has unknown kind %q, known kinds are %s", b.Name, b.Kind, strings.Join(l.registry.Kinds(), ", "))
		}
		blockCtx := ctxlog.With(ctx, "op", b.Name, "kind", b.Kind)
		operator, err := factory(blockCtx, &Block{Kind: b.Kind, Name: b.Name, Body: b.Body, src: d.src})
		if err != nil {
			return nil, err
		}
		opts, err := nodeOptions(b)
		if err != nil {
			return nil, err
		}
		if inputs[b.Name], err = inputNames(blockCtx, b); err != nil {
			return nil, err
		}
		p.nodes[b.Name] = optree.NewNode(operator, opts...)
		p.names = append(p.names, b.Name)
	}

	for _, name := range p.names {
		for _, in := range inputs[name] {
			if _, ok := p.nodes[in]; !ok {
				return nil, errs.New(errs.NotFound, op, "op %q reads op.%s, which is not declared", name, in)
			}
		}
	}
	if err := detectCycles(p.names, inputs); err != nil {
		return nil, err
	}

	for _, name := range p.names {
		for _, in := range inputs[name] {
			if err := p.nodes[name].AddChild(p.nodes[in]); err != nil {
				return nil, fmt.Errorf("linking op %q to input %q: %w", name, in, err)
			}
		}
	}

	readers := make(map[string][]string)
	for _, name := range p.names {
		for _, in := range inputs[name] {
			readers[in] = append(readers[in], name)
		}
	}
	var roots []string
	for _, name := range p.names {
		switch r := readers[name]; {
		case len(r) == 0:
			roots = append(roots, name)
		case len(r) > 1:
			return nil, errs.New(errs.UnsupportedOperation, op, "op %q is the input of %d ops %v, each op feeds at most one other op", name, len(r), r)
		}
	}
	if len(roots) != 1 {
		return nil, errs.New(errs.InvalidArgument, op, "a pipeline needs exactly one op that is no other op's input, found %d: %v", len(roots), roots)
	}
	p.root = p.nodes[roots[0]]
	logger.Debug("Pipeline built.", "ops", len(p.names), "root", roots[0])
	return p, nil
}

func nodeOptions(b *opBlock) ([]optree.NodeOption, error) {
	var opts []optree.NodeOption
	if b.QueueSize != nil {
		opts = append(opts, optree.WithQueueSize(*b.QueueSize))
	}
	if s := b.Sampler; s != nil {
		switch s.Kind {
		case "sequential":
			opts = append(opts, optree.WithSampler(&sampler.Sequential{Start: s.Start, Count: s.Count}))
		case "random":
			opts = append(opts, optree.WithSampler(&sampler.Random{Seed: s.Seed, Replacement: s.Replacement, NumSamples: s.NumSamples}))
		default:
			return nil, errs.New(errs.InvalidArgument, "pipeline.nodeOptions", "op %q has unknown sampler %q, want sequential or random", b.Name, s.Kind)
		}
	}
	return opts, nil
}

// isExprDefined reports whether an optional attribute was written in the
// file. The decoder fills omitted optional expressions with a zero-width
// placeholder.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// inputNames resolves the inputs attribute, a list of op.<name> references.
func inputNames(ctx context.Context, b *opBlock) ([]string, error) {
	const op = "pipeline.inputNames"
	if !isExprDefined(b.Inputs) {
		return nil, nil
	}
	exprs, diags := hcl.ExprList(b.Inputs)
	if diags.HasErrors() {
		return nil, fmt.Errorf("op %q inputs: %w", b.Name, diags)
	}
	names := make([]string, 0, len(exprs))
	for _, e := range exprs {
		traversal, diags := hcl.AbsTraversalForExpr(e)
		if diags.HasErrors() || len(traversal) != 2 || traversal.RootName() != "op" {
			return nil, errs.New(errs.InvalidArgument, op, "op %q input at %s must be a reference of the form op.<name>", b.Name, e.Range())
		}
		attr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return nil, errs.New(errs.InvalidArgument, op, "op %q input at %s must be a reference of the form op.<name>", b.Name, e.Range())
		}
		names = append(names, attr.Name)
	}
	ctxlog.FromContext(ctx).Debug("Resolved op inputs.", "inputs", names)
	return names, nil
}

// detectCycles runs a depth-first search over the input references and
// names one op on the first cycle it finds.
func detectCycles(names []string, inputs map[string][]string) error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		if permanent[name] {
			return nil
		}
		if temporary[name] {
			return errs.New(errs.InvalidArgument, "pipeline.detectCycles", "cycle detected involving op %q", name)
		}
		temporary[name] = true
		for _, in := range inputs[name] {
			if err := visit(in); err != nil {
				return err
			}
		}
		delete(temporary, name)
		permanent[name] = true
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
