package pipeline

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/ops"
	"github.com/vk/dataflow/internal/optree"
)

// functions are callable from map expressions.
var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"format": stdlib.FormatFunc,
	"join":   stdlib.JoinFunc,
	"lower":  stdlib.LowerFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"strlen": stdlib.StrlenFunc,
	"upper":  stdlib.UpperFunc,
}

func registerBuiltins(r *Registry) {
	r.Register("generator", newGenerator)
	r.Register("range", newRange)
	r.Register("map", newMap)
	r.Register("repeat", newRepeat)
	r.Register("project", newProject)
	r.Register("concat", newConcat)
	r.Register("take", newTake)
}

func newGenerator(_ context.Context, b *Block) (optree.Operator, error) {
	var spec struct {
		Columns []string   `hcl:"columns"`
		Rows    *cty.Value `hcl:"rows,optional"`
	}
	if err := b.Decode(&spec); err != nil {
		return nil, err
	}
	g := &ops.Generator{Columns: spec.Columns}
	if spec.Rows == nil || spec.Rows.IsNull() {
		return g, nil
	}
	rows := *spec.Rows
	if !rows.CanIterateElements() {
		return nil, errs.New(errs.InvalidArgument, "generator "+b.Name, "rows must be a list of lists, got %s", rows.Type().FriendlyName())
	}
	for i, row := range rows.AsValueSlice() {
		if !row.CanIterateElements() || row.Type().IsMapType() || row.Type().IsObjectType() {
			return nil, errs.New(errs.InvalidArgument, "generator "+b.Name, "row %d must be a list, got %s", i, row.Type().FriendlyName())
		}
		g.Rows = append(g.Rows, ops.Row(row.AsValueSlice()))
	}
	return g, nil
}

func newRange(_ context.Context, b *Block) (optree.Operator, error) {
	var spec struct {
		Column *string `hcl:"column,optional"`
		Start  int     `hcl:"start,optional"`
		End    int     `hcl:"end"`
		Step   *int    `hcl:"step,optional"`
	}
	if err := b.Decode(&spec); err != nil {
		return nil, err
	}
	column, step := "id", 1
	if spec.Column != nil {
		column = *spec.Column
	}
	if spec.Step != nil {
		step = *spec.Step
	}
	if step < 1 {
		return nil, errs.New(errs.InvalidArgument, "range "+b.Name, "step must be positive, got %d", step)
	}
	g := &ops.Generator{Columns: []string{column}}
	for i := spec.Start; i < spec.End; i += step {
		g.Rows = append(g.Rows, ops.Row{cty.NumberIntVal(int64(i))})
	}
	return g, nil
}

func newMap(ctx context.Context, b *Block) (optree.Operator, error) {
	var spec struct {
		Column  string         `hcl:"column"`
		Expr    hcl.Expression `hcl:"expr"`
		Type    *string        `hcl:"type,optional"`
		Workers int            `hcl:"workers,optional"`
	}
	if err := b.Decode(&spec); err != nil {
		return nil, err
	}
	for _, traversal := range spec.Expr.Variables() {
		if traversal.RootName() != "row" {
			return nil, errs.New(errs.InvalidArgument, "map "+b.Name, "expression refers to %q, only row.<column> is available", traversal.RootName())
		}
	}
	target := cty.DynamicPseudoType
	if spec.Type != nil {
		var err error
		if target, err = primitiveType(*spec.Type); err != nil {
			return nil, fmt.Errorf("map %s: %w", b.Name, err)
		}
	}
	label := b.Source(spec.Expr.Range())
	ctxlog.FromContext(ctx).Debug("Compiled map expression.", "op", b.Name, "expr", label)

	fn := func(cols map[string]int, row ops.Row) (cty.Value, error) {
		obj, err := row.Object(cols)
		if err != nil {
			return cty.NilVal, err
		}
		evalCtx := &hcl.EvalContext{
			Variables: map[string]cty.Value{"row": obj},
			Functions: functions,
		}
		v, diags := spec.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return cty.NilVal, diags
		}
		if target != cty.DynamicPseudoType {
			return convert.Convert(v, target)
		}
		return v, nil
	}
	return &ops.Map{
		Parallelism: optree.Parallelism{Workers: spec.Workers},
		Column:      spec.Column,
		Fn:          fn,
		Label:       label,
	}, nil
}

// primitiveType parses the type names accepted by a map's type attribute.
func primitiveType(name string) (cty.Type, error) {
	switch name {
	case "string":
		return cty.String, nil
	case "number":
		return cty.Number, nil
	case "bool":
		return cty.Bool, nil
	}
	return cty.NilType, errs.New(errs.InvalidArgument, "primitiveType", "unknown type %q, want string, number or bool", name)
}

func newRepeat(_ context.Context, b *Block) (optree.Operator, error) {
	var spec struct {
		Count int `hcl:"count"`
	}
	if err := b.Decode(&spec); err != nil {
		return nil, err
	}
	return &ops.Repeat{Count: spec.Count}, nil
}

func newProject(_ context.Context, b *Block) (optree.Operator, error) {
	var spec struct {
		Columns []string `hcl:"columns"`
	}
	if err := b.Decode(&spec); err != nil {
		return nil, err
	}
	return &ops.Project{Columns: spec.Columns}, nil
}

func newConcat(_ context.Context, b *Block) (optree.Operator, error) {
	var spec struct{}
	if err := b.Decode(&spec); err != nil {
		return nil, err
	}
	return &ops.Concat{}, nil
}

func newTake(_ context.Context, b *Block) (optree.Operator, error) {
	var spec struct {
		Limit int `hcl:"limit"`
	}
	if err := b.Decode(&spec); err != nil {
		return nil, err
	}
	return &ops.Take{Limit: spec.Limit}, nil
}
