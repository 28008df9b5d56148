package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/vk/dataflow/internal/optree"
)

// Block is the kind-specific part of an op block.
type Block struct {
	Kind string
	Name string
	Body hcl.Body

	src []byte
}

// Decode decodes the attributes of the block into v, a pointer to a struct
// with hcl tags. Attributes v does not declare are errors.
func (b *Block) Decode(v any) error {
	if diags := gohcl.DecodeBody(b.Body, nil, v); diags.HasErrors() {
		return fmt.Errorf("op %s.%s: %w", b.Kind, b.Name, diags)
	}
	return nil
}

// Source returns the text of the file covered by r.
func (b *Block) Source(r hcl.Range) string {
	if b.src == nil {
		return ""
	}
	return string(r.SliceBytes(b.src))
}

// Factory creates the operator of one block.
type Factory func(ctx context.Context, b *Block) (optree.Operator, error)

// Registry maps operator kinds to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding every built-in operator kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register adds the factory for kind. Registering a kind twice is a
// programming error and panics.
func (r *Registry) Register(kind string, f Factory) {
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("operator kind '%s' already registered", kind))
	}
	r.factories[kind] = f
}

// Lookup returns the factory of kind.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	return slices.Sorted(maps.Keys(r.factories))
}
