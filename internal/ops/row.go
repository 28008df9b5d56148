package ops

import (
	"fmt"
	"slices"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/dataflow/internal/errs"
	"github.com/vk/dataflow/internal/message"
)

// Row is one record: a value per column, indexed by the column map of the
// node that produced it.
type Row []cty.Value

// NewRow converts Go values into a row, inferring each column's type.
func NewRow(vals ...any) (Row, error) {
	row := make(Row, len(vals))
	for i, v := range vals {
		ty, err := gocty.ImpliedType(v)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		if row[i], err = gocty.ToCtyValue(v, ty); err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
	}
	return row, nil
}

// Clone returns a copy that can be modified without touching r.
func (r Row) Clone() Row { return slices.Clone(r) }

// MarshalJSON encodes the row as a JSON array.
func (r Row) MarshalJSON() ([]byte, error) {
	tuple := cty.EmptyTupleVal
	if len(r) > 0 {
		tuple = cty.TupleVal(r)
	}
	return ctyjson.SimpleJSONValue{Value: tuple}.MarshalJSON()
}

func (r Row) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid row: %v>", err)
	}
	return string(b)
}

// Object pairs the values of r with the names of cols.
func (r Row) Object(cols map[string]int) (cty.Value, error) {
	if len(cols) == 0 {
		return cty.EmptyObjectVal, nil
	}
	attrs := make(map[string]cty.Value, len(cols))
	for name, i := range cols {
		if i >= len(r) {
			return cty.NilVal, errs.New(errs.InvalidArgument, "Row.Object", "column %q is at index %d, row has %d values", name, i, len(r))
		}
		attrs[name] = r[i]
	}
	return cty.ObjectVal(attrs), nil
}

// RowOf returns the row carried by a data message.
func RowOf(msg message.Message) (Row, error) {
	row, ok := msg.Payload.(Row)
	if !ok {
		return nil, errs.New(errs.InvalidArgument, "ops.RowOf", "payload is %T, not a row", msg.Payload)
	}
	return row, nil
}
