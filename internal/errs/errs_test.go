package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(NotFound, "RemoveChild", "node %q is not a child", "map")
	require.Error(t, err)
	assert.Equal(t, `RemoveChild: not found: node "map" is not a child`, err.Error())
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, AlreadyExists))
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(Cancelled, "Push", nil))
	})

	t.Run("keeps the cause", func(t *testing.T) {
		err := Wrap(Cancelled, "Push", context.Canceled)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.True(t, errors.Is(err, Cancelled))
		assert.Equal(t, "Push: cancelled: context canceled", err.Error())
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("worker 3: %w", New(ProtocolViolation, "Pop", "data after eof"))
		assert.Equal(t, ProtocolViolation, KindOf(err))
		assert.True(t, Is(err, ProtocolViolation))
	})
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, Internal))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "unsupported operation", UnsupportedOperation.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
