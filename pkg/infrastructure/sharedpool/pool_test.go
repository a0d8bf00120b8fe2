package sharedpool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type someValue struct {
	closed int
}

func (s *someValue) Close() error {
	if s.closed > 0 {
		return errors.New("already closed")
	}
	s.closed++
	return nil
}

func TestSharedPool(t *testing.T) {
	t.Run("reusing some value", func(t *testing.T) {
		ctx := context.TODO()
		created := 0
		sv := &someValue{}
		pool := NewPool[context.Context, *someValue](
			func(_ context.Context) (*someValue, WrappedValueReleaseFunc, error) {
				created++
				return sv, sv.Close, nil
			},
		)

		v1, err := pool.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pool.pool[ctx].count)

		v2, err := pool.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, pool.pool[ctx].count)
		assert.Same(t, v1.Value(), v2.Value())

		assert.NoError(t, v1.Release())
		assert.NoError(t, v1.Release())
		assert.Equal(t, 0, sv.closed)
		assert.NoError(t, v2.Release())

		assert.Equal(t, 1, sv.closed)
		assert.Equal(t, 1, created)
		assert.Empty(t, pool.pool)
	})

	t.Run("different keys get different values", func(t *testing.T) {
		pool := NewPool[string, *someValue](
			func(_ string) (*someValue, WrappedValueReleaseFunc, error) {
				v := &someValue{}
				return v, v.Close, nil
			},
		)

		a, err := pool.Get("a")
		require.NoError(t, err)
		b, err := pool.Get("b")
		require.NoError(t, err)
		assert.NotSame(t, a.Value(), b.Value())

		assert.NoError(t, a.Release())
		assert.Equal(t, 1, a.Value().closed)
		assert.Equal(t, 0, b.Value().closed)
		assert.NoError(t, b.Release())
	})

	t.Run("factory error", func(t *testing.T) {
		factoryErr := errors.New("no connection")
		pool := NewPool[string, *someValue](
			func(_ string) (*someValue, WrappedValueReleaseFunc, error) {
				return nil, nil, factoryErr
			},
		)

		_, err := pool.Get("a")
		assert.ErrorIs(t, err, factoryErr)
		assert.Empty(t, pool.pool)
	})
}
