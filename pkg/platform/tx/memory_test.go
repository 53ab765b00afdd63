package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterStore struct {
	value int
}

func (c *counterStore) Snapshot() func() {
	saved := c.value
	return func() { c.value = saved }
}

func TestMemoryRunner(t *testing.T) {
	t.Run("keeps changes on success", func(t *testing.T) {
		store := &counterStore{}
		runner := NewMemoryRunner(store)

		err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
			store.value = 5
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 5, store.value)
	})

	t.Run("restores all stores on failure", func(t *testing.T) {
		a := &counterStore{value: 1}
		b := &counterStore{value: 2}
		runner := NewMemoryRunner(a, b)

		boom := errors.New("boom")
		err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
			a.value = 10
			b.value = 20
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, a.value)
		assert.Equal(t, 2, b.value)
	})

	t.Run("rejects cancelled context", func(t *testing.T) {
		runner := NewMemoryRunner()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := runner.RunInTx(ctx, func(ctx context.Context) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}
