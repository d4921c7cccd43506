package kv

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPebble_ClosedStoreRejectsCalls(t *testing.T) {
	ctx := context.Background()
	pb, err := OpenPebble(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	require.NoError(t, pb.Close())
	require.NoError(t, pb.Close(), "second Close is a no-op")

	err = pb.View(ctx, func(tx Tx) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	err = pb.Update(ctx, func(tx Tx) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

// Run with -race: readers and writers racing Close must either finish
// or see ErrClosed.
func TestPebble_CloseWhileInUse(t *testing.T) {
	ctx := context.Background()
	pb, err := OpenPebble(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	require.NoError(t, pb.Update(ctx, func(tx Tx) error {
		return tx.Set(MessageKey(1), []byte("m1"))
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- pb.View(ctx, func(tx Tx) error {
				_, _, err := tx.Get(MessageKey(1))
				return err
			})
		}()
		go func() {
			defer wg.Done()
			errs <- pb.Update(ctx, func(tx Tx) error {
				return tx.Set(MessageKey(2), []byte("m2"))
			})
		}()
	}
	require.NoError(t, pb.Close())
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrClosed) {
			t.Errorf("unexpected error: %v", err)
		}
	}
}
