package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseCleansUp(t *testing.T) {
	tbl := NewTable()

	release, err := tbl.Acquire(context.Background(), "B", "A")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.size())

	release()
	release()
	assert.Equal(t, 0, tbl.size())
}

func TestAcquireDuplicateKeys(t *testing.T) {
	tbl := NewTable()

	release, err := tbl.Acquire(context.Background(), "A", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.size())
	release()
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	tbl := NewTable()
	release, err := tbl.Acquire(context.Background(), "A")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := tbl.Acquire(context.Background(), "A")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second caller acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired the lock")
	}
}

func TestAcquireHonoursCancellation(t *testing.T) {
	tbl := NewTable()
	release, err := tbl.Acquire(context.Background(), "B")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = tbl.Acquire(ctx, "A", "B")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// "A" was taken then given back; only "B" remains.
	assert.Equal(t, 1, tbl.size())
}

func TestOppositeOrderDoesNotDeadlock(t *testing.T) {
	tbl := NewTable()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"X", "Y"}
			if i%2 == 1 {
				keys = []string{"Y", "X"}
			}
			release, err := tbl.Acquire(ctx, keys...)
			if err != nil {
				return
			}
			counter++
			release()
		}(i)
	}
	wg.Wait()

	require.NoError(t, ctx.Err())
	assert.Equal(t, 200, counter)
	assert.Equal(t, 0, tbl.size())
}
