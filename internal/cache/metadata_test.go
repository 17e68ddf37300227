package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls atomic.Int32
}

func (l *countingLoader) ListDistinctAgents(ctx context.Context) ([]string, error) {
	l.calls.Add(1)

	return []string{"doc-sync"}, nil
}

func (l *countingLoader) ListDistinctJobTypes(ctx context.Context) ([]string, error) {
	return []string{"sync"}, nil
}

func TestGet_FillsOnFirstCall(t *testing.T) {
	loader := &countingLoader{}
	c := New(loader)

	snapshot, hit, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"doc-sync"}, snapshot.Agents)
	assert.Equal(t, []string{"sync"}, snapshot.JobTypes)
}

func TestGet_ServesFromCacheWithinTTL(t *testing.T) {
	loader := &countingLoader{}
	c := New(loader)

	_, _, err := c.Get(context.Background())
	require.NoError(t, err)

	_, hit, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestInvalidate_ForcesRefillOnNextGet(t *testing.T) {
	loader := &countingLoader{}
	c := New(loader)

	_, _, err := c.Get(context.Background())
	require.NoError(t, err)

	c.Invalidate()

	_, hit, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestGet_ConcurrentMissesCollapseIntoOneLoad(t *testing.T) {
	loader := &countingLoader{}
	c := New(loader)

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _, err := c.Get(context.Background())
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
}
