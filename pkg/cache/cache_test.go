package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_LoadsOnceUntilInvalidated(t *testing.T) {
	loads := 0
	load := func(ctx context.Context) ([]int64, error) {
		loads++
		return []int64{1, 2, 3}, nil
	}

	v := NewValue[[]int64](time.Minute)

	got, err := v.Get(context.Background(), load)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)

	_, err = v.Get(context.Background(), load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	v.Invalidate()
	_, err = v.Get(context.Background(), load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestValue_DoesNotCacheFailures(t *testing.T) {
	loads := 0
	v := NewValue[int](time.Minute)

	_, err := v.Get(context.Background(), func(ctx context.Context) (int, error) {
		loads++
		return 0, errors.New("unavailable")
	})
	require.Error(t, err)

	got, err := v.Get(context.Background(), func(ctx context.Context) (int, error) {
		loads++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 2, loads)
}

func TestValue_ExpiresAfterTTL(t *testing.T) {
	loads := 0
	load := func(ctx context.Context) (string, error) {
		loads++
		return "x", nil
	}

	v := NewValue[string](time.Millisecond)
	_, err := v.Get(context.Background(), load)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = v.Get(context.Background(), load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestMap_CachesPerKey(t *testing.T) {
	loads := map[string]int{}
	load := func(key string) func(ctx context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			loads[key]++
			return "value-" + key, nil
		}
	}

	m := NewMap[string](time.Minute)

	got, err := m.Get(context.Background(), "a", load("a"))
	require.NoError(t, err)
	assert.Equal(t, "value-a", got)

	_, err = m.Get(context.Background(), "a", load("a"))
	require.NoError(t, err)
	_, err = m.Get(context.Background(), "b", load("b"))
	require.NoError(t, err)

	assert.Equal(t, 1, loads["a"])
	assert.Equal(t, 1, loads["b"])
}

func TestMap_InvalidateSelectedOrAll(t *testing.T) {
	loads := 0
	load := func(ctx context.Context) (int, error) {
		loads++
		return loads, nil
	}

	m := NewMap[int](time.Minute)
	_, _ = m.Get(context.Background(), "a", load)
	_, _ = m.Get(context.Background(), "b", load)

	m.Invalidate("a")
	_, _ = m.Get(context.Background(), "a", load)
	_, _ = m.Get(context.Background(), "b", load)
	assert.Equal(t, 3, loads)

	m.Invalidate()
	_, _ = m.Get(context.Background(), "a", load)
	_, _ = m.Get(context.Background(), "b", load)
	assert.Equal(t, 5, loads)
}
