package common

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_AllSuccessInInputOrder(t *testing.T) {
	bp := NewBatchProcessor[string, string](WithMaxConcurrency(3))
	items := []string{"a", "b", "c", "d"}
	fn := func(ctx context.Context, item string) (string, error) {
		if item == "a" {
			time.Sleep(10 * time.Millisecond)
		}
		return item + "_processed", nil
	}

	res, err := bp.Process(context.Background(), items, fn)
	require.NoError(t, err)
	assert.Equal(t, 4, res.SuccessCount)
	for i, r := range res.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, items[i]+"_processed", r.Result)
	}
}

func TestProcess_FailuresAreRecorded(t *testing.T) {
	bp := NewBatchProcessor[string, string]()
	fn := func(ctx context.Context, item string) (string, error) {
		if item == "bad" {
			return "", errors.New("failed")
		}
		return item, nil
	}

	res, err := bp.Process(context.Background(), []string{"ok", "bad"}, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, ItemStatusFailed, res.Results[1].Status)
	assert.Error(t, res.Results[1].Error)
}

func TestProcess_ConcurrencyLimit(t *testing.T) {
	var current, peak int32
	bp := NewBatchProcessor[int, int](WithMaxConcurrency(2))

	fn := func(ctx context.Context, item int) (int, error) {
		n := atomic.AddInt32(&current, 1)
		defer atomic.AddInt32(&current, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return item, nil
	}

	_, err := bp.Process(context.Background(), []int{1, 2, 3, 4, 5, 6}, fn)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestProcess_Retry(t *testing.T) {
	var calls int32
	bp := NewBatchProcessor[int, int](WithRetryPolicy(2, time.Millisecond))
	fn := func(ctx context.Context, item int) (int, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return 0, errors.New("transient")
		}
		return item * 2, nil
	}

	res, err := bp.Process(context.Background(), []int{21}, fn)
	require.NoError(t, err)
	assert.Equal(t, ItemStatusSuccess, res.Results[0].Status)
	assert.Equal(t, 42, res.Results[0].Result)
	assert.Equal(t, 3, res.Results[0].Attempts)
}

func TestProcess_RetryablePredicate(t *testing.T) {
	permanent := errors.New("permanent")
	var calls int32
	bp := NewBatchProcessor[int, int](WithRetryPolicyFull(&RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		Retryable:      func(err error) bool { return !errors.Is(err, permanent) },
	}))
	res, err := bp.Process(context.Background(), []int{1}, func(ctx context.Context, item int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, permanent
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, res.Results[0].Attempts)
}

func TestProcess_ItemTimeout(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithItemTimeout(5 * time.Millisecond))
	res, err := bp.Process(context.Background(), []int{1}, func(ctx context.Context, item int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, ItemStatusTimeout, res.Results[0].Status)
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bp := NewBatchProcessor[int, int]()
	res, err := bp.Process(ctx, []int{1, 2}, func(ctx context.Context, item int) (int, error) {
		return item, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CancelledCount)
	assert.Equal(t, ItemStatusCancelled, res.Results[0].Status)
}

func TestProcess_PanicIsFailure(t *testing.T) {
	bp := NewBatchProcessor[int, int]()
	res, err := bp.Process(context.Background(), []int{1}, func(ctx context.Context, item int) (int, error) {
		panic("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, ItemStatusFailed, res.Results[0].Status)
	assert.Contains(t, res.Results[0].Error.Error(), "boom")
}

func TestProcess_ObserverAndMisuse(t *testing.T) {
	var observed []int
	bp := NewBatchProcessor[int, int](WithName("docs"), WithBatchObserver(func(name string, total, ok, failed int, _ time.Duration) {
		assert.Equal(t, "docs", name)
		observed = append(observed, total, ok, failed)
	}))
	_, err := bp.Process(context.Background(), []int{1, 2}, func(ctx context.Context, item int) (int, error) {
		if item == 2 {
			return 0, errors.New("x")
		}
		return item, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1}, observed)

	_, err = bp.Process(context.Background(), []int{1}, nil)
	assert.Error(t, err)

	require.NoError(t, bp.Shutdown(context.Background()))
	_, err = bp.Process(context.Background(), []int{1}, func(ctx context.Context, item int) (int, error) { return item, nil })
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestItemStatusString(t *testing.T) {
	assert.Equal(t, "SUCCESS", ItemStatusSuccess.String())
	assert.Equal(t, "TIMEOUT", ItemStatusTimeout.String())
	assert.Equal(t, "UNKNOWN(9)", ItemStatus(9).String())
}

func TestCalculateBackoff(t *testing.T) {
	p := &RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	d := calculateBackoff(1, p)
	assert.InDelta(t, float64(200*time.Millisecond), float64(d), float64(50*time.Millisecond))
	d = calculateBackoff(5, p)
	assert.LessOrEqual(t, d, 375*time.Millisecond)
	assert.Zero(t, calculateBackoff(1, nil))
}
