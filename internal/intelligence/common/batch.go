// Package common holds infrastructure shared by the intelligence layer: a
// bounded batch processor used to fan document work out across workers.
package common

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// ErrShutdown is returned by Process after Shutdown has been called.
var ErrShutdown = stdliberrors.New("batch processor is shutting down")

// ---------------------------------------------------------------------------
// ItemStatus enumeration
// ---------------------------------------------------------------------------

// ItemStatus represents the outcome status of a single batch item.
type ItemStatus int

const (
	ItemStatusSuccess   ItemStatus = iota // processing completed successfully
	ItemStatusFailed                      // processing failed with an error
	ItemStatusTimeout                     // processing exceeded its timeout
	ItemStatusCancelled                   // never started: context cancelled
)

// String returns the human-readable representation of an ItemStatus.
func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Generic types
// ---------------------------------------------------------------------------

// ProcessFunc processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult holds the outcome of one item.  Results are reported in input
// order regardless of completion order.
type ItemResult[R any] struct {
	Index    int           `json:"index"`
	Result   R             `json:"result"`
	Error    error         `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Status   ItemStatus    `json:"status"`
}

// BatchResult aggregates the outcomes of one Process call.
type BatchResult[R any] struct {
	Results        []*ItemResult[R] `json:"results"`
	TotalCount     int              `json:"total_count"`
	SuccessCount   int              `json:"success_count"`
	FailureCount   int              `json:"failure_count"`
	CancelledCount int              `json:"cancelled_count"`
	Duration       time.Duration    `json:"duration"`
}

// BatchObserver is told about every finished batch.
type BatchObserver func(name string, total, succeeded, failed int, elapsed time.Duration)

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy governs how failed items are retried.
type RetryPolicy struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	// Retryable decides per error; nil retries every error.
	Retryable func(error) bool `mapstructure:"-"`
}

func shouldRetry(err error, policy *RetryPolicy) bool {
	if policy == nil || err == nil {
		return false
	}
	if policy.Retryable == nil {
		return true
	}
	return policy.Retryable(err)
}

// calculateBackoff returns the delay before the attempt-th retry with ±25%
// jitter, capped at MaxBackoff.
func calculateBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil || policy.InitialBackoff <= 0 {
		return 0
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(policy.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if policy.MaxBackoff > 0 && base > float64(policy.MaxBackoff) {
		base = float64(policy.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// ---------------------------------------------------------------------------
// BatchOption functional options
// ---------------------------------------------------------------------------

type batchConfig struct {
	name           string
	maxConcurrency int
	itemTimeout    time.Duration
	retryPolicy    *RetryPolicy
	observe        BatchObserver
	logger         logging.Logger
}

func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		name:           "batch",
		maxConcurrency: runtime.NumCPU(),
	}
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*batchConfig)

// WithName labels the processor in logs and observations.
func WithName(name string) BatchOption {
	return func(c *batchConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithMaxConcurrency sets the maximum number of items processed concurrently.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout bounds each attempt on an item.  Zero means no bound.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.itemTimeout = d
		}
	}
}

// WithRetryPolicy retries failed items maxRetries times with exponential
// backoff starting at backoff.
func WithRetryPolicy(maxRetries int, backoff time.Duration) BatchOption {
	return func(c *batchConfig) {
		if maxRetries > 0 {
			c.retryPolicy = &RetryPolicy{
				MaxRetries:        maxRetries,
				InitialBackoff:    backoff,
				MaxBackoff:        backoff * 16,
				BackoffMultiplier: 2.0,
			}
		}
	}
}

// WithRetryPolicyFull configures a complete retry policy.
func WithRetryPolicyFull(policy *RetryPolicy) BatchOption {
	return func(c *batchConfig) { c.retryPolicy = policy }
}

// WithBatchObserver reports every finished batch.
func WithBatchObserver(fn BatchObserver) BatchOption {
	return func(c *batchConfig) { c.observe = fn }
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l logging.Logger) BatchOption {
	return func(c *batchConfig) { c.logger = l }
}

// ---------------------------------------------------------------------------
// BatchProcessor
// ---------------------------------------------------------------------------

// BatchProcessor runs a function over a slice of items on a bounded number
// of goroutines.  Item failures are recorded, never propagated; cancelling
// the context stops new items from starting.
type BatchProcessor[T, R any] struct {
	cfg    *batchConfig
	logger logging.Logger

	shutdown atomic.Bool
	active   sync.WaitGroup
}

// NewBatchProcessor creates a BatchProcessor with the supplied options.
func NewBatchProcessor[T, R any](opts ...BatchOption) *BatchProcessor[T, R] {
	cfg := defaultBatchConfig()
	for _, o := range opts {
		o(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BatchProcessor[T, R]{cfg: cfg, logger: logger.Named(cfg.name)}
}

// MaxConcurrency returns the worker bound.
func (bp *BatchProcessor[T, R]) MaxConcurrency() int { return bp.cfg.maxConcurrency }

// Process executes fn for every item.  The returned error is non-nil only
// for misuse (nil fn, processor shut down); per-item failures are in the
// BatchResult.
func (bp *BatchProcessor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("process function must not be nil")
	}
	if bp.shutdown.Load() {
		return nil, ErrShutdown
	}
	bp.active.Add(1)
	defer bp.active.Done()

	start := time.Now()
	results := make([]*ItemResult[R], len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.cfg.maxConcurrency)
	for i := range items {
		i := i
		if gctx.Err() != nil {
			results[i] = &ItemResult[R]{Index: i, Error: gctx.Err(), Status: ItemStatusCancelled}
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = &ItemResult[R]{Index: i, Error: gctx.Err(), Status: ItemStatusCancelled}
				return nil
			}
			results[i] = bp.processOne(gctx, i, items[i], fn)
			return nil
		})
	}
	_ = g.Wait()

	br := &BatchResult[R]{Results: results, TotalCount: len(items), Duration: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case ItemStatusSuccess:
			br.SuccessCount++
		case ItemStatusCancelled:
			br.CancelledCount++
		default:
			br.FailureCount++
		}
	}
	if bp.cfg.observe != nil {
		bp.cfg.observe(bp.cfg.name, br.TotalCount, br.SuccessCount, br.FailureCount, br.Duration)
	}
	bp.logger.Debug("batch finished",
		logging.Int("total", br.TotalCount),
		logging.Int("succeeded", br.SuccessCount),
		logging.Int("failed", br.FailureCount),
		logging.Int("cancelled", br.CancelledCount),
		logging.Duration("elapsed", br.Duration))
	return br, nil
}

func (bp *BatchProcessor[T, R]) processOne(ctx context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	start := time.Now()
	ir := &ItemResult[R]{Index: idx}

	maxAttempts := 1
	if bp.cfg.retryPolicy != nil {
		maxAttempts += bp.cfg.retryPolicy.MaxRetries
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ir.Attempts = attempt + 1
		res, err := bp.attempt(ctx, item, fn)
		if err == nil {
			ir.Result, ir.Error, ir.Status = res, nil, ItemStatusSuccess
			break
		}
		ir.Error = err
		ir.Status = ItemStatusFailed
		if stdliberrors.Is(err, context.DeadlineExceeded) {
			ir.Status = ItemStatusTimeout
		}
		if ctx.Err() != nil || attempt == maxAttempts-1 || !shouldRetry(err, bp.cfg.retryPolicy) {
			break
		}
		select {
		case <-ctx.Done():
			attempt = maxAttempts
		case <-time.After(calculateBackoff(attempt, bp.cfg.retryPolicy)):
		}
	}
	ir.Duration = time.Since(start)
	return ir
}

func (bp *BatchProcessor[T, R]) attempt(ctx context.Context, item T, fn ProcessFunc[T, R]) (res R, err error) {
	if bp.cfg.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bp.cfg.itemTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeInternal, "panic processing item: %v", r)
		}
	}()
	return fn(ctx, item)
}

// Shutdown refuses new batches and waits for running ones until ctx ends.
func (bp *BatchProcessor[T, R]) Shutdown(ctx context.Context) error {
	bp.shutdown.Store(true)
	done := make(chan struct{})
	go func() {
		bp.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
