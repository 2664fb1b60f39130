package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
)

// ResponseCache stores completions by key.  A miss returns ok=false and a
// nil error.
type ResponseCache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CacheObserver is told about every lookup.
type CacheObserver func(hit bool)

// Cached memoises completions.  Concurrent identical requests share one
// upstream call.  Cache errors are logged and bypassed.
type Cached struct {
	next    Completer
	cache   ResponseCache
	model   string
	ttl     time.Duration
	group   singleflight.Group
	observe CacheObserver
	logger  logging.Logger
}

// NewCached wraps next.  model is part of the key so switching models
// never serves stale answers.
func NewCached(next Completer, cache ResponseCache, model string, ttl time.Duration, observe CacheObserver, logger logging.Logger) *Cached {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cached{next: next, cache: cache, model: model, ttl: ttl, observe: observe, logger: logger.Named("llm_cache")}
}

// Key is the sha256 of model, temperature, JSON flag, system and prompt.
func Key(model string, req Request) string {
	h := sha256.New()
	for _, part := range []string{
		model,
		strconv.FormatFloat(req.Temperature, 'f', -1, 64),
		strconv.FormatBool(req.JSON),
		req.System,
		req.Prompt,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "llm:" + hex.EncodeToString(h.Sum(nil))
}

// Complete serves from cache or calls through and stores the answer.
func (c *Cached) Complete(ctx context.Context, req Request) (string, error) {
	key := Key(c.model, req)
	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("cache get failed", logging.Err(err))
	} else if ok {
		c.note(true)
		return v, nil
	}
	c.note(false)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		text, err := c.next.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		if err := c.cache.Set(ctx, key, text, c.ttl); err != nil {
			c.logger.Warn("cache set failed", logging.Err(err))
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cached) note(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}
