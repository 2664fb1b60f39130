package app

import (
	"context"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/aggregator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/extractor"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/locator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
)

// Catalog loads the entity catalog from the store.
func (i *Infrastructure) Catalog(ctx context.Context) (*domain.Catalog, error) {
	entities, err := i.Store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewCatalog(entities)
}

// NewService builds an extraction Service over the current catalog.  The
// catalog is read once, so long-running binaries build one per batch.
// opts are applied after the infrastructure's own options.
func (i *Infrastructure) NewService(ctx context.Context, opts ...extraction.Option) (*extraction.Service, error) {
	cfg := i.Config
	log := i.Logger

	catalog, err := i.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if catalog.Len() == 0 {
		log.Warn("entity catalog is empty; nothing will be matched")
	}

	var ocr normalizer.Recognizer
	if cfg.Extraction.Normalize.OCREnabled {
		ocr = normalizer.NewTesseractOCR()
	}
	norm := normalizer.New(cfg.Extraction.Normalize, ocr, log)
	loc := locator.New(catalog, cfg.Extraction.Locate, log)
	ext := extractor.New(cfg.Extraction.Extract, log, extractor.WithLayerObserver(i.Metrics.LayerHit))

	base := []extraction.Option{extraction.WithMetrics(i.Metrics)}
	if i.Events != nil {
		base = append(base, extraction.WithEvents(i.Events))
	}

	var arbiter aggregator.Arbiter
	if cfg.LLM.Enabled {
		llmCfg, err := cfg.LLM.Resolve()
		if err != nil {
			return nil, err
		}
		client, err := llm.NewClient(llmCfg, log)
		if err != nil {
			return nil, err
		}
		// One throttle shared by extraction and arbitration calls.
		shared := llm.NewThrottled(client, llmCfg.CallDelay)
		if cfg.Aggregation.UseArbiter {
			arbiter = llm.NewArbiter(i.completer(shared, "arbitrate", llmCfg), llmCfg, log)
		}
		base = append(base, extraction.WithMetadataExtractor(
			llm.NewMetadataExtractor(i.completer(shared, "extract", llmCfg), llmCfg, log)))
		log.Info("llm collaborators enabled",
			logging.String("provider", llmCfg.Provider), logging.String("model", llmCfg.Model),
			logging.Bool("arbiter", arbiter != nil), logging.Bool("cache", i.Redis != nil))
	}

	agg, err := aggregator.New(cfg.Aggregation, arbiter, log)
	if err != nil {
		return nil, err
	}
	return extraction.New(cfg.Extraction.Run, norm, loc, ext, agg, i.Store, log, append(base, opts...)...)
}

// completer decorates next with metrics and, when Redis is connected, the
// response cache.
func (i *Infrastructure) completer(next llm.Completer, operation string, cfg llm.Config) llm.Completer {
	var c llm.Completer = llm.NewObserved(next, operation, i.Metrics.LLMCall)
	if i.Redis != nil {
		cache := redis.NewResponseCache(i.Redis, i.Logger)
		c = llm.NewCached(c, cache, cfg.Model, cfg.CacheTTL, i.Metrics.CacheAccess, i.Logger)
	}
	return c
}
