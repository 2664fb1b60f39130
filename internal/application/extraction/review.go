package extraction

import (
	"context"
	"sort"
	"strings"
	"sync"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/common"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// ReviewQueue holds review-required fields until someone decides them.
// Items are keyed by entity and field; a newer item replaces an older one.
type ReviewQueue struct {
	mu    sync.RWMutex
	items map[string]simulant.ReviewItem
}

// NewReviewQueue returns an empty queue.
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{items: make(map[string]simulant.ReviewItem)}
}

// Add enqueues item and returns it with its id assigned.
func (q *ReviewQueue) Add(item simulant.ReviewItem) simulant.ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, existing := range q.items {
		if existing.EntityID == item.EntityID && existing.EntityName == item.EntityName && existing.Field == item.Field {
			delete(q.items, id)
		}
	}
	if item.ID == "" {
		item.ID = common.GenerateID("rev")
	}
	q.items[item.ID] = item
	return item
}

// List returns queued items ordered by entity name then field.  An empty
// entityID lists everything.
func (q *ReviewQueue) List(entityID string) []simulant.ReviewItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]simulant.ReviewItem, 0, len(q.items))
	for _, it := range q.items {
		if entityID == "" || it.EntityID == entityID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityName != out[j].EntityName {
			return out[i].EntityName < out[j].EntityName
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// Get returns one item.
func (q *ReviewQueue) Get(id string) (simulant.ReviewItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	it, ok := q.items[id]
	if !ok {
		return simulant.ReviewItem{}, errors.NotFound("review item not found").WithDetail(id)
	}
	return it, nil
}

// Remove drops an item once decided.
func (q *ReviewQueue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, id)
}

// Len returns the number of queued items.
func (q *ReviewQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// ParseAction validates a reviewer action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAccept, ActionSkip, ActionSet:
		return a, nil
	}
	return "", errors.Newf(errors.ErrCodeBadRequest, "unknown action %q (accept|skip|set)", s)
}

// Resolve applies a decision to a queued item.  Skip drops the item.
// Accept and set write through the repository; the item stays queued when
// the store refuses the write, with Existing updated to the stored value.
func (s *Service) Resolve(ctx context.Context, id string, d Decision) (*domain.FieldResult, error) {
	if s.queue == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "review queue not configured")
	}
	item, err := s.queue.Get(id)
	if err != nil {
		return nil, err
	}

	var value string
	switch d.Action {
	case ActionSkip:
		s.queue.Remove(id)
		s.logger.Info("review item skipped", logging.String("id", id), logging.String("field", item.Field))
		return nil, nil
	case ActionAccept:
		value = item.Value
	case ActionSet:
		value = strings.TrimSpace(d.Value)
		if value == "" {
			return nil, errors.InvalidParam("set requires a value").WithDetail(id)
		}
	default:
		return nil, errors.Newf(errors.ErrCodeBadRequest, "unknown action %q", d.Action)
	}

	cat, key, ok := domain.Route(item.Field)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeValidation, "field %q has no column", item.Field)
	}
	results, err := s.repo.Upsert(ctx, item.EntityID, cat, map[string]string{key: value})
	if err != nil {
		s.metrics.StoreWrite(string(cat), "error")
		return nil, err
	}
	fr, ok := results[key]
	if !ok {
		return nil, errors.Internal("store returned no result for field").WithDetail(item.Field)
	}
	s.metrics.StoreWrite(string(cat), string(fr.Status))

	switch fr.Status {
	case domain.FieldWritten:
		s.queue.Remove(id)
		ev := simulant.RecordUpserted{RunID: item.RunID, EntityID: item.EntityID, Category: string(cat), Fields: map[string]string{key: value}}
		if err := s.events.RecordUpserted(ctx, ev); err != nil {
			s.logger.Warn("publish upsert event failed", logging.Err(err))
		}
	case domain.FieldUnchanged:
		s.queue.Remove(id)
	case domain.FieldConflict:
		item.Existing = fr.Existing
		s.queue.mu.Lock()
		if _, still := s.queue.items[id]; still {
			s.queue.items[id] = item
		}
		s.queue.mu.Unlock()
	}
	s.logger.Info("review item resolved",
		logging.String("id", id), logging.String("entity", item.EntityName),
		logging.String("field", item.Field), logging.String("status", string(fr.Status)))
	return &fr, nil
}
