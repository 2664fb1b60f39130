package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// ReviewService decides queued review items.
type ReviewService interface {
	Queue() *extraction.ReviewQueue
	Resolve(ctx context.Context, id string, d extraction.Decision) (*domain.FieldResult, error)
}

// ReviewHandler exposes the review queue.
type ReviewHandler struct {
	svc     ReviewService
	metrics *prometheus.PipelineMetrics
}

// NewReviewHandler serves svc's queue.  metrics may be nil.
func NewReviewHandler(svc ReviewService, metrics *prometheus.PipelineMetrics) *ReviewHandler {
	return &ReviewHandler{svc: svc, metrics: metrics}
}

// ResolveRequest is the body of POST /v1/review/:id/resolve.  Value is only
// read for the set action.
type ResolveRequest struct {
	Action string `json:"action" binding:"required"`
	Value  string `json:"value"`
}

// ResolveResponse reports the store outcome; Result is nil for skip.
type ResolveResponse struct {
	ID     string              `json:"id"`
	Action extraction.Action   `json:"action"`
	Result *domain.FieldResult `json:"result,omitempty"`
	Queued bool                `json:"queued"`
}

// List handles GET /v1/review, optionally filtered by ?entity_id=.
func (h *ReviewHandler) List(c *gin.Context) {
	queue, err := h.queue()
	if err != nil {
		RespondError(c, err)
		return
	}
	items := queue.List(strings.TrimSpace(c.Query("entity_id")))
	if items == nil {
		items = []simulant.ReviewItem{}
	}
	RespondOK(c, gin.H{"items": items, "count": len(items)})
}

// Get handles GET /v1/review/:id.
func (h *ReviewHandler) Get(c *gin.Context) {
	queue, err := h.queue()
	if err != nil {
		RespondError(c, err)
		return
	}
	item, err := queue.Get(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, item)
}

// Resolve handles POST /v1/review/:id/resolve.
func (h *ReviewHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body"))
		return
	}
	action, err := extraction.ParseAction(req.Action)
	if err != nil {
		RespondError(c, err)
		return
	}

	id := c.Param("id")
	result, err := h.svc.Resolve(c.Request.Context(), id, extraction.Decision{Action: action, Value: req.Value})
	if err != nil {
		RespondError(c, err)
		return
	}
	queue, _ := h.queue()
	_, lookupErr := queue.Get(id)
	if h.metrics != nil {
		h.metrics.SetReviewQueueDepth("review", queue.Len())
	}
	RespondOK(c, ResolveResponse{ID: id, Action: action, Result: result, Queued: lookupErr == nil})
}

func (h *ReviewHandler) queue() (*extraction.ReviewQueue, error) {
	q := h.svc.Queue()
	if q == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "review queue is not configured")
	}
	return q, nil
}
