package kafka

import (
	"context"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/common"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Event types carried in the envelope.
const (
	EventExtractionCompleted = "extraction.completed"
	EventReviewRequired      = "review.required"
	EventRecordUpserted      = "record.upserted"
	EventBatchRequested      = "batch.requested"
)

// MessagePublisher is satisfied by *Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *common.ProducerMessage) error
}

// EventBus publishes pipeline events as enveloped JSON.  Messages are keyed
// by entity so that one entity's events stay ordered within a partition.
type EventBus struct {
	pub     MessagePublisher
	source  string
	observe PublishObserver
}

// PublishObserver is told the outcome of every publish.
type PublishObserver func(topic string, err error)

// NewEventBus returns a bus stamping source on every envelope.
func NewEventBus(pub MessagePublisher, source string) *EventBus {
	return &EventBus{pub: pub, source: source}
}

// Observe registers fn and returns b.
func (b *EventBus) Observe(fn PublishObserver) *EventBus {
	b.observe = fn
	return b
}

func (b *EventBus) publish(ctx context.Context, topic, eventType, key string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, b.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic, key)
	if err != nil {
		return err
	}
	err = b.pub.Publish(ctx, msg)
	if b.observe != nil {
		b.observe(topic, err)
	}
	return err
}

// ExtractionCompleted publishes one per-document outcome.
func (b *EventBus) ExtractionCompleted(ctx context.Context, e simulant.ExtractionCompleted) error {
	return b.publish(ctx, TopicExtractionCompleted, EventExtractionCompleted, e.DocumentID, e)
}

// ReviewRequired publishes a field awaiting a decision.
func (b *EventBus) ReviewRequired(ctx context.Context, item simulant.ReviewItem) error {
	return b.publish(ctx, TopicReviewRequired, EventReviewRequired, item.EntityID, item)
}

// RecordUpserted publishes a store write.
func (b *EventBus) RecordUpserted(ctx context.Context, e simulant.RecordUpserted) error {
	return b.publish(ctx, TopicRecordUpserted, EventRecordUpserted, e.EntityID, e)
}

// BatchRequested asks the workers to run a batch.
func (b *EventBus) BatchRequested(ctx context.Context, req simulant.BatchRequested) error {
	return b.publish(ctx, TopicBatchRequested, EventBatchRequested, req.RunID, req)
}

// decode unwraps msg and checks its event type.
func decode(msg *common.Message, eventType string, target interface{}) error {
	env, err := MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	if env.EventType != eventType {
		return errors.New(errors.ErrCodeValidation, "unexpected event type").WithDetail(env.EventType)
	}
	return env.DecodePayload(target)
}

// ReviewHandler adapts fn to a MessageHandler for TopicReviewRequired.
func ReviewHandler(fn func(context.Context, simulant.ReviewItem) error) common.MessageHandler {
	return func(ctx context.Context, msg *common.Message) error {
		var item simulant.ReviewItem
		if err := decode(msg, EventReviewRequired, &item); err != nil {
			return err
		}
		return fn(ctx, item)
	}
}

// BatchHandler adapts fn to a MessageHandler for TopicBatchRequested.
func BatchHandler(fn func(context.Context, simulant.BatchRequested) error) common.MessageHandler {
	return func(ctx context.Context, msg *common.Message) error {
		var req simulant.BatchRequested
		if err := decode(msg, EventBatchRequested, &req); err != nil {
			return err
		}
		return fn(ctx, req)
	}
}
