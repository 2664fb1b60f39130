package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/common"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

func consumed(p *common.ProducerMessage) *common.Message {
	return &common.Message{Topic: p.Topic, Key: p.Key, Value: p.Value, Headers: p.Headers}
}

func TestEventBus_Topics(t *testing.T) {
	pub := &capturePublisher{}
	bus := NewEventBus(pub, "regolith")
	ctx := context.Background()

	require.NoError(t, bus.ExtractionCompleted(ctx, simulant.ExtractionCompleted{DocumentID: "doc-1", Document: "LHS-1_TDS.pdf"}))
	require.NoError(t, bus.RecordUpserted(ctx, simulant.RecordUpserted{EntityID: "S001", Category: "chemical"}))
	require.NoError(t, bus.ReviewRequired(ctx, simulant.ReviewItem{EntityID: "S002", Field: "meta.institution"}))
	require.NoError(t, bus.BatchRequested(ctx, simulant.BatchRequested{RunID: "run-1", Source: "local"}))

	require.Len(t, pub.msgs, 4)
	want := []struct{ topic, key, event string }{
		{TopicExtractionCompleted, "doc-1", EventExtractionCompleted},
		{TopicRecordUpserted, "S001", EventRecordUpserted},
		{TopicReviewRequired, "S002", EventReviewRequired},
		{TopicBatchRequested, "run-1", EventBatchRequested},
	}
	for i, w := range want {
		assert.Equal(t, w.topic, pub.msgs[i].Topic)
		assert.Equal(t, w.key, string(pub.msgs[i].Key))
		assert.Equal(t, w.event, pub.msgs[i].Headers[HeaderEventType])
		assert.Equal(t, "regolith", pub.msgs[i].Headers[HeaderSource])
	}
}

func TestReviewHandler(t *testing.T) {
	pub := &capturePublisher{}
	bus := NewEventBus(pub, "regolith")
	item := simulant.ReviewItem{EntityID: "S002", EntityName: "LMS-1", Field: "chemical.SiO2", Value: "42.1", NumSources: 1}
	require.NoError(t, bus.ReviewRequired(context.Background(), item))

	var got simulant.ReviewItem
	h := ReviewHandler(func(_ context.Context, it simulant.ReviewItem) error {
		got = it
		return nil
	})
	require.NoError(t, h(context.Background(), consumed(pub.msgs[0])))
	assert.Equal(t, item.Field, got.Field)
	assert.Equal(t, item.Value, got.Value)
}

func TestBatchHandler_RejectsWrongEvent(t *testing.T) {
	pub := &capturePublisher{}
	bus := NewEventBus(pub, "regolith")
	require.NoError(t, bus.RecordUpserted(context.Background(), simulant.RecordUpserted{EntityID: "S001"}))

	called := false
	h := BatchHandler(func(context.Context, simulant.BatchRequested) error {
		called = true
		return nil
	})
	assert.Error(t, h(context.Background(), consumed(pub.msgs[0])))
	assert.False(t, called)
}

func TestEventBus_Observe(t *testing.T) {
	var seen []string
	bus := NewEventBus(&capturePublisher{}, "regolith").Observe(func(topic string, err error) {
		assert.NoError(t, err)
		seen = append(seen, topic)
	})
	require.NoError(t, bus.RecordUpserted(context.Background(), simulant.RecordUpserted{EntityID: "S001"}))
	assert.Equal(t, []string{TopicRecordUpserted}, seen)
}
