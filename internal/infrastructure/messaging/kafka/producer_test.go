package kafka

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/common"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc func() error
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockKafkaWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func newTestProducer(w WriterInterface) *Producer {
	return newProducerWithWriter(w, ProducerConfig{Brokers: []string{"localhost:9092"}}, logging.NewNopLogger())
}

func testMessage(topic, key, value string) *common.ProducerMessage {
	return &common.ProducerMessage{Topic: topic, Key: []byte(key), Value: []byte(value)}
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b"}, MaxRetries: -1}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{
		Brokers:  []string{"b"},
		Security: SecurityConfig{SASLEnabled: true, SASLMechanism: "PLAIN"},
	}))
}

func TestSecurityConfig_Mechanism(t *testing.T) {
	m, err := SecurityConfig{}.mechanism()
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = SecurityConfig{SASLEnabled: true, SASLMechanism: "PLAIN", SASLUsername: "u", SASLPassword: "p"}.mechanism()
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", m.Name())

	_, err = SecurityConfig{SASLEnabled: true, SASLMechanism: "GSSAPI"}.mechanism()
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		captured = msgs
		return nil
	}})

	msg := testMessage(TopicRecordUpserted, "S001", `{"a":1}`)
	msg.Headers = map[string]string{HeaderEventType: EventRecordUpserted}
	require.NoError(t, p.Publish(context.Background(), msg))

	require.Len(t, captured, 1)
	assert.Equal(t, TopicRecordUpserted, captured[0].Topic)
	assert.Equal(t, "S001", string(captured[0].Key))
	assert.False(t, captured[0].Time.IsZero())
	require.Len(t, captured[0].Headers, 1)
	assert.Equal(t, HeaderEventType, captured[0].Headers[0].Key)
	assert.Equal(t, int64(1), p.GetMetrics().MessagesSent.Load())
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	assert.Error(t, p.Publish(context.Background(), testMessage("", "k", "v")))
	assert.Error(t, p.Publish(context.Background(), testMessage("t", "k", "")))

	big := make([]byte, 1024*1024+1)
	err := p.Publish(context.Background(), &common.ProducerMessage{Topic: "t", Value: big})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestPublish_Failure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return stderrors.New("broker down")
	}})
	err := p.Publish(context.Background(), testMessage("t", "k", "v"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
	assert.Equal(t, int64(1), p.GetMetrics().MessagesFailed.Load())
}

func TestPublishBatch_PartialFailure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		errs := make(kafka.WriteErrors, len(msgs))
		errs[1] = stderrors.New("fail")
		return errs
	}})
	res, err := p.PublishBatch(context.Background(), []*common.ProducerMessage{
		testMessage("t", "1", "1"),
		testMessage("t", "2", "2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, "t", res.Errors[0].Topic)
}

func TestPublishBatch_TotalFailure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return stderrors.New("down")
	}})
	res, err := p.PublishBatch(context.Background(), []*common.ProducerMessage{testMessage("t", "1", "1")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, -1, res.Errors[0].Index)

	_, err = p.PublishBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestPublishAsync_ErrorHandler(t *testing.T) {
	got := make(chan error, 1)
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return stderrors.New("down")
	}})
	p.config.AsyncErrorHandler = func(err error, _ *common.ProducerMessage) { got <- err }
	p.PublishAsync(context.Background(), testMessage("t", "k", "v"))

	select {
	case err := <-got:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestClose_Idempotent(t *testing.T) {
	closes := 0
	p := newTestProducer(&mockKafkaWriter{closeFunc: func() error {
		closes++
		return nil
	}})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, closes)
	assert.Equal(t, ErrProducerClosed, p.Publish(context.Background(), testMessage("t", "k", "v")))
}
