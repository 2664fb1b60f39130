package kafka

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/common"
)

type mockKafkaConn struct {
	created    []kafka.TopicConfig
	createErr  error
	partitions []kafka.Partition
	readErr    error
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, topics...)
	return nil
}

func (m *mockKafkaConn) DeleteTopics(...string) error { return nil }

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(topics) == 0 {
		return m.partitions, nil
	}
	var out []kafka.Partition
	for _, p := range m.partitions {
		for _, t := range topics {
			if p.Topic == t {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *mockKafkaConn) Close() error { return nil }

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics(0)
	require.Len(t, topics, 5)
	names := make([]string, 0, len(topics))
	for _, tc := range topics {
		names = append(names, tc.Name)
		assert.Equal(t, 1, tc.ReplicationFactor)
	}
	assert.ElementsMatch(t, []string{
		TopicExtractionCompleted, TopicReviewRequired, TopicRecordUpserted, TopicBatchRequested, TopicDeadLetter,
	}, names)
}

func TestCreateTopic(t *testing.T) {
	conn := &mockKafkaConn{}
	m := newTopicManager(conn, nil)

	err := m.CreateTopic(context.Background(), common.TopicConfig{
		Name: TopicReviewRequired, NumPartitions: 3, ReplicationFactor: 1,
		RetentionMs: 1000, CleanupPolicy: "delete", Configs: map[string]string{"min.insync.replicas": "1"},
	})
	require.NoError(t, err)
	require.Len(t, conn.created, 1)
	entries := map[string]string{}
	for _, e := range conn.created[0].ConfigEntries {
		entries[e.ConfigName] = e.ConfigValue
	}
	assert.Equal(t, map[string]string{"retention.ms": "1000", "cleanup.policy": "delete", "min.insync.replicas": "1"}, entries)
}

func TestCreateTopic_Validation(t *testing.T) {
	m := newTopicManager(&mockKafkaConn{}, nil)
	ctx := context.Background()
	assert.Error(t, m.CreateTopic(ctx, common.TopicConfig{NumPartitions: 1, ReplicationFactor: 1}))
	assert.Error(t, m.CreateTopic(ctx, common.TopicConfig{Name: "t", ReplicationFactor: 1}))
	assert.Error(t, m.CreateTopic(ctx, common.TopicConfig{Name: "t", NumPartitions: 1}))
}

func TestCreateTopic_AlreadyExists(t *testing.T) {
	conn := &mockKafkaConn{
		createErr:  stderrors.New("broker says no"),
		partitions: []kafka.Partition{{Topic: "t", ID: 0}},
	}
	m := newTopicManager(conn, nil)
	assert.NoError(t, m.CreateTopic(context.Background(), common.TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1}))

	conn.partitions = nil
	assert.Error(t, m.CreateTopic(context.Background(), common.TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1}))
}

func TestListTopics_Deduplicates(t *testing.T) {
	conn := &mockKafkaConn{partitions: []kafka.Partition{
		{Topic: "a", ID: 0}, {Topic: "a", ID: 1}, {Topic: "b", ID: 0},
	}}
	topics, err := newTopicManager(conn, nil).ListTopics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, topics)
}

func TestEnsureDefaultTopics(t *testing.T) {
	conn := &mockKafkaConn{}
	require.NoError(t, newTopicManager(conn, nil).EnsureDefaultTopics(context.Background(), 3))
	assert.Len(t, conn.created, 5)
	assert.Equal(t, 3, conn.created[0].ReplicationFactor)
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEventEnvelope(EventRecordUpserted, "regolith", map[string]string{"entity_id": "S001"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)

	env.TraceID = "trace-1"
	msg, err := env.ToMessage(TopicRecordUpserted, "S001")
	require.NoError(t, err)
	assert.Equal(t, "S001", string(msg.Key))
	assert.Equal(t, "trace-1", msg.Headers[HeaderTraceID])

	back, err := MessageToEventEnvelope(&common.Message{Topic: msg.Topic, Value: msg.Value})
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, back.DecodePayload(&payload))
	assert.Equal(t, "S001", payload["entity_id"])

	_, err = MessageToEventEnvelope(&common.Message{})
	assert.Error(t, err)
	_, err = MessageToEventEnvelope(&common.Message{Value: []byte("{")})
	assert.Error(t, err)
}
