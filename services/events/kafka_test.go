package eventsvc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portals/core"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaPublisher(t *testing.T) {
	conf := core.NewTestConfig()
	_, err := NewKafkaPublisher(conf)
	assert.Error(t, err, "no brokers")

	conf.Kafka.Brokers = []string{"localhost:9092"}
	conf.Kafka.TopicPrefix = "masomo."
	pub, err := NewKafkaPublisher(conf)
	require.NoError(t, err)
	assert.Equal(t, "masomo.auth.signed_in", pub.Topic("auth.signed_in"))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := new(fakeWriter)
	pub := &KafkaPublisher{writer: w, topicPrefix: "school1"}

	payload := map[string]string{"user_id": "u1"}
	require.NoError(t, pub.Publish(context.Background(), "profile.updated", payload, "u1"))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "school1.profile.updated", msg.Topic)
	assert.Equal(t, []byte("u1"), msg.Key)
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte("profile.updated")}}, msg.Headers)

	var got map[string]string
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, payload, got)

	w.err = errors.New("broker down")
	err := pub.Publish(context.Background(), "auth.signed_in", payload, "u1")
	assert.EqualError(t, err, "writing auth.signed_in event: broker down")

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}
