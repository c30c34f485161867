//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Connect(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())

	assert.True(t, tc.Client.IsHealthy())
	require.NoError(t, tc.Client.Check(context.Background()))

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestIntegration_EnsureStreamIsIdempotent(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	_, err := tc.Client.EnsureStream(ctx, "directory", []string{"event.people.>"})
	require.NoError(t, err)

	stream, err := tc.Client.EnsureStream(ctx, "directory", []string{"event.people.>", "event.structures.>"})
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"event.people.>", "event.structures.>"}, info.Config.Subjects)
}

func TestIntegration_ConsumerFiltersSubject(t *testing.T) {
	tc := NewTestClient(t, WithStream("directory", "event.people.>", "event.structures.>"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	consumer, err := tc.Client.EnsureConsumer(ctx, ConsumerSpec{
		Stream:        "directory",
		Durable:       "crisalid-ikg-people",
		FilterSubject: "event.people.person.*",
		MaxAckPending: 5,
		AckWait:       30 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, tc.Client.PublishMsg(ctx, "event.structures.structure.created", []byte(`{"s":1}`), ""))
	require.NoError(t, tc.Client.PublishMsg(ctx, "event.people.person.created", []byte(`{"p":1}`), ""))

	batch, err := consumer.Fetch(2, jetstream.FetchMaxWait(2*time.Second))
	require.NoError(t, err)

	var subjects []string
	for msg := range batch.Messages() {
		subjects = append(subjects, msg.Subject())
		require.NoError(t, msg.Ack())
	}
	assert.Equal(t, []string{"event.people.person.created"}, subjects)
}

func TestIntegration_PublishDeduplicatesByMsgID(t *testing.T) {
	tc := NewTestClient(t, WithStream("tasks", "task.>"))
	ctx := context.Background()

	id := uuid.NewString()
	for i := 0; i < 3; i++ {
		require.NoError(t, tc.Client.PublishMsg(ctx, "task.entity.references.retrieval", []byte(`{}`), id))
	}
	require.NoError(t, tc.Client.PublishMsg(ctx, "task.entity.references.retrieval", []byte(`{}`), uuid.NewString()))

	js, err := tc.Client.JetStream()
	require.NoError(t, err)
	stream, err := js.Stream(ctx, "tasks")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)
}

func TestIntegration_CloseDrains(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, tc.Client.Close(ctx))
	assert.Equal(t, StatusDisconnected, tc.Client.Status())
	assert.False(t, tc.Client.IsHealthy())
}
