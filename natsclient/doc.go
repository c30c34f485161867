// Package natsclient wraps the NATS connection used by the IKG service.
//
// The broker plays the role of an AMQP server: streams stand in for
// exchanges, durable pull consumers for queues and subject filters for
// routing patterns. The client owns the connection and its JetStream context;
// listeners and the publisher share it.
//
// # Connecting
//
// Connect retries at a constant interval until the server accepts the
// connection, ctx is cancelled or the server rejects the credentials:
//
//	client, err := natsclient.NewClient(cfg.NATS.URL,
//	    natsclient.WithLogger(logger),
//	    natsclient.WithCoreMetrics(registry.CoreMetrics()),
//	    natsclient.WithConnectRetryWait(cfg.NATS.ConnectRetryWait),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// Once connected the underlying nats.Conn reconnects on its own; status
// changes are reported through the callbacks and the ikg_broker_connected
// gauge.
//
// # Streams and consumers
//
//	_, err = client.EnsureStream(ctx, "directory", []string{"event.people.>", "event.structures.>"})
//	consumer, err := client.EnsureConsumer(ctx, natsclient.ConsumerSpec{
//	    Stream:        "directory",
//	    Durable:       "crisalid-ikg-people",
//	    FilterSubject: "event.people.person.*",
//	    MaxAckPending: 50,
//	    AckWait:       12 * time.Hour,
//	})
//
// Both calls are idempotent and update an existing declaration in place.
//
// # Publishing
//
// PublishMsg waits for the stream acknowledgement. Messages carrying the same
// id within the stream's duplicate window are stored once:
//
//	err = client.PublishMsg(ctx, "task.entity.references.retrieval", body, uuid.NewString())
//
// # Testing
//
// NewTestClient starts a throwaway server with testcontainers:
//
//	tc := natsclient.NewTestClient(t, natsclient.WithStream("tasks", "task.>"))
//	err := tc.Client.PublishMsg(ctx, "task.x", []byte("{}"), "")
package natsclient
