package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSPublisher_Publish(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := Connect(server.ClientURL(), nil)
	require.NoError(t, err)
	defer nc.Close()

	pub := NewNATSPublisher(nc, "")
	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("contextlog.*.card.created", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	e := New(CardCreated, "u-1", at, map[string]string{"card_id": "c1"})
	require.NoError(t, pub.Publish(context.Background(), e))

	select {
	case msg := <-ch:
		assert.Equal(t, "contextlog.u-1.card.created", msg.Subject)
		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, CardCreated, got.Type)
		assert.Equal(t, "u-1", got.UserID)
		assert.True(t, at.Equal(got.OccurredAt))
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewNATSPublisher(nc, "x").Publish(ctx, New(ReceiptCreated, "u", time.Now(), nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubject_SanitizesUserID(t *testing.T) {
	p := NewNATSPublisher(nil, "journal")
	assert.Equal(t, "journal.a_b_c.insight.created", p.Subject(Event{Type: InsightCreated, UserID: "a.b*c"}))
	assert.Equal(t, "journal._.insight.created", p.Subject(Event{Type: InsightCreated}))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), Event{Type: ReceiptCreated}))
	require.NoError(t, r.Publish(context.Background(), Event{Type: CardCreated}))
	assert.Equal(t, []string{ReceiptCreated, CardCreated}, r.Types())
	assert.Len(t, r.Events(), 2)

	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}
