package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/pkg/logger"
	"github.com/agenttrace/agenttrace/pkg/models"
)

func TestBusPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(logger.Nop())

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	bus.Publish("collector", &SpanReceivedData{
		Span: models.Span{SpanID: "abc", TraceID: "t1", OperationName: "llm.chat"},
	})

	select {
	case event := <-ch:
		assert.Equal(t, SpanReceived, event.Type)
		assert.Equal(t, "collector", event.Module)
		data, ok := event.Data.(*SpanReceivedData)
		require.True(t, ok)
		assert.Equal(t, "abc", data.Span.SpanID)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestBusTypeFilter(t *testing.T) {
	bus := NewBus(logger.Nop())

	ch := bus.Subscribe(BackupCompleted)
	defer bus.Unsubscribe(ch)

	bus.Publish("collector", &SpanReceivedData{Span: models.Span{SpanID: "s1"}})
	bus.Publish("reliability", &BackupCompletedData{RemoteKey: "backups/x.tar.gz"})

	select {
	case event := <-ch:
		assert.Equal(t, BackupCompleted, event.Type)
	case <-time.After(time.Second):
		t.Fatal("filtered subscriber received nothing")
	}

	// The span event must have been filtered out
	select {
	case event := <-ch:
		t.Fatalf("unexpected second event: %s", event.Type)
	default:
	}
}

func TestBusFullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(logger.Nop())

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	// Publish more events than the channel buffer holds; Publish must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish("collector", &SpanReceivedData{Span: models.Span{SpanID: "s"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(logger.Nop())

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Double unsubscribe must be a no-op
	bus.Unsubscribe(ch)
}
