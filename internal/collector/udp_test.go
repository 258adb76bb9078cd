package collector

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/events"
	apptesting "github.com/agenttrace/agenttrace/internal/testing"
	"github.com/agenttrace/agenttrace/pkg/logger"
)

func newUDPFixture(t *testing.T) (*UDPListener, *memStore) {
	t.Helper()

	store := &memStore{}
	cfg := config.CollectorConfig{BatchSize: 1, BatchTimeout: 20 * time.Millisecond, BufferSize: 100}
	pipeline := NewPipeline(cfg, store, nil, events.NewBus(logger.Nop()), logger.Nop())
	pipeline.Start()
	t.Cleanup(pipeline.Stop)

	listener, err := NewUDPListener(0, pipeline, logger.Nop())
	require.NoError(t, err)
	listener.Start()
	t.Cleanup(listener.Stop)

	return listener, store
}

func sendDatagram(t *testing.T, addr net.Addr, payload []byte) {
	t.Helper()

	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestUDPIngest(t *testing.T) {
	listener, store := newUDPFixture(t)

	span := apptesting.NewSpanFixture("udp-1", "udp-trace")
	payload, err := msgpack.Marshal(span)
	require.NoError(t, err)

	sendDatagram(t, listener.Addr(), payload)

	require.Eventually(t, func() bool {
		return len(store.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "udp-1", store.all()[0].SpanID)
}

func TestUDPRejectsGarbage(t *testing.T) {
	listener, store := newUDPFixture(t)

	sendDatagram(t, listener.Addr(), []byte("not msgpack at all"))

	require.Eventually(t, func() bool {
		return listener.DecodeErrors() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, store.all())
}

func TestUDPRejectsMissingIDs(t *testing.T) {
	listener, store := newUDPFixture(t)

	span := apptesting.NewSpanFixture("", "udp-trace")
	payload, err := msgpack.Marshal(span)
	require.NoError(t, err)

	sendDatagram(t, listener.Addr(), payload)

	require.Eventually(t, func() bool {
		return listener.DecodeErrors() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, store.all())
}
