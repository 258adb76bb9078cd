package collector

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agenttrace/agenttrace/pkg/models"
)

const maxDatagramSize = 64 * 1024

// UDPListener accepts msgpack-encoded spans over UDP for high-volume,
// fire-and-forget ingestion. Malformed datagrams are counted and logged,
// never fatal.
type UDPListener struct {
	pipeline *Pipeline
	conn     *net.UDPConn
	log      zerolog.Logger

	decodeErrors uint64
	received     uint64

	wg sync.WaitGroup
}

// NewUDPListener binds the UDP port and returns a listener ready to Start.
func NewUDPListener(port int, pipeline *Pipeline, log zerolog.Logger) (*UDPListener, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", port, err)
	}

	return &UDPListener{
		pipeline: pipeline,
		conn:     conn,
		log:      log.With().Str("component", "udp_listener").Logger(),
	}, nil
}

// Start launches the read loop.
func (l *UDPListener) Start() {
	l.wg.Add(1)
	go l.readLoop()
	l.log.Info().Str("addr", l.conn.LocalAddr().String()).Msg("UDP span listener started")
}

// Stop closes the socket and waits for the read loop to exit.
func (l *UDPListener) Stop() {
	_ = l.conn.Close()
	l.wg.Wait()

	l.log.Info().
		Uint64("received", atomic.LoadUint64(&l.received)).
		Uint64("decode_errors", atomic.LoadUint64(&l.decodeErrors)).
		Msg("UDP span listener stopped")
}

// Addr returns the bound local address. Useful when listening on port 0.
func (l *UDPListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// DecodeErrors returns the number of datagrams that failed to decode.
func (l *UDPListener) DecodeErrors() uint64 {
	return atomic.LoadUint64(&l.decodeErrors)
}

func (l *UDPListener) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn().Err(err).Msg("UDP read error")
			continue
		}

		var span models.Span
		if err := msgpack.Unmarshal(buf[:n], &span); err != nil {
			atomic.AddUint64(&l.decodeErrors, 1)
			l.log.Debug().Err(err).Int("bytes", n).Msg("Dropping undecodable datagram")
			continue
		}

		if span.SpanID == "" || span.TraceID == "" {
			atomic.AddUint64(&l.decodeErrors, 1)
			continue
		}

		atomic.AddUint64(&l.received, 1)
		if err := l.pipeline.Submit(span); err != nil {
			l.log.Warn().Err(err).Msg("Pipeline rejected UDP span")
		}
	}
}
