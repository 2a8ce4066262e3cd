package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestExchangeRoundTrip(t *testing.T) {
	server := listenUDP(t)
	stop := make(chan struct{})
	defer close(stop)

	go Serve(server, stop, func(payload []byte, from net.Addr) []byte {
		return append([]byte("ECHO:"), payload...)
	})

	client := listenUDP(t)
	reply, _, err := Exchange(client, server.LocalAddr(), []byte("hello"), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "ECHO:hello", string(reply))
}

func TestExchangeTimeoutExhausted(t *testing.T) {
	// No server listening on this address; every attempt should time out.
	deadEnd, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := deadEnd.LocalAddr()
	deadEnd.Close() // nobody will reply now

	client := listenUDP(t)
	start := time.Now()
	_, _, err = Exchange(client, addr, []byte("hi"), Config{Timeout: 20 * time.Millisecond, Retries: 3})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTransportExhausted)
	assert.GreaterOrEqual(t, elapsed, 3*20*time.Millisecond)
}

func TestServeAlwaysReplies(t *testing.T) {
	server := listenUDP(t)
	stop := make(chan struct{})
	defer close(stop)

	go Serve(server, stop, func(payload []byte, from net.Addr) []byte {
		return []byte("OK")
	})

	client := listenUDP(t)
	for i := 0; i < 5; i++ {
		reply, _, err := Exchange(client, server.LocalAddr(), []byte("ping"), DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, "OK", string(reply))
	}
}
