package client

import (
	"fmt"
	"net"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/transport"
)

// Conn is the client's control-endpoint socket plus the server address it
// talks to — one per interactive session, reused across every command
// exchange.
type Conn struct {
	socket net.PacketConn
	server net.Addr
	cfg    transport.Config
}

// Dial opens a client-side UDP socket and resolves the server's control
// endpoint address.
func Dial(host string, port int) (*Conn, error) {
	socket, err := net.ListenPacket("udp", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("open client socket: %w", err)
	}
	server, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		socket.Close()
		return nil, fmt.Errorf("resolve server address: %w", err)
	}
	return &Conn{socket: socket, server: server, cfg: transport.DefaultConfig()}, nil
}

// Close releases the client's control socket.
func (c *Conn) Close() error { return c.socket.Close() }

// Exchange sends payload to the control endpoint and returns the single
// reply.
func (c *Conn) Exchange(payload []byte) (string, error) {
	reply, _, err := transport.Exchange(c.socket, c.server, payload, c.cfg)
	if err != nil {
		return "", err
	}
	return string(reply), nil
}

// ExchangeAt sends payload to an arbitrary endpoint (used for the
// ephemeral download data endpoint announced in a DOWNLOAD reply).
func (c *Conn) ExchangeAt(addr net.Addr, payload []byte) ([]byte, error) {
	reply, _, err := transport.Exchange(c.socket, addr, payload, c.cfg)
	return reply, err
}
