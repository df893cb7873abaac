//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package scanner

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

// Exchanger sends a single DNS query to a server and returns its response.
// Implementations must be safe for concurrent use.
type Exchanger interface {
	Exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)
}

// Supported transport protocols.
const (
	ProtocolUDP  = "udp"
	ProtocolTCP  = "tcp"
	ProtocolTLS  = "tls"
	ProtocolQUIC = "quic"
)

// Default server ports per protocol.
const (
	portPlain     = "53"
	portEncrypted = "853"
)

// Transport is the default [Exchanger] over UDP, TCP, DNS-over-TLS, or
// DNS-over-QUIC. The zero value uses UDP with a 5 second timeout.
type Transport struct {
	// Protocol is one of the Protocol constants; empty means UDP.
	Protocol string

	// Timeout bounds each exchange; zero means 5 seconds.
	Timeout time.Duration
}

func (t *Transport) timeout() time.Duration {
	if t.Timeout <= 0 {
		return 5 * time.Second
	}
	return t.Timeout
}

// Exchange implements [Exchanger]. A truncated UDP response is retried
// once over TCP.
func (t *Transport) Exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	switch t.Protocol {
	case "", ProtocolUDP:
		resp, err := t.exchangeClient(ctx, msg, withDefaultPort(server, portPlain), "udp")
		if err == nil && resp.Truncated {
			logrus.WithField("server", server).Debug("scanner: truncated response, retrying over TCP")
			return t.exchangeClient(ctx, msg, withDefaultPort(server, portPlain), "tcp")
		}
		return resp, err
	case ProtocolTCP:
		return t.exchangeClient(ctx, msg, withDefaultPort(server, portPlain), "tcp")
	case ProtocolTLS:
		return t.exchangeClient(ctx, msg, withDefaultPort(server, portEncrypted), "tcp-tls")
	case ProtocolQUIC:
		return t.exchangeQUIC(ctx, msg, withDefaultPort(server, portEncrypted))
	default:
		return nil, fmt.Errorf("unsupported transport protocol: %s", t.Protocol)
	}
}

func (t *Transport) exchangeClient(ctx context.Context, msg *dns.Msg, server, network string) (*dns.Msg, error) {
	client := &dns.Client{
		Net:     network,
		Timeout: t.timeout(),
	}
	if network == "tcp-tls" {
		host, _, err := net.SplitHostPort(server)
		if err != nil {
			return nil, err
		}
		client.TLSConfig = &tls.Config{ServerName: host}
	}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	return resp, err
}

// exchangeQUIC performs a one-shot DNS-over-QUIC exchange (RFC 9250):
// length-prefixed message on a bidirectional stream, message ID zero on
// the wire.
func (t *Transport) exchangeQUIC(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{
		ServerName: host,
		NextProtos: []string{"doq"},
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()

	conn, err := quic.DialAddr(ctx, server, tlsConfig, &quic.Config{
		MaxIdleTimeout: t.timeout(),
	})
	if err != nil {
		return nil, err
	}
	defer conn.CloseWithError(0, "")

	// RFC 9250 requires the wire message ID to be zero.
	query := msg.Copy()
	query.Id = 0
	raw, err := query.Pack()
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	if err := stream.SetDeadline(time.Now().Add(t.timeout())); err != nil {
		return nil, err
	}

	buf := make([]byte, 2+len(raw))
	binary.BigEndian.PutUint16(buf, uint16(len(raw)))
	copy(buf[2:], raw)
	if _, err := stream.Write(buf); err != nil {
		return nil, err
	}

	// Close the write direction so the server sees EOF.
	if err := stream.Close(); err != nil {
		return nil, err
	}

	var length [2]byte
	if _, err := io.ReadFull(stream, length[:]); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint16(length[:]))
	if _, err := io.ReadFull(stream, body); err != nil {
		return nil, err
	}

	resp := new(dns.Msg)
	if err := resp.Unpack(body); err != nil {
		return nil, err
	}
	resp.Id = msg.Id
	return resp, nil
}

// withDefaultPort appends the default port when server has none.
func withDefaultPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, port)
}
