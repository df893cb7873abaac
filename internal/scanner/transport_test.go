//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package scanner

import (
	"context"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestWithDefaultPort(t *testing.T) {
	require.Equal(t, "8.8.8.8:53", withDefaultPort("8.8.8.8", portPlain))
	require.Equal(t, "8.8.8.8:5353", withDefaultPort("8.8.8.8:5353", portPlain))
	require.Equal(t, "9.9.9.9:853", withDefaultPort("9.9.9.9", portEncrypted))
	require.Equal(t, "[2001:db8::1]:53", withDefaultPort("2001:db8::1", portPlain))
}

func TestTransportUnsupportedProtocol(t *testing.T) {
	transport := &Transport{Protocol: "smtp"}
	msg := newTestQuery("example.com", dns.TypeHTTPS)

	_, err := transport.Exchange(context.Background(), msg, "192.0.2.53")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported transport protocol")
}
