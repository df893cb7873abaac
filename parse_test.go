// SPDX-License-Identifier: GPL-3.0-or-later

package svcbscan

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func newHTTPS(priority uint16, target string, values ...dns.SVCBKeyValue) *dns.HTTPS {
	return &dns.HTTPS{
		SVCB: dns.SVCB{
			Hdr: dns.RR_Header{
				Name:   "example.com.",
				Rrtype: dns.TypeHTTPS,
				Class:  dns.ClassINET,
			},
			Priority: priority,
			Target:   target,
			Value:    values,
		},
	}
}

func newSVCB(priority uint16, target string, values ...dns.SVCBKeyValue) *dns.SVCB {
	return &dns.SVCB{
		Hdr: dns.RR_Header{
			Name:   "example.com.",
			Rrtype: dns.TypeSVCB,
			Class:  dns.ClassINET,
		},
		Priority: priority,
		Target:   target,
		Value:    values,
	}
}

func TestParseHTTPSAnswers(t *testing.T) {
	t.Run("empty input yields the zero fragment", func(t *testing.T) {
		frag := ParseHTTPSAnswers(nil)
		require.Equal(t, Fragment{}, frag)
	})

	t.Run("non-HTTPS records are ignored", func(t *testing.T) {
		rrs := []dns.RR{&dns.A{
			Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA},
			A:   net.ParseIP("192.0.2.1"),
		}}
		frag := ParseHTTPSAnswers(rrs)
		require.False(t, frag.HasRecord)
	})

	t.Run("selects the smallest priority", func(t *testing.T) {
		rrs := []dns.RR{
			newHTTPS(3, "backup.example.com."),
			newHTTPS(1, "primary.example.com."),
			newHTTPS(2, "secondary.example.com."),
		}
		frag := ParseHTTPSAnswers(rrs)
		require.True(t, frag.HasRecord)
		require.Equal(t, uint16(1), *frag.Priority)
		require.Equal(t, "primary.example.com.", *frag.Target)
	})

	t.Run("ties keep the first record", func(t *testing.T) {
		rrs := []dns.RR{
			newHTTPS(1, "first.example.com."),
			newHTTPS(1, "second.example.com."),
		}
		frag := ParseHTTPSAnswers(rrs)
		require.Equal(t, "first.example.com.", *frag.Target)
	})

	t.Run("decodes all well-known parameters", func(t *testing.T) {
		rrs := []dns.RR{newHTTPS(1, ".",
			&dns.SVCBAlpn{Alpn: []string{"h2", "h3"}},
			&dns.SVCBPort{Port: 8443},
			&dns.SVCBIPv4Hint{Hint: []net.IP{
				net.ParseIP("192.0.2.1").To4(),
				net.ParseIP("192.0.2.2").To4(),
			}},
			&dns.SVCBECHConfig{ECH: []byte{0x01, 0x02}},
			&dns.SVCBIPv6Hint{Hint: []net.IP{net.ParseIP("2001:db8::1")}},
		)}

		frag := ParseHTTPSAnswers(rrs)
		require.True(t, frag.HasRecord)
		require.Equal(t, "h2,h3", *frag.ALPNProtocols)
		require.True(t, frag.HasHTTP3)
		require.Equal(t, uint16(8443), *frag.Port)
		require.Equal(t, "192.0.2.1,192.0.2.2", *frag.IPv4Hint)
		require.Equal(t, "2001:db8::1", *frag.IPv6Hint)
		require.True(t, frag.ECHConfig)
	})

	t.Run("absent parameters stay nil", func(t *testing.T) {
		frag := ParseHTTPSAnswers([]dns.RR{newHTTPS(1, ".")})
		require.True(t, frag.HasRecord)
		require.Nil(t, frag.ALPNProtocols)
		require.False(t, frag.HasHTTP3)
		require.Nil(t, frag.Port)
		require.Nil(t, frag.IPv4Hint)
		require.Nil(t, frag.IPv6Hint)
		require.False(t, frag.ECHConfig)
	})

	t.Run("draft h3 tokens do not count as HTTP3", func(t *testing.T) {
		rrs := []dns.RR{newHTTPS(1, ".",
			&dns.SVCBAlpn{Alpn: []string{"h3-29", "h2"}},
		)}
		frag := ParseHTTPSAnswers(rrs)
		require.Equal(t, "h3-29,h2", *frag.ALPNProtocols)
		require.False(t, frag.HasHTTP3)
	})

	t.Run("unrecognized keys are ignored", func(t *testing.T) {
		rrs := []dns.RR{newHTTPS(1, ".",
			&dns.SVCBMandatory{Code: []dns.SVCBKey{dns.SVCB_ALPN}},
		)}
		frag := ParseHTTPSAnswers(rrs)
		require.True(t, frag.HasRecord)
		require.Nil(t, frag.ALPNProtocols)
	})

	t.Run("empty ip hint stays nil", func(t *testing.T) {
		rrs := []dns.RR{newHTTPS(1, ".",
			&dns.SVCBIPv4Hint{},
		)}
		frag := ParseHTTPSAnswers(rrs)
		require.Nil(t, frag.IPv4Hint)
	})
}

func TestParseSVCBAnswers(t *testing.T) {
	t.Run("empty input yields the zero fragment", func(t *testing.T) {
		frag := ParseSVCBAnswers(nil)
		require.Equal(t, SVCBFragment{}, frag)
	})

	t.Run("selects the smallest priority with raw params", func(t *testing.T) {
		rrs := []dns.RR{
			newSVCB(10, "fallback.example.com."),
			newSVCB(1, "svc.example.com.",
				&dns.SVCBAlpn{Alpn: []string{"foo"}},
				&dns.SVCBPort{Port: 1234},
			),
		}
		frag := ParseSVCBAnswers(rrs)
		require.True(t, frag.HasRecord)
		require.Equal(t, uint16(1), *frag.Priority)
		require.Equal(t, "svc.example.com.", *frag.Target)
		require.Equal(t, map[dns.SVCBKey]string{
			dns.SVCB_ALPN: "foo",
			dns.SVCB_PORT: "1234",
		}, frag.Params)
	})

	t.Run("no params leaves the map nil", func(t *testing.T) {
		frag := ParseSVCBAnswers([]dns.RR{newSVCB(0, ".")})
		require.True(t, frag.HasRecord)
		require.Nil(t, frag.Params)
	})
}

func TestRecordMerge(t *testing.T) {
	priority := uint16(1)
	target := "svc.example.com."
	alpn := "h2,h3"

	rec := Record{Domain: "example.com", Subdomain: SubdomainRoot, FullDomain: "example.com"}
	rec.MergeHTTPS(Fragment{
		HasRecord:     true,
		Priority:      &priority,
		Target:        &target,
		ALPNProtocols: &alpn,
		HasHTTP3:      true,
		ECHConfig:     true,
	})
	require.True(t, rec.HasHTTPSRecord)
	require.Equal(t, uint16(1), *rec.Priority)
	require.True(t, rec.HasHTTP3)

	rec.MergeSVCB(SVCBFragment{
		HasRecord: true,
		Priority:  &priority,
		Target:    &target,
		Params:    map[dns.SVCBKey]string{dns.SVCB_PORT: "1234"},
	})
	require.True(t, rec.HasSVCBRecord)
	require.Equal(t, map[string]string{"port": "1234"}, rec.SVCBParams)
}

func TestRecordFields(t *testing.T) {
	t.Run("partial record omits absent fields", func(t *testing.T) {
		rec := Record{Domain: "example.com"}
		fields := rec.Fields()
		require.Equal(t, "example.com", fields["domain"])
		require.NotContains(t, fields, "subdomain")
		require.NotContains(t, fields, "https_priority")
		require.Contains(t, fields, "has_https_record")
		require.Contains(t, fields, "has_http3")
		require.Contains(t, fields, "ech_config")
	})

	t.Run("populated record exposes typed values", func(t *testing.T) {
		priority := uint16(1)
		target := "."
		rec := Record{
			Domain:         "example.com",
			Subdomain:      SubdomainRoot,
			FullDomain:     "example.com",
			HasHTTPSRecord: true,
			Priority:       &priority,
			Target:         &target,
		}
		fields := rec.Fields()
		require.Equal(t, 1, fields["https_priority"])
		require.Equal(t, ".", fields["https_target"])
		require.Equal(t, true, fields["has_https_record"])
	})
}
