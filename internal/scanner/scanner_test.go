//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package scanner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bassosimone/svcbscan"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// stubExchanger answers every query from a per-name script, counting
// the exchanges it performs.
type stubExchanger struct {
	calls    int64
	answers  map[string][]dns.RR
	rcodes   map[string]int
	failWith error
}

func (s *stubExchanger) Exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	atomic.AddInt64(&s.calls, 1)

	if s.failWith != nil {
		return nil, s.failWith
	}

	name := msg.Question[0].Name
	resp := new(dns.Msg)
	resp.SetReply(msg)
	resp.RecursionAvailable = true
	if rcode, ok := s.rcodes[name]; ok {
		resp.Rcode = rcode
		return resp, nil
	}
	for _, rr := range s.answers[name] {
		if rr.Header().Rrtype == msg.Question[0].Qtype {
			resp.Answer = append(resp.Answer, rr)
		}
	}
	return resp, nil
}

func (s *stubExchanger) exchanges() int64 { return atomic.LoadInt64(&s.calls) }

func httpsWithALPN(name string, priority uint16, alpn ...string) *dns.HTTPS {
	rr := httpsAnswer(name, priority, ".")
	if len(alpn) > 0 {
		rr.Value = []dns.SVCBKeyValue{&dns.SVCBAlpn{Alpn: alpn}}
	}
	return rr
}

func svcbAnswer(name string, priority uint16, target string) *dns.SVCB {
	return &dns.SVCB{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeSVCB,
			Class:  dns.ClassINET,
		},
		Priority: priority,
		Target:   target,
	}
}

func newTestScanner(stub *stubExchanger, cache Cache) *Scanner {
	return New(Config{
		Servers:   []string{"192.0.2.53"},
		Exchanger: stub,
		Cache:     cache,
		RateLimit: 10000,
		BatchSize: 2,
	})
}

func TestScannerQueryHTTPS(t *testing.T) {
	stub := &stubExchanger{
		answers: map[string][]dns.RR{
			"example.com.": {httpsWithALPN("example.com.", 1, "h2", "h3")},
		},
	}
	scan := newTestScanner(stub, nil)

	rec, err := scan.QueryHTTPS(context.Background(), "example.com", "")
	require.NoError(t, err)
	require.Equal(t, "example.com", rec.Domain)
	require.Equal(t, svcbscan.SubdomainRoot, rec.Subdomain)
	require.Equal(t, "example.com", rec.FullDomain)
	require.Equal(t, svcbscan.RecordTypeHTTPS, rec.RecordType)
	require.True(t, rec.HasHTTPSRecord)
	require.Equal(t, uint16(1), *rec.Priority)
	require.Equal(t, "h2,h3", *rec.ALPNProtocols)
	require.True(t, rec.HasHTTP3)
	require.Nil(t, rec.QueryError)
}

func TestScannerQuerySVCB(t *testing.T) {
	stub := &stubExchanger{
		answers: map[string][]dns.RR{
			"example.com.": {svcbAnswer("example.com.", 1, "svc.example.com.")},
		},
	}
	scan := newTestScanner(stub, nil)

	rec, err := scan.QuerySVCB(context.Background(), "example.com", "")
	require.NoError(t, err)
	require.True(t, rec.HasSVCBRecord)
	require.Equal(t, uint16(1), *rec.SVCBPriority)
	require.Equal(t, "svc.example.com.", *rec.SVCBTarget)
}

func TestScannerQueryErrors(t *testing.T) {
	t.Run("NXDOMAIN", func(t *testing.T) {
		stub := &stubExchanger{
			rcodes: map[string]int{"missing.example.com.": dns.RcodeNameError},
		}
		scan := newTestScanner(stub, nil)

		rec, err := scan.QueryHTTPS(context.Background(), "example.com", "missing")
		require.NoError(t, err)
		require.False(t, rec.HasHTTPSRecord)
		require.Equal(t, "NXDOMAIN", *rec.QueryError)
	})

	t.Run("no answer", func(t *testing.T) {
		stub := &stubExchanger{}
		scan := newTestScanner(stub, nil)

		rec, err := scan.QueryHTTPS(context.Background(), "example.com", "")
		require.NoError(t, err)
		require.False(t, rec.HasHTTPSRecord)
		require.Equal(t, "NoAnswer", *rec.QueryError)
	})

	t.Run("timeout", func(t *testing.T) {
		stub := &stubExchanger{failWith: context.DeadlineExceeded}
		scan := newTestScanner(stub, nil)

		rec, err := scan.QueryHTTPS(context.Background(), "example.com", "")
		require.NoError(t, err)
		require.Equal(t, "Timeout", *rec.QueryError)
	})

	t.Run("invalid domain rejected before any exchange", func(t *testing.T) {
		stub := &stubExchanger{}
		scan := newTestScanner(stub, nil)

		_, err := scan.QueryHTTPS(context.Background(), "-bad-.example..com", "")
		require.ErrorIs(t, err, ErrInvalidDomain)
		require.Equal(t, int64(0), stub.exchanges())
	})
}

func TestScannerTLDCheck(t *testing.T) {
	stub := &stubExchanger{}
	scan := New(Config{
		Servers:   []string{"192.0.2.53"},
		Exchanger: stub,
		RateLimit: 10000,
		TLDs:      fixedTLDs{"com": true},
	})

	_, err := scan.QueryHTTPS(context.Background(), "example.bogustld", "")
	require.ErrorIs(t, err, ErrInvalidDomain)
	require.Equal(t, int64(0), stub.exchanges())
}

// fixedTLDs is a closed TLD set for tests.
type fixedTLDs map[string]bool

func (f fixedTLDs) IsValidTLD(tld string) bool { return f[tld] }

func TestScannerCache(t *testing.T) {
	stub := &stubExchanger{
		answers: map[string][]dns.RR{
			"example.com.": {httpsAnswer("example.com.", 1, ".")},
		},
	}
	cache, err := NewMemoryCache()
	require.NoError(t, err)
	defer cache.Close()
	scan := newTestScanner(stub, cache)

	first, err := scan.QueryHTTPS(context.Background(), "example.com", "")
	require.NoError(t, err)
	second, err := scan.QueryHTTPS(context.Background(), "example.com", "")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, int64(1), stub.exchanges())

	scan.ClearCache()
	_, err = scan.QueryHTTPS(context.Background(), "example.com", "")
	require.NoError(t, err)
	require.Equal(t, int64(2), stub.exchanges())
}

func TestScannerServerFailover(t *testing.T) {
	// First server always fails at the transport level; the second
	// one answers.
	stub := &failoverExchanger{
		answers: map[string][]dns.RR{
			"example.com.": {httpsAnswer("example.com.", 1, ".")},
		},
		failing: "192.0.2.1:53",
	}

	scan := New(Config{
		Servers:   []string{"192.0.2.1:53", "192.0.2.2:53"},
		Exchanger: stub,
		RateLimit: 10000,
	})

	rec, err := scan.QueryHTTPS(context.Background(), "example.com", "")
	require.NoError(t, err)
	require.True(t, rec.HasHTTPSRecord)
	require.Nil(t, rec.QueryError)
}

type failoverExchanger struct {
	answers map[string][]dns.RR
	failing string
}

func (f *failoverExchanger) Exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	if server == f.failing {
		return nil, errors.New("connection refused")
	}
	resp := new(dns.Msg)
	resp.SetReply(msg)
	resp.RecursionAvailable = true
	for _, rr := range f.answers[msg.Question[0].Name] {
		if rr.Header().Rrtype == msg.Question[0].Qtype {
			resp.Answer = append(resp.Answer, rr)
		}
	}
	return resp, nil
}

func TestScannerCheckDomain(t *testing.T) {
	stub := &stubExchanger{
		answers: map[string][]dns.RR{
			"example.com.": {
				httpsWithALPN("example.com.", 1, "h3"),
				svcbAnswer("example.com.", 1, "."),
			},
			"www.example.com.": {
				httpsWithALPN("www.example.com.", 1, "h2"),
			},
		},
	}
	scan := newTestScanner(stub, nil)

	records := scan.CheckDomain(context.Background(), "example.com")
	require.Len(t, records, 4)

	// Fixed order: root HTTPS, www HTTPS, root SVCB, www SVCB.
	require.Equal(t, svcbscan.SubdomainRoot, records[0].Subdomain)
	require.Equal(t, svcbscan.RecordTypeHTTPS, records[0].RecordType)
	require.True(t, records[0].HasHTTPSRecord)

	require.Equal(t, svcbscan.SubdomainWWW, records[1].Subdomain)
	require.True(t, records[1].HasHTTPSRecord)
	require.False(t, records[1].HasHTTP3)

	require.Equal(t, svcbscan.RecordTypeSVCB, records[2].RecordType)
	require.True(t, records[2].HasSVCBRecord)

	require.Equal(t, svcbscan.RecordTypeSVCB, records[3].RecordType)
	require.False(t, records[3].HasSVCBRecord)
	require.Equal(t, "NoAnswer", *records[3].QueryError)
}

func TestScannerCheckDomainInvalidName(t *testing.T) {
	stub := &stubExchanger{}
	scan := newTestScanner(stub, nil)

	records := scan.CheckDomain(context.Background(), "bad..domain")
	require.Len(t, records, 4)
	for _, rec := range records {
		require.NotNil(t, rec.QueryError)
		require.Contains(t, *rec.QueryError, "invalid domain")
	}
	require.Equal(t, int64(0), stub.exchanges())
}

func TestScannerCheckDomains(t *testing.T) {
	stub := &stubExchanger{
		answers: map[string][]dns.RR{
			"alpha.com.": {httpsAnswer("alpha.com.", 1, ".")},
			"beta.org.":  {httpsAnswer("beta.org.", 1, ".")},
		},
	}
	scan := newTestScanner(stub, nil)

	var mu sync.Mutex
	var seen []string
	records := scan.CheckDomains(context.Background(),
		[]string{"alpha.com", "beta.org"},
		func(domain string) {
			mu.Lock()
			seen = append(seen, domain)
			mu.Unlock()
		})

	require.Len(t, records, 8)

	// Input order is preserved across the flattened result.
	require.Equal(t, "alpha.com", records[0].Domain)
	require.Equal(t, "beta.org", records[4].Domain)

	sort.Strings(seen)
	require.Equal(t, []string{"alpha.com", "beta.org"}, seen)
}
