//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package analyzer

import (
	"testing"

	"github.com/bassosimone/svcbscan"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func u16ptr(v uint16) *uint16 { return &v }

func fullRecord(domain, subdomain string) svcbscan.Record {
	return svcbscan.Record{
		Domain:         domain,
		Subdomain:      subdomain,
		FullDomain:     subdomain + "." + domain,
		RecordType:     svcbscan.RecordTypeHTTPS,
		HasHTTPSRecord: true,
		Priority:       u16ptr(1),
		Target:         strptr("."),
		ALPNProtocols:  strptr("h2,h3"),
		HasHTTP3:       true,
		IPv4Hint:       strptr("192.0.2.1"),
		IPv6Hint:       strptr("2001:db8::1"),
		ECHConfig:      true,
	}
}

func emptyRecord(domain, subdomain string) svcbscan.Record {
	return svcbscan.Record{
		Domain:     domain,
		Subdomain:  subdomain,
		FullDomain: domain,
		RecordType: svcbscan.RecordTypeHTTPS,
	}
}

func TestComplianceScore(t *testing.T) {
	t.Run("no record scores zero", func(t *testing.T) {
		require.Equal(t, 0, ComplianceScore(emptyRecord("a.com", "root")))
	})

	t.Run("record alone scores 40", func(t *testing.T) {
		rec := svcbscan.Record{HasHTTPSRecord: true}
		require.Equal(t, 40, ComplianceScore(rec))
	})

	t.Run("all features score 100", func(t *testing.T) {
		require.Equal(t, 100, ComplianceScore(fullRecord("a.com", "root")))
	})

	t.Run("hints count once", func(t *testing.T) {
		rec := svcbscan.Record{HasHTTPSRecord: true, IPv4Hint: strptr("192.0.2.1")}
		require.Equal(t, 55, ComplianceScore(rec))
		rec.IPv6Hint = strptr("2001:db8::1")
		require.Equal(t, 55, ComplianceScore(rec))
	})
}

func TestCompute(t *testing.T) {
	records := []svcbscan.Record{
		fullRecord("alpha.com", svcbscan.SubdomainRoot),
		emptyRecord("alpha.com", svcbscan.SubdomainWWW),
		fullRecord("beta.org", svcbscan.SubdomainRoot),
		emptyRecord("gamma.net", svcbscan.SubdomainRoot),
	}

	m := Compute(records)
	require.Equal(t, 4, m.TotalQueries)
	require.Equal(t, 3, m.UniqueDomains)
	require.Equal(t, 50.0, m.AdoptionRate)
	require.InDelta(t, 66.67, m.AdoptionRateRoot, 0.001)
	require.Equal(t, 0.0, m.AdoptionRateWWW)

	require.Equal(t, 2, m.Features.WithRecord)
	require.Equal(t, 2, m.Features.HTTP3.Count)
	require.Equal(t, 100.0, m.Features.HTTP3.Percentage)
	require.Equal(t, 2, m.Features.ECH.Count)
	require.Equal(t, 0, m.Features.CustomPort.Count)
	require.Equal(t, 2, m.Features.IPv4Hints.Count)
	require.Equal(t, 2, m.Features.IPv6Hints.Count)
	require.Equal(t, 2, m.Features.ALPN.Count)

	// Two records at 100 and two recordless zeros average to 50.
	require.Equal(t, 50.0, m.AverageScore)
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil)
	require.Equal(t, 0, m.TotalQueries)
	require.Equal(t, 0.0, m.AdoptionRate)
	require.Equal(t, 0.0, m.AverageScore)
}

func TestALPNDistribution(t *testing.T) {
	records := []svcbscan.Record{
		{ALPNProtocols: strptr("h2,h3")},
		{ALPNProtocols: strptr("h3")},
		{ALPNProtocols: strptr(" h2 , http/1.1 ")},
		{},
	}
	dist := ALPNDistribution(records)
	require.Equal(t, map[string]int{"h2": 2, "h3": 2, "http/1.1": 1}, dist)
}

func TestPriorityDistribution(t *testing.T) {
	records := []svcbscan.Record{
		{HasHTTPSRecord: true, Priority: u16ptr(1)},
		{HasHTTPSRecord: true, Priority: u16ptr(1)},
		{HasHTTPSRecord: true, Priority: u16ptr(10)},
		{Priority: u16ptr(3)}, // no record: not counted
	}
	dist := PriorityDistribution(records)
	require.Equal(t, map[string]int{"1": 2, "10": 1}, dist)
}

func TestTopPerformers(t *testing.T) {
	records := []svcbscan.Record{
		fullRecord("best.com", svcbscan.SubdomainRoot),
		fullRecord("best.com", svcbscan.SubdomainWWW),
		fullRecord("tied-a.com", svcbscan.SubdomainRoot),
		emptyRecord("tied-a.com", svcbscan.SubdomainWWW),
		fullRecord("tied-b.com", svcbscan.SubdomainRoot),
		emptyRecord("tied-b.com", svcbscan.SubdomainWWW),
		emptyRecord("worst.com", svcbscan.SubdomainRoot),
	}

	top := TopPerformers(records, 3)
	require.Len(t, top, 3)
	require.Equal(t, Performer{Domain: "best.com", Score: 100}, top[0])

	// Equal scores order alphabetically.
	require.Equal(t, Performer{Domain: "tied-a.com", Score: 50}, top[1])
	require.Equal(t, Performer{Domain: "tied-b.com", Score: 50}, top[2])
}

func TestErrorStatistics(t *testing.T) {
	records := []svcbscan.Record{
		{QueryError: strptr("NXDOMAIN")},
		{QueryError: strptr("NXDOMAIN")},
		{QueryError: strptr("Timeout")},
		{},
	}
	stats := ErrorStatistics(records)
	require.Equal(t, map[string]int{"NXDOMAIN": 2, "Timeout": 1}, stats)
}
