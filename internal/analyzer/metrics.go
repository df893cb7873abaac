//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package analyzer computes adoption metrics over scan results and
// writes the CSV, JSON, and Markdown reports.
package analyzer

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bassosimone/svcbscan"
)

// Compliance score weights. A record earns points for having an HTTPS
// record at all, then for each modern capability it advertises.
const (
	scoreRecord = 40
	scoreHTTP3  = 20
	scoreECH    = 15
	scoreHints  = 15
	scoreALPN   = 10
)

// Metrics summarizes HTTPS record adoption across a result set.
type Metrics struct {
	TotalQueries  int `json:"total_queries"`
	UniqueDomains int `json:"unique_domains"`

	// AdoptionRate is the percentage of queries that returned an HTTPS
	// record, overall and broken down by subdomain.
	AdoptionRate     float64 `json:"adoption_rate"`
	AdoptionRateRoot float64 `json:"adoption_rate_root"`
	AdoptionRateWWW  float64 `json:"adoption_rate_www"`

	Features FeatureDistribution `json:"features"`

	// AverageScore is the mean compliance score over all records,
	// counting records without an HTTPS record as zero.
	AverageScore float64 `json:"average_compliance_score"`
}

// FeatureDistribution counts capability usage among records that have
// an HTTPS record, with percentages relative to that population.
type FeatureDistribution struct {
	WithRecord int `json:"with_record"`

	HTTP3      Feature `json:"http3"`
	ECH        Feature `json:"ech"`
	CustomPort Feature `json:"custom_port"`
	IPv4Hints  Feature `json:"ipv4_hints"`
	IPv6Hints  Feature `json:"ipv6_hints"`
	ALPN       Feature `json:"alpn"`
}

// Feature is a count plus its percentage of the record-bearing
// population.
type Feature struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Compute derives [Metrics] from a result set. Records are counted as
// queries regardless of errors; capability percentages are relative to
// the records that actually carry an HTTPS record.
func Compute(records []svcbscan.Record) Metrics {
	m := Metrics{TotalQueries: len(records)}
	if len(records) == 0 {
		return m
	}

	domains := make(map[string]bool)
	var withRecord, rootTotal, rootWith, wwwTotal, wwwWith int
	var scoreSum int

	for _, rec := range records {
		domains[rec.Domain] = true
		switch rec.Subdomain {
		case svcbscan.SubdomainRoot:
			rootTotal++
			if rec.HasHTTPSRecord {
				rootWith++
			}
		case svcbscan.SubdomainWWW:
			wwwTotal++
			if rec.HasHTTPSRecord {
				wwwWith++
			}
		}
		if !rec.HasHTTPSRecord {
			continue
		}
		withRecord++
		scoreSum += ComplianceScore(rec)
		if rec.HasHTTP3 {
			m.Features.HTTP3.Count++
		}
		if rec.ECHConfig {
			m.Features.ECH.Count++
		}
		if rec.Port != nil {
			m.Features.CustomPort.Count++
		}
		if rec.IPv4Hint != nil {
			m.Features.IPv4Hints.Count++
		}
		if rec.IPv6Hint != nil {
			m.Features.IPv6Hints.Count++
		}
		if rec.ALPNProtocols != nil && *rec.ALPNProtocols != "" {
			m.Features.ALPN.Count++
		}
	}

	m.UniqueDomains = len(domains)
	m.AdoptionRate = percentage(withRecord, len(records))
	m.AdoptionRateRoot = percentage(rootWith, rootTotal)
	m.AdoptionRateWWW = percentage(wwwWith, wwwTotal)

	m.Features.WithRecord = withRecord
	m.Features.HTTP3.Percentage = percentage(m.Features.HTTP3.Count, withRecord)
	m.Features.ECH.Percentage = percentage(m.Features.ECH.Count, withRecord)
	m.Features.CustomPort.Percentage = percentage(m.Features.CustomPort.Count, withRecord)
	m.Features.IPv4Hints.Percentage = percentage(m.Features.IPv4Hints.Count, withRecord)
	m.Features.IPv6Hints.Percentage = percentage(m.Features.IPv6Hints.Count, withRecord)
	m.Features.ALPN.Percentage = percentage(m.Features.ALPN.Count, withRecord)

	// Records without an HTTPS record score zero and still count
	// toward the mean.
	if len(records) > 0 {
		m.AverageScore = round2(float64(scoreSum) / float64(len(records)))
	}
	return m
}

// ComplianceScore scores a single record out of 100.
func ComplianceScore(rec svcbscan.Record) int {
	if !rec.HasHTTPSRecord {
		return 0
	}
	score := scoreRecord
	if rec.HasHTTP3 {
		score += scoreHTTP3
	}
	if rec.ECHConfig {
		score += scoreECH
	}
	if rec.IPv4Hint != nil || rec.IPv6Hint != nil {
		score += scoreHints
	}
	if rec.ALPNProtocols != nil && *rec.ALPNProtocols != "" {
		score += scoreALPN
	}
	return score
}

// ALPNDistribution counts individual ALPN protocol identifiers across
// all records carrying an ALPN list.
func ALPNDistribution(records []svcbscan.Record) map[string]int {
	dist := make(map[string]int)
	for _, rec := range records {
		if rec.ALPNProtocols == nil {
			continue
		}
		for _, proto := range strings.Split(*rec.ALPNProtocols, ",") {
			proto = strings.TrimSpace(proto)
			if proto != "" {
				dist[proto]++
			}
		}
	}
	return dist
}

// PriorityDistribution counts SvcPriority values across records that
// have an HTTPS record. Keys are decimal strings so the distribution
// serializes as a JSON object.
func PriorityDistribution(records []svcbscan.Record) map[string]int {
	dist := make(map[string]int)
	for _, rec := range records {
		if rec.HasHTTPSRecord && rec.Priority != nil {
			dist[strconv.Itoa(int(*rec.Priority))]++
		}
	}
	return dist
}

// Performer is a per-domain mean compliance score.
type Performer struct {
	Domain string  `json:"domain"`
	Score  float64 `json:"score"`
}

// TopPerformers returns up to n domains ranked by mean compliance
// score across their records, highest first. Ties break by domain name
// so the order is deterministic.
func TopPerformers(records []svcbscan.Record, n int) []Performer {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, rec := range records {
		sums[rec.Domain] += ComplianceScore(rec)
		counts[rec.Domain]++
	}

	performers := make([]Performer, 0, len(sums))
	for domain, sum := range sums {
		performers = append(performers, Performer{
			Domain: domain,
			Score:  round2(float64(sum) / float64(counts[domain])),
		})
	}
	sort.Slice(performers, func(i, j int) bool {
		if performers[i].Score != performers[j].Score {
			return performers[i].Score > performers[j].Score
		}
		return performers[i].Domain < performers[j].Domain
	})
	if n > 0 && len(performers) > n {
		performers = performers[:n]
	}
	return performers
}

// ErrorStatistics counts query errors by kind.
func ErrorStatistics(records []svcbscan.Record) map[string]int {
	stats := make(map[string]int)
	for _, rec := range records {
		if rec.QueryError != nil {
			stats[*rec.QueryError]++
		}
	}
	return stats
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
