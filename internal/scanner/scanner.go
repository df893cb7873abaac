//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package scanner issues SVCB/HTTPS queries for batches of domains and
// normalizes the answers through the svcbscan core. It owns everything
// the core treats as a collaborator: DNS transport, rate limiting, the
// per-run query cache, and concurrent batch orchestration.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/bassosimone/svcbscan"
)

// DefaultServers are the resolvers used when none are configured.
var DefaultServers = []string{"8.8.8.8", "1.1.1.1", "208.67.222.222"}

// Config configures a [*Scanner]. The zero value is usable: default
// resolvers, UDP transport, 5 second timeout, 10 queries per second,
// batches of 5 domains, no cache, no TLD cross-check.
type Config struct {
	// Servers lists the resolvers to try in order.
	Servers []string

	// Protocol selects the transport, see the Protocol constants.
	Protocol string

	// Timeout bounds each query.
	Timeout time.Duration

	// RateLimit is the maximum number of queries per second; zero or
	// negative means the default of 10.
	RateLimit float64

	// BatchSize is the number of domains checked concurrently.
	BatchSize int

	// TLDs cross-checks names before querying; nil skips the TLD check
	// but still requires syntactically valid multi-label names.
	TLDs svcbscan.TLDSet

	// Cache holds results for the run; nil means [NullCache].
	Cache Cache

	// Exchanger overrides the transport, mainly for tests.
	Exchanger Exchanger
}

// Scanner checks domains for RFC 9460 SVCB/HTTPS deployment.
//
// Construct with [New]. A Scanner is safe for concurrent use; duplicate
// in-flight queries for the same name collapse into one round trip.
type Scanner struct {
	batchSize int
	cache     Cache
	exchanger Exchanger
	group     singleflight.Group
	limiter   *rate.Limiter
	log       *logrus.Entry
	servers   []string
	tlds      svcbscan.TLDSet
}

// New creates a [*Scanner] from cfg, applying defaults for unset fields.
func New(cfg Config) *Scanner {
	servers := cfg.Servers
	if len(servers) == 0 {
		servers = DefaultServers
	}
	exchanger := cfg.Exchanger
	if exchanger == nil {
		exchanger = &Transport{Protocol: cfg.Protocol, Timeout: cfg.Timeout}
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NullCache{}
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 10
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Scanner{
		batchSize: batchSize,
		cache:     cache,
		exchanger: exchanger,
		limiter:   rate.NewLimiter(rate.Limit(rateLimit), 1),
		log:       logrus.WithField("component", "scanner"),
		servers:   servers,
		tlds:      cfg.TLDs,
	}
}

// Servers returns the configured resolver list.
func (s *Scanner) Servers() []string { return s.servers }

// ClearCache drops every cached result.
func (s *Scanner) ClearCache() { s.cache.Clear() }

// Close releases the cache resources.
func (s *Scanner) Close() { s.cache.Close() }

// QueryHTTPS checks the HTTPS record of subdomain.domain (or of domain
// itself when subdomain is empty).
//
// The only returned error is [ErrInvalidDomain], raised before any
// network round trip. Query failures are recorded on the returned
// record's QueryError field instead: a parse or transport failure must
// not discard an otherwise usable measurement.
func (s *Scanner) QueryHTTPS(ctx context.Context, domain, subdomain string) (svcbscan.Record, error) {
	return s.query(ctx, domain, subdomain, svcbscan.RecordTypeHTTPS)
}

// QuerySVCB checks the generic SVCB record of subdomain.domain.
func (s *Scanner) QuerySVCB(ctx context.Context, domain, subdomain string) (svcbscan.Record, error) {
	return s.query(ctx, domain, subdomain, svcbscan.RecordTypeSVCB)
}

func (s *Scanner) query(ctx context.Context, domain, subdomain, recordType string) (svcbscan.Record, error) {
	fullDomain := domain
	if subdomain != "" {
		fullDomain = subdomain + "." + domain
	}
	if !svcbscan.ValidateDomain(fullDomain, s.tlds) {
		return svcbscan.Record{}, fmt.Errorf("%w: %s", ErrInvalidDomain, fullDomain)
	}

	key := CacheKey(fullDomain, recordType)
	if rec, ok := s.cache.Get(key); ok {
		s.log.WithField("key", key).Debug("cache hit")
		return rec, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		rec := s.queryFresh(ctx, domain, subdomain, fullDomain, recordType)
		s.cache.Set(key, rec)
		return rec, nil
	})
	if err != nil {
		// Unreachable: queryFresh never fails.
		return svcbscan.Record{}, err
	}
	return value.(svcbscan.Record), nil
}

func (s *Scanner) queryFresh(ctx context.Context, domain, subdomain, fullDomain, recordType string) svcbscan.Record {
	label := subdomain
	if label == "" {
		label = svcbscan.SubdomainRoot
	}
	rec := svcbscan.Record{
		Domain:     domain,
		Subdomain:  label,
		FullDomain: fullDomain,
		RecordType: recordType,
	}

	qtype := dns.TypeHTTPS
	if recordType == svcbscan.RecordTypeSVCB {
		qtype = dns.TypeSVCB
	}

	rrs, err := s.resolve(ctx, fullDomain, qtype)
	if err != nil {
		reason := QueryErrorString(err)
		rec.QueryError = &reason
		s.log.WithFields(logrus.Fields{"name": fullDomain, "type": recordType}).
			WithError(err).Debug("query failed")
		return rec
	}

	switch recordType {
	case svcbscan.RecordTypeSVCB:
		rec.MergeSVCB(svcbscan.ParseSVCBAnswers(rrs))
		if !rec.HasSVCBRecord {
			reason := "NoAnswer"
			rec.QueryError = &reason
		}
	default:
		rec.MergeHTTPS(svcbscan.ParseHTTPSAnswers(rrs))
		if !rec.HasHTTPSRecord {
			reason := "NoAnswer"
			rec.QueryError = &reason
		}
	}
	return rec
}

// resolve performs one rate-limited lookup, failing the query over to
// the next resolver on transport errors. Semantic results (NXDOMAIN,
// empty answer) come from the first resolver that produces a valid
// response and are not retried elsewhere.
func (s *Scanner) resolve(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg, err := NewQuery(name, qtype).NewMsg()
	if err != nil {
		return nil, err
	}

	var lastErr error = ErrNoData
	for _, server := range s.servers {
		resp, err := s.exchanger.Exchange(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		parsed, err := ParseResponse(msg, resp)
		if err != nil {
			if errors.Is(err, ErrNoName) || errors.Is(err, ErrNoData) {
				return nil, err
			}
			lastErr = err
			continue
		}
		return parsed.ValidRRs, nil
	}
	return nil, lastErr
}

// CheckDomain checks the root and www variants of domain for both HTTPS
// and SVCB records, returning four records. A name rejected at the query
// boundary yields a record whose QueryError carries the rejection.
func (s *Scanner) CheckDomain(ctx context.Context, domain string) []svcbscan.Record {
	type task struct {
		subdomain  string
		recordType string
	}
	tasks := []task{
		{"", svcbscan.RecordTypeHTTPS},
		{svcbscan.SubdomainWWW, svcbscan.RecordTypeHTTPS},
		{"", svcbscan.RecordTypeSVCB},
		{svcbscan.SubdomainWWW, svcbscan.RecordTypeSVCB},
	}

	records := make([]svcbscan.Record, len(tasks))
	var wg sync.WaitGroup
	for index, tk := range tasks {
		wg.Add(1)
		go func(index int, tk task) {
			defer wg.Done()
			var rec svcbscan.Record
			var err error
			if tk.recordType == svcbscan.RecordTypeHTTPS {
				rec, err = s.QueryHTTPS(ctx, domain, tk.subdomain)
			} else {
				rec, err = s.QuerySVCB(ctx, domain, tk.subdomain)
			}
			if err != nil {
				rec = errorRecord(domain, tk.subdomain, tk.recordType, err)
			}
			records[index] = rec
		}(index, tk)
	}
	wg.Wait()
	return records
}

func errorRecord(domain, subdomain, recordType string, err error) svcbscan.Record {
	label := subdomain
	fullDomain := domain
	if subdomain == "" {
		label = svcbscan.SubdomainRoot
	} else {
		fullDomain = subdomain + "." + domain
	}
	reason := err.Error()
	return svcbscan.Record{
		Domain:     domain,
		Subdomain:  label,
		FullDomain: fullDomain,
		RecordType: recordType,
		QueryError: &reason,
	}
}

// CheckDomains checks every domain, at most BatchSize domains at a time,
// invoking progress after each completed domain. The returned records
// keep the input domain order, four records per domain.
func (s *Scanner) CheckDomains(ctx context.Context, domains []string, progress func(domain string)) []svcbscan.Record {
	perDomain := make([][]svcbscan.Record, len(domains))
	sem := make(chan struct{}, s.batchSize)
	var wg sync.WaitGroup

	for index, domain := range domains {
		wg.Add(1)
		go func(index int, domain string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			perDomain[index] = s.CheckDomain(ctx, domain)
			if progress != nil {
				progress(domain)
			}
		}(index, domain)
	}
	wg.Wait()

	records := make([]svcbscan.Record, 0, 4*len(domains))
	for _, recs := range perDomain {
		records = append(records, recs...)
	}
	return records
}
