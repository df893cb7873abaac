//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/bassosimone/dnscodec/blob/main/query.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/query.go
//

package scanner

import (
	"errors"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

const (
	// queryMaxResponseSizeUDP is the maximum response size when using UDP
	// and is consistent with what the standard library uses.
	queryMaxResponseSizeUDP = 1232

	// queryMaxResponseSizeTCP is the maximum response size when using a
	// stream transport (TCP, DoT, DoQ).
	queryMaxResponseSizeTCP = 4096
)

// ErrInvalidDomain rejects an obviously malformed name at the
// query-construction boundary, before spending a network round trip.
var ErrInvalidDomain = errors.New("invalid domain for query")

// Query is a DNS query for a single SVCB/HTTPS lookup.
//
// Construct using [NewQuery] or set the MANDATORY fields.
type Query struct {
	// ID is the OPTIONAL query ID.
	ID uint16

	// MaxSize is the OPTIONAL maximum response size
	// to include in the query using EDNS(0).
	MaxSize uint16

	// Name is the MANDATORY domain name to query.
	Name string

	// Type is the query type, typically [dns.TypeHTTPS] or [dns.TypeSVCB].
	Type uint16
}

// NewQuery constructs a new [*Query] with safe defaults: a randomized ID,
// recursion desired, and the UDP EDNS(0) maximum response size.
func NewQuery(name string, qtype uint16) *Query {
	return &Query{
		ID:      dns.Id(),
		MaxSize: queryMaxResponseSizeUDP,
		Name:    name,
		Type:    qtype,
	}
}

// NewMsg creates a new [*dns.Msg] from the [*Query]. A name that cannot
// be IDNA encoded yields [ErrInvalidDomain].
func (q *Query) NewMsg() (*dns.Msg, error) {
	// IDNA encode the domain name.
	punyName, err := idna.Lookup.ToASCII(q.Name)
	if err != nil {
		return nil, errors.Join(ErrInvalidDomain, err)
	}

	// Ensure the domain name is fully qualified.
	if !dns.IsFqdn(punyName) {
		punyName = dns.Fqdn(punyName)
	}

	// Create the query message.
	question := dns.Question{
		Name:   punyName,
		Qtype:  q.Type,
		Qclass: dns.ClassINET,
	}
	msg := new(dns.Msg)
	msg.Id = q.ID
	msg.RecursionDesired = true
	msg.Question = make([]dns.Question, 1)
	msg.Question[0] = question

	// Set the EDNS(0) query options.
	msg.SetEdns0(q.MaxSize, false)
	return msg, nil
}
