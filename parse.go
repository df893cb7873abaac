// SPDX-License-Identifier: GPL-3.0-or-later

package svcbscan

import (
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Fragment is the parser's view of the authoritative HTTPS record in a
// set of answers. The caller merges it into a [Record] because domain,
// subdomain, and full domain are query context, not answer content.
//
// The zero value is the empty fragment returned for empty input.
type Fragment struct {
	// HasRecord indicates that at least one HTTPS record was present.
	HasRecord bool

	// Priority and Target describe the selected record.
	Priority *uint16
	Target   *string

	// ALPNProtocols, HasHTTP3, Port, IPv4Hint, IPv6Hint, and ECHConfig
	// carry the decoded service parameters as described by [Record].
	ALPNProtocols *string
	HasHTTP3      bool
	Port          *uint16
	IPv4Hint      *string
	IPv6Hint      *string
	ECHConfig     bool
}

// SVCBFragment is the parser's view of the authoritative generic SVCB
// record. SVCB parameters are captured as raw presentation strings and
// not decoded further.
type SVCBFragment struct {
	HasRecord bool
	Priority  *uint16
	Target    *string
	Params    map[dns.SVCBKey]string
}

// ParseHTTPSAnswers decodes a set of raw HTTPS answers into a [Fragment].
//
// Among the supplied records, the authoritative one is the record with the
// numerically smallest priority (RFC 9460: lower number, higher precedence).
// Ties keep the first record encountered; if the transport does not return
// answers in a stable order this is a known non-determinism source.
//
// Malformed service parameters never cause an error: every decoder logs a
// warning and degrades to an empty value, so that one bad field does not
// discard an otherwise usable record. Non-HTTPS RRs and unrecognized
// parameter keys are ignored. Empty input returns the zero [Fragment].
func ParseHTTPSAnswers(rrs []dns.RR) Fragment {
	// 1. select the record with the smallest priority, first wins on ties
	var selected *dns.HTTPS
	for _, rr := range rrs {
		https, ok := rr.(*dns.HTTPS)
		if !ok {
			continue
		}
		if selected == nil || https.Priority < selected.Priority {
			selected = https
		}
	}
	if selected == nil {
		return Fragment{}
	}

	// 2. capture priority and target
	priority := selected.Priority
	target := selected.Target
	frag := Fragment{
		HasRecord: true,
		Priority:  &priority,
		Target:    &target,
	}

	// 3. decode the well-known service parameters, one decoder per key
	for _, kv := range selected.Value {
		switch kv.Key() {
		case dns.SVCB_ALPN:
			alpn := decodeALPN(kv)
			if len(alpn) > 0 {
				joined := strings.Join(alpn, ",")
				frag.ALPNProtocols = &joined
				frag.HasHTTP3 = containsToken(alpn, "h3")
			}
		case dns.SVCB_PORT:
			frag.Port = decodePort(kv)
		case dns.SVCB_IPV4HINT:
			if hint := decodeIPHint(kv); hint != "" {
				frag.IPv4Hint = &hint
			}
		case dns.SVCB_ECHCONFIG:
			// Presence only; the payload is not interpreted.
			frag.ECHConfig = true
		case dns.SVCB_IPV6HINT:
			if hint := decodeIPHint(kv); hint != "" {
				frag.IPv6Hint = &hint
			}
		}
	}
	return frag
}

// ParseSVCBAnswers decodes a set of raw SVCB answers into a [SVCBFragment].
//
// The priority selection rule is the same as for [ParseHTTPSAnswers], but
// service parameters are only captured as raw key to presentation-value
// pairs: generic SVCB records are not expected to carry the HTTPS
// well-known parameter semantics in this system's scope.
func ParseSVCBAnswers(rrs []dns.RR) SVCBFragment {
	var selected *dns.SVCB
	for _, rr := range rrs {
		svcb, ok := rr.(*dns.SVCB)
		if !ok {
			continue
		}
		if selected == nil || svcb.Priority < selected.Priority {
			selected = svcb
		}
	}
	if selected == nil {
		return SVCBFragment{}
	}

	priority := selected.Priority
	target := selected.Target
	frag := SVCBFragment{
		HasRecord: true,
		Priority:  &priority,
		Target:    &target,
	}
	if len(selected.Value) > 0 {
		frag.Params = make(map[dns.SVCBKey]string, len(selected.Value))
		for _, kv := range selected.Value {
			frag.Params[kv.Key()] = kv.String()
		}
	}
	return frag
}

// decodeALPN extracts the ordered protocol identifier list from an ALPN
// parameter. An unrecognized wire encoding yields an empty list.
func decodeALPN(kv dns.SVCBKeyValue) []string {
	alpn, ok := kv.(*dns.SVCBAlpn)
	if !ok {
		logrus.WithField("value", kv.String()).Warnf("svcbscan: unknown ALPN encoding %T", kv)
		return nil
	}
	out := make([]string, len(alpn.Alpn))
	copy(out, alpn.Alpn)
	return out
}

// decodePort coerces a port parameter to an integer. Unparsable values
// yield nil and a logged warning, never an error.
func decodePort(kv dns.SVCBKeyValue) *uint16 {
	if port, ok := kv.(*dns.SVCBPort); ok {
		value := port.Port
		return &value
	}
	value, err := strconv.ParseUint(strings.TrimSpace(kv.String()), 10, 16)
	if err != nil {
		logrus.WithField("value", kv.String()).Warn("svcbscan: could not parse port")
		return nil
	}
	port := uint16(value)
	return &port
}

// decodeIPHint joins the addresses of an IPv4/IPv6 hint parameter with
// commas. A scalar value of an unexpected shape is kept as a one-element
// list; an absent or empty hint yields the empty string.
func decodeIPHint(kv dns.SVCBKeyValue) string {
	switch hint := kv.(type) {
	case *dns.SVCBIPv4Hint:
		return joinIPHint(hint.Hint)
	case *dns.SVCBIPv6Hint:
		return joinIPHint(hint.Hint)
	default:
		return strings.TrimSpace(kv.String())
	}
}

func joinIPHint(ips []net.IP) string {
	parts := make([]string, 0, len(ips))
	for _, ip := range ips {
		parts = append(parts, ip.String())
	}
	return strings.Join(parts, ",")
}

// containsToken reports whether token appears in the list. Exact match
// only: "h3-29" does not match "h3".
func containsToken(list []string, token string) bool {
	for _, candidate := range list {
		if candidate == token {
			return true
		}
	}
	return false
}
