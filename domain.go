// SPDX-License-Identifier: GPL-3.0-or-later

package svcbscan

import "strings"

// maxDomainLength is the RFC 1035 limit on a full domain name.
const maxDomainLength = 253

// TLDSet answers whether a top-level-domain label is acceptable. It is
// an injected collaborator so that tests can substitute a fixed set and
// the validator itself never performs network or disk I/O.
type TLDSet interface {
	// IsValidTLD checks a TLD label without the leading dot.
	IsValidTLD(tld string) bool
}

// AnyTLD is the permissive [TLDSet]: it accepts every label. It is also
// the degraded mode used when no authoritative TLD list is obtainable.
type AnyTLD struct{}

// IsValidTLD implements [TLDSet].
func (AnyTLD) IsValidTLD(string) bool { return true }

// ValidateDomain reports whether name is a syntactically valid domain.
//
// The name must be non-empty and at most 253 characters; one trailing dot
// (FQDN form) is stripped before further checks. Each label must be 1-63
// characters, start and end with an alphanumeric character, and contain
// only alphanumerics and hyphens.
//
// When tlds is nil the check is purely syntactic and single-label names
// are accepted. When tlds is non-nil the name must have at least two
// labels and the final label must satisfy tlds; pass [AnyTLD] to require
// two labels without an authoritative list.
func ValidateDomain(name string, tlds TLDSet) bool {
	if name == "" || len(name) > maxDomainLength {
		return false
	}
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return false
	}

	labels := strings.Split(name, ".")
	if tlds != nil && len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !validLabel(label) {
			return false
		}
	}
	if tlds != nil && !tlds.IsValidTLD(labels[len(labels)-1]) {
		return false
	}
	return true
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
		return false
	}
	for i := 0; i < len(label); i++ {
		if !isAlphanumeric(label[i]) && label[i] != '-' {
			return false
		}
	}
	return true
}

func isAlphanumeric(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
