// SPDX-License-Identifier: GPL-3.0-or-later

package svcbscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedTLDs is a test TLDSet with a known closed set of labels.
type fixedTLDs map[string]bool

func (f fixedTLDs) IsValidTLD(tld string) bool { return f[strings.ToLower(tld)] }

func TestValidateDomainSyntax(t *testing.T) {
	cases := []struct {
		name   string
		domain string
		expect bool
	}{{
		name:   "simple domain",
		domain: "example.com",
		expect: true,
	}, {
		name:   "subdomain",
		domain: "www.example.com",
		expect: true,
	}, {
		name:   "hyphenated labels",
		domain: "my-site.example-domain.com",
		expect: true,
	}, {
		name:   "digits",
		domain: "123.example.com",
		expect: true,
	}, {
		name:   "single label accepted without TLD set",
		domain: "localhost",
		expect: true,
	}, {
		name:   "trailing dot stripped",
		domain: "example.com.",
		expect: true,
	}, {
		name:   "empty",
		domain: "",
		expect: false,
	}, {
		name:   "lone dot",
		domain: ".",
		expect: false,
	}, {
		name:   "two trailing dots",
		domain: "example.com..",
		expect: false,
	}, {
		name:   "empty label",
		domain: "example..com",
		expect: false,
	}, {
		name:   "leading hyphen",
		domain: "-example.com",
		expect: false,
	}, {
		name:   "trailing hyphen",
		domain: "example-.com",
		expect: false,
	}, {
		name:   "underscore",
		domain: "foo_bar.example.com",
		expect: false,
	}, {
		name:   "space",
		domain: "foo bar.example.com",
		expect: false,
	}, {
		name:   "label too long",
		domain: strings.Repeat("a", 64) + ".com",
		expect: false,
	}, {
		name:   "label at limit",
		domain: strings.Repeat("a", 63) + ".com",
		expect: true,
	}, {
		name:   "name too long",
		domain: strings.Repeat("a.", 127) + "com",
		expect: false,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, ValidateDomain(tc.domain, nil))
		})
	}
}

func TestValidateDomainWithTLDSet(t *testing.T) {
	tlds := fixedTLDs{"com": true, "org": true}

	cases := []struct {
		name   string
		domain string
		expect bool
	}{{
		name:   "known TLD",
		domain: "example.com",
		expect: true,
	}, {
		name:   "unknown TLD",
		domain: "example.notatld",
		expect: false,
	}, {
		name:   "single label rejected",
		domain: "localhost",
		expect: false,
	}, {
		name:   "uppercase TLD",
		domain: "example.COM",
		expect: true,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, ValidateDomain(tc.domain, tlds))
		})
	}
}

func TestValidateDomainAnyTLD(t *testing.T) {
	require.True(t, ValidateDomain("example.whatever", AnyTLD{}))
	require.False(t, ValidateDomain("localhost", AnyTLD{}))
}
