// SPDX-License-Identifier: GPL-3.0-or-later

// Package svcbscan parses and validates SVCB/HTTPS DNS records (RFC 9460).
//
// [ParseHTTPSAnswers] and [ParseSVCBAnswers] decode the answers of an
// HTTPS or SVCB query into a normalized fragment, selecting the record
// with the numerically smallest priority. [ValidateDomain] checks domain
// name syntax with an optional [TLDSet] cross-check. [*Validator] checks
// normalized [Record] values (or whole datasets) for internal consistency,
// producing [Issue] values and a [QualityReport] rather than errors.
//
// This package does not implement a DNS parser/serializer. We use and
// expose [github.com/miekg/dns] types. The intent is just that of providing
// the record normalization and data-quality algorithms; issuing queries is
// the job of the scanner built on top of this package.
//
// Everything in this package is a pure function over in-memory data: no
// blocking, no shared mutable state, safe for concurrent use.
package svcbscan
