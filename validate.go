// SPDX-License-Identifier: GPL-3.0-or-later

package svcbscan

import (
	"fmt"
	"math"
	"net"
	"strings"
)

// IssueKind is the closed set of validation issue categories.
type IssueKind string

// The validation issue kinds.
const (
	IssueMissingField        IssueKind = "MissingField"
	IssueInvalidDomain       IssueKind = "InvalidDomain"
	IssueInvalidSubdomain    IssueKind = "InvalidSubdomain"
	IssueInvalidPriority     IssueKind = "InvalidPriority"
	IssueInvalidTarget       IssueKind = "InvalidTarget"
	IssueInvalidAlpnProtocol IssueKind = "InvalidAlpnProtocol"
	IssueInvalidPort         IssueKind = "InvalidPort"
	IssueInvalidIPv4Hint     IssueKind = "InvalidIPv4Hint"
	IssueInvalidIPv6Hint     IssueKind = "InvalidIPv6Hint"
	IssueWrongType           IssueKind = "WrongType"
)

// Issue is a single validation finding. Index is the record's position
// within a dataset and is assigned by [*Validator.ValidateDataset]; it is
// zero for single-record validation.
type Issue struct {
	Index  int       `json:"record_index"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

// String returns the issue as "Kind: detail".
func (is Issue) String() string {
	return fmt.Sprintf("%s: %s", is.Kind, is.Detail)
}

// sampleLimit bounds the example lists inside a [QualityReport].
const sampleLimit = 10

// QualityReport summarizes the validation of a whole dataset.
//
// Invariant: ValidRecords + InvalidRecords == TotalRecords, and
// ValidityRate is zero when the dataset is empty.
type QualityReport struct {
	TotalRecords         int               `json:"total_records"`
	ValidRecords         int               `json:"valid_records"`
	InvalidRecords       int               `json:"invalid_records"`
	ValidityRate         float64           `json:"validity_rate"`
	InvalidRecordIndices []int             `json:"invalid_record_indices"`
	IssueCounts          map[IssueKind]int `json:"issue_counts"`
	SampleIssues         []string          `json:"sample_issues"`
}

// validALPNProtocols is the closed set of recognized ALPN tokens. Tokens
// with the "h3-" prefix are additionally accepted as future h3 drafts.
var validALPNProtocols = map[string]bool{
	"http/0.9": true,
	"http/1.0": true,
	"http/1.1": true,
	"spdy/1":   true,
	"spdy/2":   true,
	"spdy/3":   true,
	"spdy/3.1": true,
	"h2":       true,
	"h2c":      true,
	"h3":       true,
	"h3-29":    true,
	"h3-Q050":  true,
	"h3-T051":  true,
	"hq":       true,
	"hq-29":    true,
	"doq":      true,
	"doq-i00":  true,
}

// ValidALPNProtocol reports whether proto is a recognized ALPN protocol
// identifier.
func ValidALPNProtocol(proto string) bool {
	return validALPNProtocols[proto] || strings.HasPrefix(proto, "h3-")
}

// Validator checks normalized records for internal consistency. All
// findings are returned as data; no code path raises an error.
type Validator struct {
	// TLDs optionally cross-checks the TLD label of domain and target
	// fields. See [ValidateDomain] for the nil semantics.
	TLDs TLDSet
}

// requiredFields must be present in every record.
var requiredFields = []string{"domain", "subdomain", "full_domain", "has_https_record"}

// booleanFields must hold actual booleans when present.
var booleanFields = []string{"has_https_record", "has_http3", "ech_config"}

// ValidateRecord checks a single normalized [Record].
func (v *Validator) ValidateRecord(rec Record) []Issue {
	return v.ValidateFields(rec.Fields())
}

// ValidateFields checks a record represented as a generic field map, the
// shape produced by [Record.Fields] or by decoding an exported JSON row.
// The generic representation is what allows detecting records where a
// boolean column holds the wrong type, which cannot happen on the typed
// path.
func (v *Validator) ValidateFields(fields map[string]any) []Issue {
	var issues []Issue
	add := func(kind IssueKind, format string, args ...any) {
		issues = append(issues, Issue{Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	// 1. required fields
	for _, field := range requiredFields {
		if _, ok := fields[field]; !ok {
			add(IssueMissingField, "missing required field: %s", field)
		}
	}

	// 2. domain syntax
	for _, field := range []string{"domain", "full_domain"} {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		if name, ok := raw.(string); !ok || !ValidateDomain(name, v.TLDs) {
			add(IssueInvalidDomain, "invalid %s: %v", field, raw)
		}
	}

	// 3. subdomain label
	if raw, ok := fields["subdomain"]; ok {
		if sub, ok := raw.(string); !ok || (sub != SubdomainRoot && sub != SubdomainWWW) {
			add(IssueInvalidSubdomain, "invalid subdomain value: %v", raw)
		}
	}

	// 4. HTTPS record fields
	if hasRecord, _ := fields["has_https_record"].(bool); hasRecord {
		v.validateHTTPSFields(fields, add)
	}

	// 5. boolean-typed fields
	for _, field := range booleanFields {
		raw, ok := fields[field]
		if !ok || raw == nil {
			continue
		}
		if _, isBool := raw.(bool); !isBool {
			add(IssueWrongType, "field %s should be boolean, got %T", field, raw)
		}
	}

	return issues
}

func (v *Validator) validateHTTPSFields(fields map[string]any, add func(IssueKind, string, ...any)) {
	// Priority must be a present integer in [0, 65535]; a record that
	// claims to have an HTTPS record but carries no priority is invalid.
	priority, ok := fields["https_priority"]
	if n, isInt := asInteger(priority); !ok || !isInt || n < 0 || n > 65535 {
		add(IssueInvalidPriority, "invalid HTTPS priority: %v", priority)
	}

	if raw, ok := fields["https_target"]; ok && raw != nil {
		target, isString := raw.(string)
		if !isString || !ValidateDomain(strings.TrimSuffix(target, "."), v.TLDs) {
			add(IssueInvalidTarget, "invalid HTTPS target: %v", raw)
		}
	}

	if raw, ok := fields["alpn_protocols"]; ok && raw != nil {
		if list, isString := raw.(string); isString && list != "" {
			for _, proto := range strings.Split(list, ",") {
				proto = strings.TrimSpace(proto)
				if !ValidALPNProtocol(proto) {
					add(IssueInvalidAlpnProtocol, "invalid ALPN protocol: %s", proto)
				}
			}
		}
	}

	if raw, ok := fields["port"]; ok && raw != nil {
		if n, isInt := asInteger(raw); !isInt || n < 1 || n > 65535 {
			add(IssueInvalidPort, "invalid port: %v", raw)
		}
	}

	if raw, ok := fields["ipv4hint"]; ok && raw != nil {
		if !validAddressList(raw, validIPv4) {
			add(IssueInvalidIPv4Hint, "invalid IPv4 hint: %v", raw)
		}
	}
	if raw, ok := fields["ipv6hint"]; ok && raw != nil {
		if !validAddressList(raw, validIPv6) {
			add(IssueInvalidIPv6Hint, "invalid IPv6 hint: %v", raw)
		}
	}
}

// ValidateRecords runs [*Validator.ValidateRecord] over every record and
// aggregates the findings.
func (v *Validator) ValidateRecords(records []Record) QualityReport {
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Fields())
	}
	return v.ValidateDataset(rows)
}

// ValidateDataset validates every row of a dataset independently, with no
// short-circuiting, and aggregates per-kind counts and bounded samples
// into a [QualityReport].
func (v *Validator) ValidateDataset(rows []map[string]any) QualityReport {
	report := QualityReport{
		TotalRecords: len(rows),
		IssueCounts:  make(map[IssueKind]int),
	}

	for index, row := range rows {
		issues := v.ValidateFields(row)
		if len(issues) == 0 {
			continue
		}
		report.InvalidRecords++
		if len(report.InvalidRecordIndices) < sampleLimit {
			report.InvalidRecordIndices = append(report.InvalidRecordIndices, index)
		}
		for _, issue := range issues {
			issue.Index = index
			report.IssueCounts[issue.Kind]++
			if len(report.SampleIssues) < sampleLimit {
				report.SampleIssues = append(report.SampleIssues, issue.String())
			}
		}
	}

	report.ValidRecords = report.TotalRecords - report.InvalidRecords
	if report.TotalRecords > 0 {
		rate := float64(report.ValidRecords) / float64(report.TotalRecords) * 100
		report.ValidityRate = round2(rate)
	}
	return report
}

// asInteger accepts the integer shapes a field can take after JSON
// decoding or typed construction. Fractional floats and strings are not
// integers.
func asInteger(raw any) (int, bool) {
	switch value := raw.(type) {
	case int:
		return value, true
	case int64:
		return int(value), true
	case uint16:
		return int(value), true
	case float64:
		if value != math.Trunc(value) {
			return 0, false
		}
		return int(value), true
	default:
		return 0, false
	}
}

// validAddressList checks a comma-joined list of address literals; each
// element must satisfy valid. An empty string passes: absent hints were
// already filtered by the caller.
func validAddressList(raw any, valid func(string) bool) bool {
	list, ok := raw.(string)
	if !ok {
		return false
	}
	if list == "" {
		return true
	}
	for _, addr := range strings.Split(list, ",") {
		if !valid(strings.TrimSpace(addr)) {
			return false
		}
	}
	return true
}

func validIPv4(addr string) bool {
	return net.ParseIP(addr) != nil && !strings.Contains(addr, ":")
}

func validIPv6(addr string) bool {
	return net.ParseIP(addr) != nil && strings.Contains(addr, ":")
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
