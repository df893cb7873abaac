// SPDX-License-Identifier: GPL-3.0-or-later

package svcbscan

// SubdomainRoot and SubdomainWWW are the only subdomain labels a
// normalized record may carry.
const (
	SubdomainRoot = "root"
	SubdomainWWW  = "www"
)

// Record types assigned by the scanner.
const (
	RecordTypeHTTPS = "HTTPS"
	RecordTypeSVCB  = "SVCB"
)

// Record is the normalized result of a single SVCB/HTTPS query.
//
// Domain, Subdomain, and FullDomain are caller-supplied context; the
// remaining fields come from merging a parsed fragment. Pointer fields
// are nil when the corresponding service parameter was absent. A Record
// is built once per query and never mutated afterwards.
//
// Invariant: when HasHTTPSRecord is true, Priority and Target are non-nil.
type Record struct {
	// ScriptVersion, Timestamp, and DNSServer are run metadata columns
	// carried into the CSV export.
	ScriptVersion string `json:"script_version,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	DNSServer     string `json:"dns_server,omitempty"`

	// Domain is the base domain that was checked.
	Domain string `json:"domain"`

	// Subdomain is either [SubdomainRoot] or [SubdomainWWW].
	Subdomain string `json:"subdomain"`

	// FullDomain is the name actually queried.
	FullDomain string `json:"full_domain"`

	// RecordType is [RecordTypeHTTPS] or [RecordTypeSVCB].
	RecordType string `json:"record_type,omitempty"`

	// HasHTTPSRecord indicates whether an HTTPS record was found.
	HasHTTPSRecord bool `json:"has_https_record"`

	// HasSVCBRecord indicates whether an SVCB record was found.
	HasSVCBRecord bool `json:"has_svcb_record,omitempty"`

	// Priority is the selected record's SvcPriority.
	Priority *uint16 `json:"https_priority,omitempty"`

	// Target is the selected record's target name, possibly ending
	// with the terminating dot.
	Target *string `json:"https_target,omitempty"`

	// ALPNProtocols joins the ALPN identifiers with commas, preserving
	// the order they appear on the wire.
	ALPNProtocols *string `json:"alpn_protocols,omitempty"`

	// HasHTTP3 is true iff the literal "h3" token appears in the ALPN
	// list. Draft tokens such as "h3-29" do not count.
	HasHTTP3 bool `json:"has_http3"`

	// Port is the port service parameter, when present.
	Port *uint16 `json:"port,omitempty"`

	// IPv4Hint and IPv6Hint join the address hints with commas.
	IPv4Hint *string `json:"ipv4hint,omitempty"`
	IPv6Hint *string `json:"ipv6hint,omitempty"`

	// ECHConfig records the presence of the ECH parameter. The ECH
	// payload itself is not interpreted.
	ECHConfig bool `json:"ech_config"`

	// QueryError is nil on success, otherwise one of "NXDOMAIN",
	// "NoAnswer", "Timeout", or the literal error message.
	QueryError *string `json:"query_error,omitempty"`

	// SVCBPriority, SVCBTarget, and SVCBParams carry the generic-purpose
	// SVCB results. SVCB parameters keep their raw presentation values.
	SVCBPriority *uint16           `json:"svcb_priority,omitempty"`
	SVCBTarget   *string           `json:"svcb_target,omitempty"`
	SVCBParams   map[string]string `json:"svcb_params,omitempty"`
}

// MergeHTTPS copies the parsed HTTPS fragment into the record.
func (r *Record) MergeHTTPS(frag Fragment) {
	r.HasHTTPSRecord = frag.HasRecord
	r.Priority = frag.Priority
	r.Target = frag.Target
	r.ALPNProtocols = frag.ALPNProtocols
	r.HasHTTP3 = frag.HasHTTP3
	r.Port = frag.Port
	r.IPv4Hint = frag.IPv4Hint
	r.IPv6Hint = frag.IPv6Hint
	r.ECHConfig = frag.ECHConfig
}

// MergeSVCB copies the parsed SVCB fragment into the record.
func (r *Record) MergeSVCB(frag SVCBFragment) {
	r.HasSVCBRecord = frag.HasRecord
	r.SVCBPriority = frag.Priority
	r.SVCBTarget = frag.Target
	if len(frag.Params) > 0 {
		r.SVCBParams = make(map[string]string, len(frag.Params))
		for key, value := range frag.Params {
			r.SVCBParams[key.String()] = value
		}
	}
}

// Fields returns the record as a generic field map suitable for
// [*Validator.ValidateFields]. String context fields are present only
// when non-empty and nullable fields only when non-nil, so that a
// partially constructed record reports the corresponding MissingField
// or InvalidPriority issues.
func (r Record) Fields() map[string]any {
	fields := map[string]any{
		"has_https_record": r.HasHTTPSRecord,
		"has_http3":        r.HasHTTP3,
		"ech_config":       r.ECHConfig,
	}
	if r.Domain != "" {
		fields["domain"] = r.Domain
	}
	if r.Subdomain != "" {
		fields["subdomain"] = r.Subdomain
	}
	if r.FullDomain != "" {
		fields["full_domain"] = r.FullDomain
	}
	if r.Priority != nil {
		fields["https_priority"] = int(*r.Priority)
	}
	if r.Target != nil {
		fields["https_target"] = *r.Target
	}
	if r.ALPNProtocols != nil {
		fields["alpn_protocols"] = *r.ALPNProtocols
	}
	if r.Port != nil {
		fields["port"] = int(*r.Port)
	}
	if r.IPv4Hint != nil {
		fields["ipv4hint"] = *r.IPv4Hint
	}
	if r.IPv6Hint != nil {
		fields["ipv6hint"] = *r.IPv6Hint
	}
	if r.QueryError != nil {
		fields["query_error"] = *r.QueryError
	}
	return fields
}
