//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package analyzer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bassosimone/svcbscan"
	"github.com/sirupsen/logrus"
)

// Reporter writes scan reports into an output directory, which is
// created on demand.
type Reporter struct {
	// OutputDir is the report directory; empty means "results".
	OutputDir string
}

// Timestamp formats t the way report filenames expect.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02_15-04-05")
}

// csvColumns is the fixed export column order.
var csvColumns = []string{
	"script_version",
	"timestamp",
	"dns_server",
	"domain",
	"subdomain",
	"full_domain",
	"has_https_record",
	"https_priority",
	"https_target",
	"alpn_protocols",
	"has_http3",
	"port",
	"ipv4hint",
	"ipv6hint",
	"ech_config",
	"query_error",
}

func (r *Reporter) outputDir() string {
	if r.OutputDir != "" {
		return r.OutputDir
	}
	return "results"
}

func (r *Reporter) preparePath(name string) (string, error) {
	dir := r.outputDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create output directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// WriteCSV writes the per-record compliance CSV and returns its path.
func (r *Reporter) WriteCSV(records []svcbscan.Record, timestamp string) (string, error) {
	path, err := r.preparePath(fmt.Sprintf("rfc9460_compliance_%s.csv", timestamp))
	if err != nil {
		return "", err
	}
	fp, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer fp.Close()

	w := csv.NewWriter(fp)
	if err := w.Write(csvColumns); err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := w.Write(csvRow(rec)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	logrus.WithField("path", path).Info("CSV report saved")
	return path, nil
}

func csvRow(rec svcbscan.Record) []string {
	return []string{
		rec.ScriptVersion,
		rec.Timestamp,
		rec.DNSServer,
		rec.Domain,
		rec.Subdomain,
		rec.FullDomain,
		strconv.FormatBool(rec.HasHTTPSRecord),
		uint16String(rec.Priority),
		stringOrEmpty(rec.Target),
		stringOrEmpty(rec.ALPNProtocols),
		strconv.FormatBool(rec.HasHTTP3),
		uint16String(rec.Port),
		stringOrEmpty(rec.IPv4Hint),
		stringOrEmpty(rec.IPv6Hint),
		strconv.FormatBool(rec.ECHConfig),
		stringOrEmpty(rec.QueryError),
	}
}

func uint16String(v *uint16) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(int(*v))
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// analysisReport is the JSON report layout.
type analysisReport struct {
	Metadata      reportMetadata `json:"metadata"`
	Metrics       Metrics        `json:"metrics"`
	Distributions distributions  `json:"distributions"`
	TopPerformers []Performer    `json:"top_performers"`
	ErrorStats    map[string]int `json:"error_statistics"`
}

type reportMetadata struct {
	Version      string `json:"version"`
	ScanDate     string `json:"scan_date"`
	TotalRecords int    `json:"total_records"`
}

type distributions struct {
	ALPNProtocols map[string]int `json:"alpn_protocols"`
	Priorities    map[string]int `json:"priorities"`
}

// WriteJSON writes the aggregated analysis report and returns its path.
func (r *Reporter) WriteJSON(records []svcbscan.Record, version, timestamp string) (string, error) {
	path, err := r.preparePath(fmt.Sprintf("rfc9460_analysis_%s.json", timestamp))
	if err != nil {
		return "", err
	}

	report := analysisReport{
		Metadata: reportMetadata{
			Version:      version,
			ScanDate:     time.Now().Format(time.RFC3339),
			TotalRecords: len(records),
		},
		Metrics: Compute(records),
		Distributions: distributions{
			ALPNProtocols: ALPNDistribution(records),
			Priorities:    PriorityDistribution(records),
		},
		TopPerformers: TopPerformers(records, 10),
		ErrorStats:    ErrorStatistics(records),
	}

	fp, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer fp.Close()

	encoder := json.NewEncoder(fp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", err
	}

	logrus.WithField("path", path).Info("JSON report saved")
	return path, nil
}

// WriteMarkdown writes the human-readable report and returns its path.
func (r *Reporter) WriteMarkdown(records []svcbscan.Record, timestamp string) (string, error) {
	path, err := r.preparePath(fmt.Sprintf("rfc9460_report_%s.md", timestamp))
	if err != nil {
		return "", err
	}

	metrics := Compute(records)
	performers := TopPerformers(records, 10)

	fp, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer fp.Close()

	fmt.Fprintf(fp, "# RFC 9460 Compliance Report\n\n")
	fmt.Fprintf(fp, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(fp, "## Summary\n\n")
	fmt.Fprintf(fp, "- **Total Queries**: %d\n", metrics.TotalQueries)
	fmt.Fprintf(fp, "- **Unique Domains**: %d\n", metrics.UniqueDomains)
	fmt.Fprintf(fp, "- **Overall Adoption Rate**: %.2f%%\n", metrics.AdoptionRate)
	fmt.Fprintf(fp, "- **Average Compliance Score**: %.2f/100\n\n", metrics.AverageScore)
	fmt.Fprintf(fp, "## Adoption Metrics\n\n")
	fmt.Fprintf(fp, "| Metric | Percentage |\n")
	fmt.Fprintf(fp, "|--------|------------|\n")
	fmt.Fprintf(fp, "| Overall HTTPS Records | %.2f%% |\n", metrics.AdoptionRate)
	fmt.Fprintf(fp, "| Root Domain Adoption | %.2f%% |\n", metrics.AdoptionRateRoot)
	fmt.Fprintf(fp, "| WWW Subdomain Adoption | %.2f%% |\n\n", metrics.AdoptionRateWWW)
	fmt.Fprintf(fp, "## Feature Distribution\n\n")
	fmt.Fprintf(fp, "| Feature | Count | Percentage |\n")
	fmt.Fprintf(fp, "|---------|-------|------------|\n")
	fmt.Fprintf(fp, "| HTTP/3 Support | %d | %.2f%% |\n", metrics.Features.HTTP3.Count, metrics.Features.HTTP3.Percentage)
	fmt.Fprintf(fp, "| ECH Configuration | %d | %.2f%% |\n", metrics.Features.ECH.Count, metrics.Features.ECH.Percentage)
	fmt.Fprintf(fp, "| Custom Port | %d | %.2f%% |\n", metrics.Features.CustomPort.Count, metrics.Features.CustomPort.Percentage)
	fmt.Fprintf(fp, "| IPv4 Hints | %d | %.2f%% |\n", metrics.Features.IPv4Hints.Count, metrics.Features.IPv4Hints.Percentage)
	fmt.Fprintf(fp, "| IPv6 Hints | %d | %.2f%% |\n\n", metrics.Features.IPv6Hints.Count, metrics.Features.IPv6Hints.Percentage)
	fmt.Fprintf(fp, "## Top Performers\n\n")
	fmt.Fprintf(fp, "| Rank | Domain | Compliance Score |\n")
	fmt.Fprintf(fp, "|------|--------|------------------|\n")
	for i, p := range performers {
		fmt.Fprintf(fp, "| %d | %s | %.1f/100 |\n", i+1, p.Domain, p.Score)
	}
	fmt.Fprintf(fp, "\n---\n*Report generated by svcbscan*\n")

	logrus.WithField("path", path).Info("Markdown report saved")
	return path, nil
}

// RenderSummary prints the console summary table to w.
func RenderSummary(w io.Writer, records []svcbscan.Record) {
	metrics := Compute(records)

	var rootTotal, rootWith, wwwTotal, wwwWith int
	var rootH3, wwwH3, rootECH, wwwECH int
	var rootPort, wwwPort, rootV4, wwwV4, rootV6, wwwV6 int
	for _, rec := range records {
		root := rec.Subdomain == svcbscan.SubdomainRoot
		if root {
			rootTotal++
		} else {
			wwwTotal++
		}
		if !rec.HasHTTPSRecord {
			continue
		}
		count := func(cond bool, rootCount, wwwCount *int) {
			if !cond {
				return
			}
			if root {
				*rootCount++
			} else {
				*wwwCount++
			}
		}
		count(true, &rootWith, &wwwWith)
		count(rec.HasHTTP3, &rootH3, &wwwH3)
		count(rec.ECHConfig, &rootECH, &wwwECH)
		count(rec.Port != nil, &rootPort, &wwwPort)
		count(rec.IPv4Hint != nil, &rootV4, &wwwV4)
		count(rec.IPv6Hint != nil, &rootV6, &wwwV6)
	}

	fmt.Fprintln(w, "RFC 9460 Compliance Summary")
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Metric\tRoot Domains\tWWW Domains")
	fmt.Fprintf(tw, "Total Checked\t%d\t%d\n", rootTotal, wwwTotal)
	fmt.Fprintf(tw, "Has HTTPS Record\t%d (%.2f%%)\t%d (%.2f%%)\n",
		rootWith, metrics.AdoptionRateRoot, wwwWith, metrics.AdoptionRateWWW)
	fmt.Fprintf(tw, "Supports HTTP/3\t%d\t%d\n", rootH3, wwwH3)
	fmt.Fprintf(tw, "Has ECH Config\t%d\t%d\n", rootECH, wwwECH)
	fmt.Fprintf(tw, "Custom Port\t%d\t%d\n", rootPort, wwwPort)
	fmt.Fprintf(tw, "IPv4 Hints\t%d\t%d\n", rootV4, wwwV4)
	fmt.Fprintf(tw, "IPv6 Hints\t%d\t%d\n", rootV6, wwwV6)
	tw.Flush()

	performers := TopPerformers(records, 5)
	if len(performers) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Top 5 RFC 9460 Compliant Domains:")
		for i, p := range performers {
			fmt.Fprintf(w, "  %d. %s: %.1f/100\n", i+1, p.Domain, p.Score)
		}
	}
}
