//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package cli implements the svcbscan command line interface.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bassosimone/svcbscan"
	"github.com/bassosimone/svcbscan/internal/analyzer"
	"github.com/bassosimone/svcbscan/internal/config"
	"github.com/bassosimone/svcbscan/internal/logging"
	"github.com/bassosimone/svcbscan/internal/scanner"
	"github.com/bassosimone/svcbscan/internal/tld"
	"github.com/bassosimone/svcbscan/internal/version"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		args = []string{"scan"}
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "version":
		fmt.Printf("svcbscan %s (commit=%s build_date=%s)\n",
			version.Version, version.Commit, version.BuildDate)
		return 0
	case "help", "-h", "--help":
		printHelp()
		return 0
	default:
		// Bare flags mean the default scan command.
		if strings.HasPrefix(args[0], "-") {
			return runScan(args)
		}
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printHelp()
		return 2
	}
}

func printHelp() {
	fmt.Println(`svcbscan

Usage:
  svcbscan [scan] [flags]
  svcbscan validate -file <results.json>
  svcbscan version

Commands:
  scan      Query domains for SVCB/HTTPS records and write reports (default)
  validate  Re-validate an exported JSON results file
  version   Print version information

Examples:
  svcbscan
  svcbscan scan -domains example.com,example.org
  svcbscan scan -domains-file websites.json -protocol quic -cache redis
  svcbscan validate -file results/records.json`)
}

type scanFlags struct {
	Domains     string
	DomainsFile string
	ConfigFile  string
	Output      string
	Format      string
	DNSServers  string
	Protocol    string
	Timeout     time.Duration
	RateLimit   float64
	BatchSize   int
	NoTLDCheck  bool
	NoSummary   bool
	CacheName   string
	LogLevel    string
}

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	f := &scanFlags{}
	fs.StringVar(&f.Domains, "domains", "", "Comma-separated domains to check")
	fs.StringVar(&f.DomainsFile, "domains-file", "", "JSON file with domains (array or {\"websites\": [...]})")
	fs.StringVar(&f.ConfigFile, "config", "", "JSON configuration file")
	fs.StringVar(&f.Output, "output", "", "Output directory for reports")
	fs.StringVar(&f.Format, "format", "text", "Stdout format: text|json")
	fs.StringVar(&f.DNSServers, "dns-server", "", "Comma-separated DNS servers")
	fs.StringVar(&f.Protocol, "protocol", "", "DNS transport: udp|tcp|tls|quic")
	fs.DurationVar(&f.Timeout, "timeout", 0, "Per-query timeout (e.g. 5s)")
	fs.Float64Var(&f.RateLimit, "rate-limit", 0, "Maximum queries per second")
	fs.IntVar(&f.BatchSize, "batch-size", 0, "Domains checked concurrently")
	fs.BoolVar(&f.NoTLDCheck, "no-tld-check", false, "Skip the IANA TLD cross-check")
	fs.BoolVar(&f.NoSummary, "no-summary", false, "Do not print the console summary")
	fs.StringVar(&f.CacheName, "cache", "", "Cache backend: none|memory|redis")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "invalid flags:", err)
		return 2
	}

	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}
	applyFlags(cfg, f)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	logging.Setup(cfg.LogLevel)

	domains, err := loadDomainList(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load domains:", err)
		return 1
	}
	if len(domains) == 0 {
		fmt.Fprintln(os.Stderr, "no domains to check")
		return 1
	}

	cache, err := newCache(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create cache:", err)
		return 1
	}

	var tlds svcbscan.TLDSet
	if cfg.CheckTLD {
		tlds = tld.New(tld.Options{})
	}

	scan := scanner.New(scanner.Config{
		Servers:   cfg.DNSServers,
		Protocol:  cfg.Protocol,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		RateLimit: cfg.RateLimit,
		BatchSize: cfg.BatchSize,
		TLDs:      tlds,
		Cache:     cache,
	})
	defer scan.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logrus.Warn("interrupted, finishing in-flight queries")
		cancel()
	}()

	logrus.WithFields(logrus.Fields{
		"domains":  len(domains),
		"servers":  scan.Servers(),
		"protocol": cfg.Protocol,
	}).Info("starting scan")

	bar := progressbar.NewOptions(len(domains),
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)

	started := time.Now()
	records := scan.CheckDomains(ctx, domains, func(string) {
		_ = bar.Add(1)
	})
	stampMetadata(records, cfg.DNSServers[0], started)

	validator := &svcbscan.Validator{TLDs: tlds}
	quality := validator.ValidateRecords(records)
	if quality.InvalidRecords > 0 {
		logrus.WithFields(logrus.Fields{
			"invalid":       quality.InvalidRecords,
			"validity_rate": quality.ValidityRate,
		}).Warn("scan produced invalid records")
	}

	outputDir := cfg.OutputDir
	if f.Output != "" {
		outputDir = f.Output
	}
	reporter := &analyzer.Reporter{OutputDir: outputDir}
	timestamp := analyzer.Timestamp(started)
	if _, err := reporter.WriteCSV(records, timestamp); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write CSV report:", err)
		return 1
	}
	if _, err := reporter.WriteJSON(records, version.Version, timestamp); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write JSON report:", err)
		return 1
	}
	if _, err := reporter.WriteMarkdown(records, timestamp); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write Markdown report:", err)
		return 1
	}

	if strings.ToLower(f.Format) == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(records)
		return 0
	}
	if !f.NoSummary {
		analyzer.RenderSummary(os.Stdout, records)
	}
	fmt.Printf("\nReports written to: %s\n", outputDir)
	return 0
}

// applyFlags overlays explicitly-set flags on the loaded configuration.
func applyFlags(cfg *config.Config, f *scanFlags) {
	if f.DNSServers != "" {
		cfg.DNSServers = splitCSV(f.DNSServers)
	}
	if f.Protocol != "" {
		cfg.Protocol = f.Protocol
	}
	if f.Timeout > 0 {
		cfg.TimeoutSeconds = int(f.Timeout / time.Second)
		if cfg.TimeoutSeconds < 1 {
			cfg.TimeoutSeconds = 1
		}
	}
	if f.RateLimit > 0 {
		cfg.RateLimit = f.RateLimit
	}
	if f.BatchSize > 0 {
		cfg.BatchSize = f.BatchSize
	}
	if f.NoTLDCheck {
		cfg.CheckTLD = false
	}
	if f.CacheName != "" {
		cfg.Cache.Backend = f.CacheName
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
}

func loadDomainList(f *scanFlags) ([]string, error) {
	if f.Domains != "" {
		return splitCSV(f.Domains), nil
	}
	if f.DomainsFile != "" {
		return config.LoadDomains(f.DomainsFile)
	}
	return config.DefaultDomains, nil
}

func newCache(cfg *config.Config) (scanner.Cache, error) {
	switch cfg.Cache.Backend {
	case "", "none":
		return scanner.NullCache{}, nil
	case "memory":
		return scanner.NewMemoryCache()
	case "redis":
		return scanner.NewRedisCache(scanner.RedisOptions{
			Address:   cfg.Cache.Redis.Address,
			Password:  cfg.Cache.Redis.Password,
			Database:  cfg.Cache.Redis.Database,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
			TTL:       time.Duration(cfg.Cache.Redis.TTLSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func stampMetadata(records []svcbscan.Record, dnsServer string, started time.Time) {
	timestamp := started.UTC().Format(time.RFC3339)
	for i := range records {
		records[i].ScriptVersion = version.Version
		records[i].Timestamp = timestamp
		records[i].DNSServer = dnsServer
	}
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var file string
	var logLevel string
	var noTLDCheck bool
	fs.StringVar(&file, "file", "", "JSON results file to validate")
	fs.StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&noTLDCheck, "no-tld-check", false, "Skip the IANA TLD cross-check")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "invalid flags:", err)
		return 2
	}
	if file == "" && fs.NArg() > 0 {
		file = fs.Arg(0)
	}
	if file == "" {
		fmt.Fprintln(os.Stderr, "validate: missing -file argument")
		return 2
	}

	logging.Setup(logLevel)

	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read results file:", err)
		return 1
	}
	var dataset []map[string]any
	if err := json.Unmarshal(data, &dataset); err != nil {
		fmt.Fprintln(os.Stderr, "failed to parse results file:", err)
		return 1
	}

	// TLD-checked validation is the default: single-label names are
	// invalid data even when the IANA list is unavailable.
	var tlds svcbscan.TLDSet = tld.New(tld.Options{})
	if noTLDCheck {
		tlds = svcbscan.AnyTLD{}
	}
	validator := &svcbscan.Validator{TLDs: tlds}
	report := validator.ValidateDataset(dataset)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if report.InvalidRecords > 0 {
		return 1
	}
	return 0
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
