//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package tld provides the authoritative TLD set used for domain
// validation, backed by IANA's published list with an on-disk cache.
package tld

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultURL is IANA's authoritative TLD list.
const DefaultURL = "https://data.iana.org/TLD/tlds-alpha-by-domain.txt"

// DefaultMaxAge is the staleness horizon of the on-disk cache.
const DefaultMaxAge = 7 * 24 * time.Hour

// Options configures a [*Source]. Zero values select the defaults.
type Options struct {
	// URL is the list location; empty means [DefaultURL].
	URL string

	// CachePath is the on-disk cache file; empty means
	// <user cache dir>/svcbscan/tlds.txt.
	CachePath string

	// MaxAge is the cache staleness horizon; zero means [DefaultMaxAge].
	MaxAge time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Source is a refreshable TLD set implementing svcbscan.TLDSet. It is
// lazily populated: the first lookup loads the on-disk cache when fresh
// and otherwise fetches from IANA. When neither works the source is
// permissive and accepts any TLD rather than failing closed, because a
// degraded validator must not reject real domains.
type Source struct {
	cachePath string
	client    *http.Client
	log       *logrus.Entry
	maxAge    time.Duration
	url       string

	mu     sync.RWMutex
	loaded bool
	tlds   map[string]bool
}

// New creates a [*Source]. No I/O happens until the first lookup.
func New(opts Options) *Source {
	url := opts.URL
	if url == "" {
		url = DefaultURL
	}
	cachePath := opts.CachePath
	if cachePath == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cachePath = filepath.Join(dir, "svcbscan", "tlds.txt")
		}
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Source{
		cachePath: cachePath,
		client:    client,
		log:       logrus.WithField("component", "tld"),
		maxAge:    maxAge,
		url:       url,
	}
}

// IsValidTLD implements svcbscan.TLDSet. The check is case-insensitive.
func (s *Source) IsValidTLD(tld string) bool {
	tlds := s.load()
	if len(tlds) == 0 {
		s.log.Warn("no TLD list available, accepting any TLD")
		return true
	}
	return tlds[strings.ToLower(tld)]
}

// Refresh forces a fetch from the configured URL, replacing both the
// in-memory set and the on-disk cache.
func (s *Source) Refresh(ctx context.Context) error {
	tlds, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	s.saveCacheFile(tlds)

	s.mu.Lock()
	s.tlds = tlds
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Len returns the number of known TLDs, loading the set if needed.
func (s *Source) Len() int {
	return len(s.load())
}

func (s *Source) load() map[string]bool {
	s.mu.RLock()
	if s.loaded {
		tlds := s.tlds
		s.mu.RUnlock()
		return tlds
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.tlds
	}

	tlds := s.loadCacheFile()
	if tlds == nil {
		fetched, err := s.fetch(context.Background())
		if err != nil {
			s.log.WithError(err).Error("failed to fetch TLD list")
		} else {
			tlds = fetched
			s.saveCacheFile(tlds)
		}
	}

	// Mark loaded even on failure: a scan run should not retry the
	// fetch on every single domain. Refresh resets the state.
	s.tlds = tlds
	s.loaded = true
	return s.tlds
}

// fetch downloads and parses the list: one TLD per line, comments
// starting with "#", lowercased on load.
func (s *Source) fetch(ctx context.Context) (map[string]bool, error) {
	s.log.WithField("url", s.url).Info("fetching TLD list")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching TLD list: %s", resp.Status)
	}

	tlds := make(map[string]bool)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tlds[strings.ToLower(line)] = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	s.log.WithField("count", len(tlds)).Info("fetched TLD list")
	return tlds, nil
}

// loadCacheFile returns the cached set, or nil when the cache is
// missing, unreadable, or older than the staleness horizon.
func (s *Source) loadCacheFile() map[string]bool {
	if s.cachePath == "" {
		return nil
	}
	info, err := os.Stat(s.cachePath)
	if err != nil {
		return nil
	}
	if time.Since(info.ModTime()) > s.maxAge {
		s.log.Info("TLD cache is stale, will refresh")
		return nil
	}

	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		s.log.WithError(err).Error("failed to read TLD cache")
		return nil
	}

	tlds := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			tlds[strings.ToLower(line)] = true
		}
	}
	if len(tlds) == 0 {
		return nil
	}
	s.log.WithField("count", len(tlds)).Debug("loaded TLD cache")
	return tlds
}

func (s *Source) saveCacheFile(tlds map[string]bool) {
	if s.cachePath == "" || len(tlds) == 0 {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.cachePath), 0o755); err != nil {
		s.log.WithError(err).Error("failed to create TLD cache directory")
		return
	}

	sorted := make([]string, 0, len(tlds))
	for tld := range tlds {
		sorted = append(sorted, tld)
	}
	sort.Strings(sorted)

	content := strings.Join(sorted, "\n") + "\n"
	if err := os.WriteFile(s.cachePath, []byte(content), 0o644); err != nil {
		s.log.WithError(err).Error("failed to write TLD cache")
	}
}
