package sites

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Package sites holds per-domain overrides (YAML/JSON) for fetching and rendering.

// Site is one per-domain override entry.
type Site struct {
	Domain        string            `json:"domain" yaml:"domain"`
	Strategy      string            `json:"strategy" yaml:"strategy"`
	IncludeImages *bool             `json:"include_images" yaml:"include_images"`
	Headers       map[string]string `json:"headers" yaml:"headers"`
}

type registryFile struct {
	Sites []Site `json:"sites" yaml:"sites"`
}

// DefaultLayoutDenyList lists domains known to render poorly with layout-preserving conversion.
var DefaultLayoutDenyList = []string{
	"therecord.media",
	"theverge.com",
	"wired.com",
	"securityboulevard.com",
}

// Registry is the loaded set of site overrides.
type Registry struct {
	mu    sync.RWMutex
	sites []Site
}

// Default returns a registry seeded only with the built-in deny-list.
func Default() *Registry {
	reg := &Registry{}
	for _, d := range DefaultLayoutDenyList {
		reg.sites = append(reg.sites, Site{Domain: d, Strategy: "extract"})
	}
	return reg
}

// Load reads overrides from path and merges them over the defaults. An empty path
// yields the defaults.
func Load(path string) (*Registry, error) {
	reg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return reg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	parsed, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(parsed.Sites))
	for i := range parsed.Sites {
		s := sanitizeSite(parsed.Sites[i])
		if err := validateSite(s); err != nil {
			return nil, fmt.Errorf("sites[%d]: %w", i, err)
		}
		if seen[s.Domain] {
			return nil, fmt.Errorf("duplicate site domain %q", s.Domain)
		}
		seen[s.Domain] = true
		reg.put(s)
	}
	return reg, nil
}

type unmarshalFn func([]byte, any) error

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg registryFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}
	return registryFile{}, errors.New("sites file format not recognized (expected YAML or JSON)")
}

func sanitizeSite(s Site) Site {
	s.Domain = strings.ToLower(strings.TrimSpace(s.Domain))
	s.Domain = strings.TrimPrefix(s.Domain, "www.")
	s.Strategy = strings.ToLower(strings.TrimSpace(s.Strategy))
	if s.Strategy == "" {
		s.Strategy = "auto"
	}
	if len(s.Headers) > 0 {
		clean := make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				clean[k] = v
			}
		}
		s.Headers = clean
	}
	return s
}

func validateSite(s Site) error {
	if s.Domain == "" {
		return errors.New("domain is required")
	}
	switch s.Strategy {
	case "auto", "extract", "minimal":
	default:
		return fmt.Errorf("unsupported strategy %q for site %q", s.Strategy, s.Domain)
	}
	return nil
}

// put replaces an existing entry for the same domain or appends a new one.
func (r *Registry) put(s Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sites {
		if r.sites[i].Domain == s.Domain {
			r.sites[i] = s
			return
		}
	}
	r.sites = append(r.sites, s)
}

// All returns a copy of the configured sites.
func (r *Registry) All() []Site {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Site, len(r.sites))
	copy(out, r.sites)
	return out
}

// LayoutDenyList returns every domain forced onto the extract strategy.
func (r *Registry) LayoutDenyList() []string {
	var out []string
	for _, s := range r.All() {
		if s.Strategy == "extract" {
			out = append(out, s.Domain)
		}
	}
	return out
}

// Match returns the site entry whose domain is contained in the URL's host.
func (r *Registry) Match(rawURL string) (Site, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Site{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range r.All() {
		if strings.Contains(host, s.Domain) {
			return s, true
		}
	}
	return Site{}, false
}

// Headers returns the extra request headers configured for the URL's site.
func (r *Registry) Headers(rawURL string) map[string]string {
	s, ok := r.Match(rawURL)
	if !ok || len(s.Headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		out[k] = v
	}
	return out
}
