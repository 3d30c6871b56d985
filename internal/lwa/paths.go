package lwa

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PathRule rewrites files under Local to public URLs under URL.
type PathRule struct {
	Local string `yaml:"local"`
	URL   string `yaml:"url"`
	// BaseNameOnly drops the directory part below Local.
	BaseNameOnly bool `yaml:"basename_only"`
}

// PathMapper converts archive paths on the NAS to the URLs the page links to, and back.
type PathMapper struct {
	rules []PathRule
}

// DefaultPathRules is the production NAS layout.
func DefaultPathRules() []PathRule {
	return []PathRule{
		{Local: "/nas7/ovro-lwa-data/hdf/", URL: "https://ovsa.njit.edu/lwadata3/hdf/"},
		{Local: "/nas6/ovro-lwa-data/hdf/", URL: "https://ovsa.njit.edu/lwadata2/hdf/"},
		{Local: "/common/lwa/spec_v2/fits/", URL: "https://ovsa.njit.edu/lwa/extm/fits/", BaseNameOnly: true},
	}
}

// NewPathMapper returns a mapper applying rules in order.
func NewPathMapper(rules []PathRule) *PathMapper {
	clean := make([]PathRule, 0, len(rules))
	for _, r := range rules {
		if strings.TrimSpace(r.Local) == "" || strings.TrimSpace(r.URL) == "" {
			continue
		}
		clean = append(clean, r)
	}
	return &PathMapper{rules: clean}
}

// Rules returns a copy of the active rules.
func (m *PathMapper) Rules() []PathRule {
	if m == nil {
		return nil
	}
	return append([]PathRule(nil), m.rules...)
}

// ToURL rewrites a local path using the first matching rule. Unmatched paths pass through.
func (m *PathMapper) ToURL(local string) string {
	if m == nil {
		return local
	}
	for _, r := range m.rules {
		if !strings.HasPrefix(local, r.Local) {
			continue
		}
		if r.BaseNameOnly {
			return r.URL + path.Base(local)
		}
		return r.URL + strings.TrimPrefix(local, r.Local)
	}
	return local
}

// ToURLs rewrites every path in order.
func (m *PathMapper) ToURLs(locals []string) []string {
	out := make([]string, 0, len(locals))
	for _, l := range locals {
		out = append(out, m.ToURL(l))
	}
	return out
}

// ToLocal reverses ToURL. Basename-only rules cannot recover sub-directories,
// so they resolve to the file directly under Local.
func (m *PathMapper) ToLocal(url string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, r := range m.rules {
		if !strings.HasPrefix(url, r.URL) {
			continue
		}
		rest := strings.TrimPrefix(url, r.URL)
		if rest == "" || strings.Contains(rest, "..") {
			return "", false
		}
		if r.BaseNameOnly {
			return r.Local + path.Base(rest), true
		}
		return r.Local + rest, true
	}
	return "", false
}

// Within reports whether local, once cleaned, lies below the Local root of
// some rule.
func (m *PathMapper) Within(local string) bool {
	if m == nil || !filepath.IsAbs(local) {
		return false
	}
	clean := filepath.Clean(local)
	for _, r := range m.rules {
		root := filepath.Clean(r.Local)
		if root == string(filepath.Separator) || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

type pathRulesFile struct {
	Rules []PathRule `yaml:"rules"`
}

// LoadPathRules reads rules from a YAML document of the form
//
//	rules:
//	  - local: /nas7/ovro-lwa-data/hdf/
//	    url: https://ovsa.njit.edu/lwadata3/hdf/
func LoadPathRules(file string) ([]PathRule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read path rules: %w", err)
	}
	var doc pathRulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse path rules: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("path rules file %s has no rules", file)
	}
	return doc.Rules, nil
}
