package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const manifestFile = "adapter.json"

// Manifest is the adapter.json that sits next to a script adapter.
type Manifest struct {
	SiteType   string `json:"site_type"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	EntryPoint string `json:"entry_point"`
	// Referer is sent with page image requests when set.
	Referer string `json:"referer,omitempty"`

	version *semver.Version
}

// LoadManifest loads and validates the adapter.json in dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", manifestFile, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifestFile, err)
	}
	if m.SiteType == "" {
		return nil, fmt.Errorf("%s missing required field: site_type", manifestFile)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("%s missing required field: version", manifestFile)
	}
	m.version, err = semver.NewVersion(strings.TrimPrefix(m.Version, "v"))
	if err != nil {
		return nil, fmt.Errorf("%s has invalid version %q: %w", manifestFile, m.Version, err)
	}
	if m.Name == "" {
		m.Name = m.SiteType
	}
	if m.EntryPoint == "" {
		m.EntryPoint = "index.js"
	}
	return &m, nil
}

// NewerThan reports whether m has a higher version than other.
func (m *Manifest) NewerThan(other *Manifest) bool {
	return m.version.GreaterThan(other.version)
}
