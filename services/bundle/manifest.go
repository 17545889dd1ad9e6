package bundle

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata included in every asset bundle.
type Manifest struct {
	Version          string          `yaml:"version"`
	CreatedAt        time.Time       `yaml:"created_at"`
	Signer           string          `yaml:"signer,omitempty"`
	SigningPublicKey string          `yaml:"signing_public_key,omitempty"`
	Signature        string          `yaml:"signature,omitempty"`
	Assets           []ManifestAsset `yaml:"assets"`
}

// SigningBytes marshals the manifest without its signature for
// signing/verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// ManifestAsset describes a single asset within the bundle. ModTime is
// carried so mtime-triggered object keys stay stable across the machine
// boundary: the deployer sees the build host's timestamp, not the
// extraction time.
type ManifestAsset struct {
	Path    string `yaml:"path"`
	Size    int64  `yaml:"size"`
	SHA256  string `yaml:"sha256"`
	ModTime int64  `yaml:"mod_time"`
}
