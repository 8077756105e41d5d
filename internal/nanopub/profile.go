package nanopub

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrNoProfile is returned when no profile file can be found
var ErrNoProfile = errors.New("no nanopub profile found")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Profile is the identity a nanopublication is signed with and attributed to
type Profile struct {
	OrcidID         string `yaml:"orcid_id" json:"orcid_id" validate:"required,url"`
	Name            string `yaml:"name" json:"name" validate:"required"`
	PublicKeyPath   string `yaml:"public_key" json:"public_key" validate:"required"`
	PrivateKeyPath  string `yaml:"private_key" json:"private_key" validate:"required"`
	IntroNanopubURI string `yaml:"introduction_nanopub_uri,omitempty" json:"introduction_nanopub_uri,omitempty" validate:"omitempty,url"`

	privateKey *rsa.PrivateKey
}

// PrivateKey returns the loaded signing key
func (p *Profile) PrivateKey() *rsa.PrivateKey {
	return p.privateKey
}

// SetPrivateKey attaches an already parsed signing key
func (p *Profile) SetPrivateKey(key *rsa.PrivateKey) {
	p.privateKey = key
}

// ProfileLoader supplies the profile used for a publication
type ProfileLoader interface {
	Load() (*Profile, error)
}

// DefaultProfilePath returns ~/.nanopub/profile.yml
func DefaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".nanopub", "profile.yml"), nil
}

// FileProfileLoader reads a profile.yml and its private key from disk
type FileProfileLoader struct {
	Path string // Empty means DefaultProfilePath
}

// Load reads, validates and decodes the profile
func (l FileProfileLoader) Load() (*Profile, error) {
	path := l.Path
	if path == "" {
		var err error
		if path, err = DefaultProfilePath(); err != nil {
			return nil, err
		}
	}
	return LoadProfile(path)
}

// StaticProfileLoader returns a fixed profile
type StaticProfileLoader struct {
	Profile *Profile
}

// Load returns the configured profile
func (l StaticProfileLoader) Load() (*Profile, error) {
	if l.Profile == nil {
		return nil, ErrNoProfile
	}
	return l.Profile, nil
}

// LoadProfile reads a profile file. Relative key paths are resolved
// against the profile's directory.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoProfile, path)
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	p.PrivateKeyPath = resolvePath(dir, p.PrivateKeyPath)
	p.PublicKeyPath = resolvePath(dir, p.PublicKeyPath)

	key, err := ReadPrivateKey(p.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	p.privateKey = key

	return &p, nil
}

// SaveProfile writes the profile as YAML
func SaveProfile(path string, p *Profile) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
