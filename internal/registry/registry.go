package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDescriptor is returned when a registry entry cannot be accepted.
var ErrInvalidDescriptor = errors.New("invalid method descriptor")

var validate = validator.New()

// #region registry
// Registry is the read-only catalog of method metadata. It is safe for
// concurrent use because nothing mutates it after New returns.
type Registry struct {
	version string
	methods map[string]MethodDescriptor
	compat  map[string]Compatibility
	ids     []string
}

// New builds a registry from descriptors and the compatibility table.
// Inputs are copied.
func New(version string, descs []MethodDescriptor, compat map[string]Compatibility) (*Registry, error) {
	r := &Registry{
		version: version,
		methods: make(map[string]MethodDescriptor, len(descs)),
		compat:  make(map[string]Compatibility, len(compat)),
	}
	for _, d := range descs {
		if err := validate.Struct(d); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.MethodID, err)
		}
		if d.OutputRange.Lo > d.OutputRange.Hi {
			return nil, fmt.Errorf("%w: %s: output range [%g, %g] is inverted",
				ErrInvalidDescriptor, d.MethodID, d.OutputRange.Lo, d.OutputRange.Hi)
		}
		if _, dup := r.methods[d.MethodID]; dup {
			return nil, fmt.Errorf("%w: duplicate method id %s", ErrInvalidDescriptor, d.MethodID)
		}
		r.methods[d.MethodID] = d.clone()
		r.ids = append(r.ids, d.MethodID)
	}
	for id, c := range compat {
		if _, ok := r.methods[id]; !ok {
			return nil, fmt.Errorf("%w: compatibility entry for unknown method %s", ErrInvalidDescriptor, id)
		}
		r.compat[id] = c.clone()
	}
	sort.Strings(r.ids)
	return r, nil
}

// Version returns the registry version tag.
func (r *Registry) Version() string {
	return r.version
}

// Get returns a copy of the descriptor for id.
func (r *Registry) Get(id string) (MethodDescriptor, bool) {
	d, ok := r.methods[id]
	if !ok {
		return MethodDescriptor{}, false
	}
	return d.clone(), true
}

// Compatibility returns a copy of the compatibility entry for id.
func (r *Registry) Compatibility(id string) (Compatibility, bool) {
	c, ok := r.compat[id]
	if !ok {
		return Compatibility{}, false
	}
	return c.clone(), true
}

// IDs returns all method ids in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	return len(r.ids)
}

// #endregion registry

// #region load
// File is the on-disk YAML layout of a registry.
type File struct {
	Version       string                   `yaml:"version" validate:"required"`
	Methods       []MethodDescriptor       `yaml:"methods" validate:"dive"`
	Compatibility map[string]Compatibility `yaml:"compatibility"`
}

// Load reads and validates a YAML registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return New(f.Version, f.Methods, f.Compatibility)
}

// #endregion load

// #region config-hash
// ConfigHash fingerprints a method configuration as sha256 over its JSON
// encoding. encoding/json sorts map keys, so equal configs hash equally.
func ConfigHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// #endregion config-hash
