package plugin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Manifest describes a WASM module exporting elementwise operators.
//
//	name: activations
//	module: activations.wasm
//	checksum: 3b1f...
//	operators:
//	  - kind: leaky
//	    export: leaky_relu
//	    params: [slope]
type Manifest struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version,omitempty"`

	// Module is the path of the .wasm file, relative to the manifest.
	Module string `yaml:"module" validate:"required"`

	// Checksum is the hex sha256 of the module. Verified when set.
	Checksum string `yaml:"checksum,omitempty" validate:"omitempty,hexadecimal,len=64"`

	Operators []OperatorSpec `yaml:"operators" validate:"required,min=1,dive"`

	// Path is the file the manifest was loaded from.
	Path string `yaml:"-"`
}

// OperatorSpec binds an operator kind to an exported function of type
// (f64 x, f64 params...) -> f64.
type OperatorSpec struct {
	Kind string `yaml:"kind" validate:"required"`

	// Export defaults to Kind.
	Export string   `yaml:"export,omitempty"`
	Params []string `yaml:"params,omitempty" validate:"dive,required"`
}

// ExportName returns the exported function implementing the operator.
func (o OperatorSpec) ExportName() string {
	if o.Export != "" {
		return o.Export
	}
	return o.Kind
}

var validate = validator.New()

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Operators))
	for _, op := range m.Operators {
		if seen[op.Kind] {
			return nil, fmt.Errorf("invalid manifest: operator %s declared twice", op.Kind)
		}
		seen[op.Kind] = true
	}
	return &m, nil
}

// LoadManifest reads the manifest at path and the module it names. The
// module's checksum is verified when the manifest carries one.
func LoadManifest(path string) (*Manifest, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, nil, err
	}
	m.Path = path

	wasmPath := m.Module
	if !filepath.IsAbs(wasmPath) {
		wasmPath = filepath.Join(filepath.Dir(path), wasmPath)
	}
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, nil, fmt.Errorf("WASM module not found at %s: %w", wasmPath, err)
	}
	if m.Checksum != "" {
		if err := m.VerifyChecksum(wasm); err != nil {
			return nil, nil, err
		}
	}
	return m, wasm, nil
}

// VerifyChecksum checks wasm against the manifest checksum.
func (m *Manifest) VerifyChecksum(wasm []byte) error {
	if m.Checksum == "" {
		return fmt.Errorf("no checksum in manifest")
	}
	hash := sha256.Sum256(wasm)
	computed := hex.EncodeToString(hash[:])
	if computed != m.Checksum {
		return fmt.Errorf("WASM module checksum mismatch: expected %s, got %s", m.Checksum, computed)
	}
	return nil
}
