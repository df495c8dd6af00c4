package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/archspace/archspace/pkg/ops"
)

// Set is a group of loaded plugins.
type Set []*Plugin

// Load instantiates the plugin manifests found under paths and registers
// their operators into r. A path is a manifest file or a directory searched
// for *.yaml and *.yml manifests. Already loaded plugins are closed on error.
func Load(ctx context.Context, paths []string, r *ops.Registry, cfg *Config) (Set, error) {
	manifests, err := findManifests(paths)
	if err != nil {
		return nil, err
	}

	var set Set
	for _, path := range manifests {
		manifest, wasm, err := LoadManifest(path)
		if err != nil {
			set.Close(ctx)
			return nil, fmt.Errorf("plugin %s: %w", path, err)
		}
		p, err := New(ctx, manifest, wasm, cfg)
		if err != nil {
			set.Close(ctx)
			return nil, fmt.Errorf("plugin %s: %w", path, err)
		}
		set = append(set, p)
		if err := p.Register(r); err != nil {
			set.Close(ctx)
			return nil, err
		}
	}
	return set, nil
}

func findManifests(paths []string) ([]string, error) {
	var out []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat plugin path: %w", err)
		}
		if !info.IsDir() {
			out = append(out, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read plugin directory: %w", err)
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				out = append(out, filepath.Join(path, e.Name()))
			}
		}
	}
	return slices.Compact(out), nil
}

// Kinds returns the operator kinds the set provides, sorted.
func (s Set) Kinds() []string {
	var kinds []string
	for _, p := range s {
		for _, op := range p.manifest.Operators {
			kinds = append(kinds, op.Kind)
		}
	}
	slices.Sort(kinds)
	return kinds
}

// Close closes every plugin in the set.
func (s Set) Close(ctx context.Context) error {
	var errs []error
	for _, p := range s {
		errs = append(errs, p.Close(ctx))
	}
	return errors.Join(errs...)
}
