// Package scripts supplies the standard script providers and the shared
// helpers for working with script contents: digests, variable expansion, and
// statement splitting.
package scripts

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/moyolawal/dbup-RollBack/internal/engine"
)

// Option configures a file based provider.
type Option func(*providerOptions)

type providerOptions struct {
	runGroup      int
	excludeSuffix string
}

// WithRunGroup assigns every script emitted by the provider to the given
// ordering bucket.
func WithRunGroup(group int) Option {
	return func(o *providerOptions) {
		o.runGroup = group
	}
}

// WithExcludedSuffix hides scripts whose base name (extension stripped) ends
// with the suffix. Used to keep rollback counterparts out of forward runs
// while leaving them discoverable through a second provider.
func WithExcludedSuffix(suffix string) Option {
	return func(o *providerOptions) {
		o.excludeSuffix = suffix
	}
}

func buildOptions(opts []Option) providerOptions {
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// StaticProvider emits a fixed list of scripts, unchanged, on every call.
type StaticProvider struct {
	scripts []engine.Script
}

// NewStaticProvider returns a provider over a copy of the given scripts.
func NewStaticProvider(scripts ...engine.Script) *StaticProvider {
	copied := make([]engine.Script, len(scripts))
	copy(copied, scripts)
	return &StaticProvider{scripts: copied}
}

// GetScripts implements engine.ScriptProvider.
func (p *StaticProvider) GetScripts(context.Context) ([]engine.Script, error) {
	out := make([]engine.Script, len(p.scripts))
	copy(out, p.scripts)
	return out, nil
}

// DirProvider discovers *.sql scripts in a filesystem directory. The file
// name becomes the script name.
type DirProvider struct {
	dir  string
	opts providerOptions
}

// NewDirProvider returns a provider over the given directory.
func NewDirProvider(dir string, opts ...Option) *DirProvider {
	return &DirProvider{dir: dir, opts: buildOptions(opts)}
}

// GetScripts implements engine.ScriptProvider.
func (p *DirProvider) GetScripts(ctx context.Context) ([]engine.Script, error) {
	if _, err := os.Stat(p.dir); err != nil {
		return nil, fmt.Errorf("script directory %s: %w", p.dir, err)
	}
	return scanFS(os.DirFS(p.dir), p.opts)
}

// FSProvider discovers *.sql scripts from an fs.FS, typically an embed.FS.
type FSProvider struct {
	fsys fs.FS
	opts providerOptions
}

// NewFSProvider returns a provider over the given filesystem.
func NewFSProvider(fsys fs.FS, opts ...Option) *FSProvider {
	return &FSProvider{fsys: fsys, opts: buildOptions(opts)}
}

// GetScripts implements engine.ScriptProvider.
func (p *FSProvider) GetScripts(ctx context.Context) ([]engine.Script, error) {
	return scanFS(p.fsys, p.opts)
}

// scanFS collects the eligible scripts at the root of fsys, rejecting empty
// files, sorted by name for a deterministic emission order. The file name is
// the script name, so one directory cannot yield duplicates; duplicates
// across providers are the caller's concern.
func scanFS(fsys fs.FS, opts providerOptions) ([]engine.Script, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read script directory: %w", err)
	}

	var scripts []engine.Script
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if excluded(name, opts.excludeSuffix) {
			continue
		}

		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read script %s: %w", name, err)
		}
		if strings.TrimSpace(string(contents)) == "" {
			return nil, fmt.Errorf("script %s is empty", name)
		}

		scripts = append(scripts, engine.Script{
			Name:     name,
			RunGroup: opts.runGroup,
			Contents: string(contents),
		})
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Name < scripts[j].Name
	})
	return scripts, nil
}

// excluded reports whether the name carries the excluded suffix before its
// extension.
func excluded(name, suffix string) bool {
	if suffix == "" {
		return false
	}
	base := strings.TrimSuffix(name, ".sql")
	return strings.HasSuffix(base, suffix)
}
