package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("squirrel.manifest")

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency key in [dependencies]
	LocalPath string    // directory added to the script search path
	Module    string    // root table name the dependency is loaded under
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// Resolver fetches dependencies and pins them in the lock file.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order:
// dependencies before dependents.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest.Dir, r.manifest.Dependencies, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

func (r *Resolver) resolveAll(base string, deps map[string]Dependency, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	var order []ResolvedDep

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}
		rd, err := r.resolveOne(base, name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.LocalPath, rd.Manifest.Dependencies, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

// resolveModule picks the root table name for a dependency: the
// consumer's override, then the producer's project name, then the key.
func resolveModule(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var mod string
	switch {
	case dep.Name != "":
		mod = dep.Name
	case depManifest != nil && depManifest.Project.Name != "":
		mod = ModuleName(depManifest.Project.Name)
	default:
		mod = ModuleName(name)
	}
	if mod == "" {
		return "", fmt.Errorf("dependency %q has no usable module name", name)
	}
	if IsReservedModule(mod) {
		return "", fmt.Errorf("dependency %q resolves to reserved name %q; add name = \"...\" in [dependencies]", name, mod)
	}
	return mod, nil
}

// resolveOne resolves a single dependency; relative paths are taken from
// base, the directory of the manifest that declared it.
func (r *Resolver) resolveOne(base, name string, dep Dependency) (*ResolvedDep, error) {
	var dir string
	switch {
	case dep.Path != "":
		p := dep.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, abs, err)
		}
		dir = abs

	case dep.Git != "":
		dir = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetchGit(name, dep, dir); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	depManifest, _ := Load(dir)
	mod, err := resolveModule(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	return &ResolvedDep{Name: name, LocalPath: dir, Module: mod, Manifest: depManifest}, nil
}

func (r *Resolver) fetchGit(name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if err := gitFetch(dir); err != nil {
			return err
		}
	}
	if dep.Tag != "" {
		return gitCheckout(dir, dep.Tag)
	}
	return nil
}

func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name}
		dep := r.manifest.Dependencies[rd.Name]
		switch {
		case dep.Git != "":
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		case dep.Path != "":
			ld.Path = dep.Path
		default:
			ld.Path = rd.LocalPath
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
