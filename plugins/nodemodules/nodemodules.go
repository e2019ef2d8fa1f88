/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package nodemodules resolves bare specifiers and "#" subpath imports of
// js modules through package.json files, walking up node_modules
// directories and the workspaces of a monorepo.
package nodemodules

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/packagejson"
	"bennypowers.dev/sous/plugin"
)

// Options configures the node_modules plugin.
type Options struct {
	FileSystem fs.FileSystem
	// Cache is shared with the dev session, which invalidates changed
	// package.json files. A private cache is used when nil.
	Cache *packagejson.MemoryCache
	// Conditions defaults to packagejson.DefaultConditions.
	Conditions []string
}

// New returns the node_modules plugin.
func New(opts Options) *plugin.Plugin {
	if opts.Cache == nil {
		opts.Cache = packagejson.NewMemoryCache()
	}
	r := &resolver{fsys: opts.FileSystem, cache: opts.Cache, conditions: opts.Conditions}
	return &plugin.Plugin{
		Name:             "node_modules",
		ResolveReference: r.resolve,
	}
}

type resolver struct {
	fsys       fs.FileSystem
	cache      *packagejson.MemoryCache
	conditions []string

	workspacesOnce sync.Once
	workspaces     map[string]string
}

func (r *resolver) resolve(hc *plugin.HookContext, ref *graph.Reference) (string, error) {
	if ref.Type != graph.TypeJSImport {
		return "", nil
	}
	spec := ref.Specifier
	ownerPath, ok := config.URLToPath(ref.OwnerURL)
	if !ok {
		return "", nil
	}
	ownerDir := filepath.Dir(ownerPath)

	if len(spec) > 1 && spec[0] == '#' {
		dir, pkg := r.nearest(ownerDir)
		if pkg == nil {
			return "", nil
		}
		target, err := pkg.ResolveImport(spec, r.conditions)
		if err != nil {
			return "", fmt.Errorf("%s in %s: %w", spec, filepath.Join(dir, "package.json"), err)
		}
		return config.FileURL(filepath.Join(dir, filepath.FromSlash(target))), nil
	}
	if !packagejson.IsBare(spec) {
		return "", nil
	}

	name, subpath := packagejson.SplitSpecifier(spec)
	if dir, pkg := r.nearest(ownerDir); pkg != nil && pkg.Name == name {
		return r.export(dir, pkg, spec, subpath)
	}
	for dir := ownerDir; ; {
		candidate := filepath.Join(dir, "node_modules", filepath.FromSlash(name))
		if pkg, err := r.load(candidate); err == nil {
			return r.export(candidate, pkg, spec, subpath)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if dir, ok := r.workspace(hc.Config.RootDirectory, name); ok {
		pkg, err := r.load(dir)
		if err != nil {
			return "", err
		}
		return r.export(dir, pkg, spec, subpath)
	}
	return "", nil
}

func (r *resolver) export(dir string, pkg *packagejson.PackageJSON, spec, subpath string) (string, error) {
	target, err := pkg.ResolveExport(subpath, r.conditions)
	if err != nil {
		if errors.Is(err, packagejson.ErrNotExported) {
			return "", fmt.Errorf("%q: subpath %s is %w", spec, subpath, err)
		}
		return "", err
	}
	return config.FileURL(filepath.Join(dir, filepath.FromSlash(target))), nil
}

func (r *resolver) load(dir string) (*packagejson.PackageJSON, error) {
	p := filepath.Join(dir, "package.json")
	return r.cache.GetOrLoad(p, func() (*packagejson.PackageJSON, error) {
		return packagejson.ParseFile(r.fsys, p)
	})
}

// nearest returns the closest package.json at or above dir.
func (r *resolver) nearest(dir string) (string, *packagejson.PackageJSON) {
	for {
		if pkg, err := r.load(dir); err == nil {
			return dir, pkg
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (r *resolver) workspace(rootDir, name string) (string, bool) {
	r.workspacesOnce.Do(func() {
		packages, err := DiscoverWorkspaces(r.fsys, FindWorkspaceRoot(r.fsys, rootDir))
		if err == nil {
			r.workspaces = packages
		}
	})
	dir, ok := r.workspaces[name]
	return dir, ok
}
