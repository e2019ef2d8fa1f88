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

// Package build cooks every entry point of a project to completion, then
// bundles, optimizes, versions and relocates the result into
// build-relative files.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/importmap"
	"bennypowers.dev/sous/internal/metrics"
	"bennypowers.dev/sous/kitchen"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/versioning"
	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
)

// ManifestFile is the name of the manifest written next to the build
// output.
const ManifestFile = "sous-manifest.json"

// Options configures Run.
type Options struct {
	// FileSystem is read for entry point globs and handed to the kitchen
	// for debug copies.
	FileSystem fs.FileSystem
	Plugins    []*plugin.Plugin
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Result is the relocated output of a build.
type Result struct {
	// Manifest maps unversioned build-relative paths to versioned ones.
	Manifest map[string]string
	// Files maps build-relative paths to content.
	Files map[string][]byte
	// Inline maps build-relative inline paths, like
	// "index.html@L8C12.css", to the content spliced into their owner.
	Inline    map[string][]byte
	ImportMap *importmap.ImportMap
	// Graph is the cooked graph, kept for inspection.
	Graph *graph.UrlGraph
}

// Run builds every entry point of cfg. Any stage error aborts the build.
// A cancelled ctx returns its cause without partial output.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	placeholders := versioning.NewPlaceholders()
	vp := versioning.Plugin(placeholders)
	plugins := append([]*plugin.Plugin{&vp}, opts.Plugins...)
	ctrl, err := plugin.NewController(config.ModeBuild, cfg, logger, plugins...)
	if err != nil {
		return nil, err
	}
	defer ctrl.Close()

	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	k := kitchen.New(g, ctrl, cfg,
		kitchen.WithLogger(logger),
		kitchen.WithMetrics(opts.Metrics),
		kitchen.WithFileSystem(opts.FileSystem),
	)
	defer k.Close()

	if err := cook(ctx, k, opts.FileSystem); err != nil {
		return nil, err
	}
	remap, err := bundle(ctx, k)
	if err != nil {
		return nil, err
	}
	if err := optimize(ctx, k); err != nil {
		return nil, err
	}
	out, err := versioning.Apply(ctx, g, cfg, versioning.Options{
		Placeholders: placeholders,
		Remap:        remap.lookup,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	res := relocate(g, out, remap)
	logger.Info("build complete", "files", len(res.Files), "inline", len(res.Inline))
	return res, nil
}

func cook(ctx context.Context, k *kitchen.Kitchen, fsys fs.FileSystem) error {
	specifiers, err := k.Config().ExpandEntryPoints(fsys)
	if err != nil {
		return err
	}
	if len(specifiers) == 0 {
		return errors.New("no entry points")
	}
	var entries []*graph.UrlInfo
	for _, s := range specifiers {
		u, err := k.InjectEntryPoint(s)
		if err != nil {
			return err
		}
		if u != nil {
			entries = append(entries, u)
		}
	}
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, u := range entries {
		p.Go(func(ctx context.Context) error {
			if err := k.Cook(ctx, u); err != nil {
				return err
			}
			return k.CookDependencies(ctx, u)
		})
	}
	if err := p.Wait(); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}
	return nil
}

// remapping redirects the URLs of nodes merged into a bundle to the
// bundle that now holds them.
type remapping struct {
	merged map[string]string
	hooks  []func(string) string
}

func (r *remapping) lookup(url string) string {
	if to, ok := r.merged[url]; ok {
		return to
	}
	for _, fn := range r.hooks {
		if to := fn(url); to != "" {
			return to
		}
	}
	return ""
}

// bundle runs every bundler on the used nodes of its kinds. Each result
// must be keyed by a node of the graph, whose content it replaces.
func bundle(ctx context.Context, k *kitchen.Kitchen) (*remapping, error) {
	g := k.Graph()
	r := &remapping{merged: make(map[string]string)}
	byKind := make(map[string][]*graph.UrlInfo)
	for _, u := range g.StronglyReachable() {
		if !u.IsInline {
			byKind[u.Type] = append(byKind[u.Type], u)
		}
	}
	for _, l := range k.Controller().Bundlers() {
		for _, kind := range slices.Sorted(maps.Keys(l.Fn)) {
			infos := byKind[kind]
			if len(infos) == 0 {
				continue
			}
			results, err := l.Fn[kind](ctx, k.HookContext(g.Root()), infos)
			if err != nil {
				if ctx.Err() != nil {
					return nil, context.Cause(ctx)
				}
				return nil, fmt.Errorf("bundling %s with %s: %w", kind, l.Plugin.Name, err)
			}
			for _, url := range slices.Sorted(maps.Keys(results)) {
				br := results[url]
				u := g.Get(url)
				if u == nil {
					return nil, fmt.Errorf("bundle %s from %s is not a node of the graph", url, l.Plugin.Name)
				}
				err := u.Refine(func() error {
					if err := u.SetContent(br.Content); err != nil {
						return err
					}
					if br.Sourcemap != nil {
						u.SetSourcemap(br.Sourcemap)
					}
					maps.Copy(u.Data, br.Data)
					return nil
				})
				if err != nil {
					return nil, fmt.Errorf("bundle %s: %w", url, err)
				}
				for _, src := range br.SourceURLs {
					if src != url {
						r.merged[src] = url
					}
				}
				if br.RemapReference != nil {
					r.hooks = append(r.hooks, br.RemapReference)
				}
				k.Logger().Debug("bundled", "url", url, "kind", kind, "sources", len(br.SourceURLs))
			}
		}
	}
	return r, nil
}

func optimize(ctx context.Context, k *kitchen.Kitchen) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, u := range k.Graph().StronglyReachable() {
		if len(k.Controller().Optimizers(u.Type)) == 0 {
			continue
		}
		p.Go(func(ctx context.Context) error {
			if err := k.Optimize(ctx, u); err != nil {
				return fmt.Errorf("optimizing %s: %w", u.URL(), err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}
	return nil
}

func relocate(g *graph.UrlGraph, out *versioning.Output, remap *remapping) *Result {
	res := &Result{
		Manifest:  make(map[string]string),
		Files:     make(map[string][]byte),
		Inline:    make(map[string][]byte),
		ImportMap: out.ImportMap,
		Graph:     g,
	}
	for _, u := range g.StronglyReachable() {
		p, ok := out.Paths[u.URL()]
		if !ok || u.Type == graph.KindDirectory {
			continue
		}
		if u.IsInline {
			res.Inline[p] = u.Content()
			continue
		}
		if _, merged := remap.merged[u.URL()]; merged {
			continue
		}
		versioned := out.Versioned[u.URL()]
		// search param versions address the same file
		if i := strings.IndexByte(versioned, '?'); i >= 0 {
			versioned = versioned[:i]
		}
		res.Files[versioned] = u.Content()
		res.Manifest[p] = versioned
	}
	return res
}

// Write stores the files of r below the build directory of cfg, followed
// by the manifest.
func Write(fsys fs.FileSystem, cfg *config.Config, r *Result) error {
	dir := cfg.BuildDirectory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.RootDirectory, dir)
	}
	for _, p := range slices.Sorted(maps.Keys(r.Files)) {
		out := filepath.Join(dir, filepath.FromSlash(p))
		if err := fsys.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := fsys.WriteFile(out, r.Files[p], 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", p, err)
		}
	}
	manifest, err := json.MarshalIndent(r.Manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return fsys.WriteFile(filepath.Join(dir, ManifestFile), append(manifest, '\n'), 0o644)
}
