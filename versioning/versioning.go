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

// Package versioning computes deterministic content-hash versions for a
// cooked build graph and substitutes them for the placeholders written
// into references during cooking.
//
// A node's version covers its own content and the content of every node
// whose public path is statically embedded in it, directly or through
// inline content. References resolved at runtime, through the import map
// or the global version map, do not influence the version of their owner.
package versioning

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/importmap"
	"bennypowers.dev/sous/inject"
	json "github.com/goccy/go-json"
)

// Strategy decides how a reference learns the version of its target.
type Strategy int

const (
	// StrategyInline substitutes the versioned path into the owner.
	StrategyInline Strategy = iota
	// StrategyImportMap keeps the plain path and maps it in the import map.
	StrategyImportMap
	// StrategyGlobal looks the path up at runtime through __v__().
	StrategyGlobal
)

func (s Strategy) String() string {
	switch s {
	case StrategyImportMap:
		return "importmap"
	case StrategyGlobal:
		return "global"
	}
	return "inline"
}

// VersionMapGlobal is the window property holding the runtime version map.
const VersionMapGlobal = "__sous_versions__"

var quotedPattern = regexp.MustCompile(`"!~\{\d{4,}\}~"|'!~\{\d{4,}\}~'`)

// Options configures Apply.
type Options struct {
	// Placeholders resolves tokens that no reference of the node claims.
	Placeholders *Placeholders
	// Remap, when set, redirects a target URL, such as a module merged
	// into a bundle, to the URL that replaces it.
	Remap  func(url string) string
	Logger *slog.Logger
}

// Output is the result of versioning a graph.
type Output struct {
	// Paths maps node URLs to unversioned build-relative paths.
	Paths map[string]string
	// Versions maps versioned node URLs to their version.
	Versions map[string]string
	// Versioned maps node URLs to their final build-relative path.
	Versioned map[string]string
	// ImportMap maps plain public paths to versioned ones.
	ImportMap *importmap.ImportMap
	// VersionMap is the runtime lookup table behind __v__().
	VersionMap map[string]string
}

// BuildPath returns the build-relative path of u, or false for nodes that
// are not written to disk, like remote resources.
func BuildPath(cfg *config.Config, u *graph.UrlInfo) (string, bool) {
	p, ok := config.URLToPath(u.URL())
	if !ok {
		return "", false
	}
	rel := relativePath(cfg, p)
	if rel == "" {
		return "", false
	}
	if u.Type == graph.KindDirectory || strings.HasSuffix(u.URL(), "/") {
		rel += "/"
	}
	return rel, true
}

// relativePath returns the build-relative form of the local path p. Files
// outside the root go below _external; the root itself is "".
func relativePath(cfg *config.Config, p string) string {
	rel, err := filepath.Rel(cfg.RootDirectory, p)
	rel = filepath.ToSlash(rel)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		rel = path.Join("_external", strings.TrimPrefix(filepath.ToSlash(p), "/"))
	}
	if rel == "." {
		return ""
	}
	return rel
}

type engine struct {
	g       *graph.UrlGraph
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	nodes   []*graph.UrlInfo
	byURL   map[string]*graph.UrlInfo
	hashes  map[string]string
	hasHTML bool
	out     *Output
}

// Apply versions every strongly reachable node of g. Content is rewritten
// inside each node's refine window; HTML entry points receive the import
// map and the runtime version map.
func Apply(ctx context.Context, g *graph.UrlGraph, cfg *config.Config, opts Options) (*Output, error) {
	e := &engine{
		g:      g,
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger,
		byURL:  make(map[string]*graph.UrlInfo),
		hashes: make(map[string]string),
		out: &Output{
			Paths:      make(map[string]string),
			Versions:   make(map[string]string),
			Versioned:  make(map[string]string),
			ImportMap:  &importmap.ImportMap{},
			VersionMap: make(map[string]string),
		},
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.nodes = g.StronglyReachable()
	slices.SortFunc(e.nodes, func(a, b *graph.UrlInfo) int { return strings.Compare(a.URL(), b.URL()) })
	for _, u := range e.nodes {
		e.byURL[u.URL()] = u
		if p, ok := BuildPath(cfg, u); ok {
			e.out.Paths[u.URL()] = p
		}
		e.hashes[u.URL()] = contentHash(u.Content())
		if u.Type == graph.KindHTML && u.IsEntryPoint {
			e.hasHTML = true
		}
	}

	if cfg.Versioning.Enabled {
		for _, u := range e.nodes {
			if err := ctx.Err(); err != nil {
				return nil, context.Cause(ctx)
			}
			if e.versionable(u) && u.Type != graph.KindDirectory {
				e.version(u)
			}
		}
		for _, u := range e.nodes {
			if e.versionable(u) && u.Type == graph.KindDirectory {
				e.versionDirectory(u)
			}
		}
		e.followSourcemaps()
	}
	for url, p := range e.out.Paths {
		if _, ok := e.out.Versioned[url]; !ok {
			e.out.Versioned[url] = p
		}
	}

	for _, u := range e.nodes {
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}
		if err := e.substitute(u); err != nil {
			return nil, fmt.Errorf("versioning %s: %w", u.URL(), err)
		}
	}
	for _, u := range e.nodes {
		if u.Type != graph.KindHTML || !u.IsEntryPoint {
			continue
		}
		if err := e.injectInto(u); err != nil {
			return nil, fmt.Errorf("injecting into %s: %w", u.URL(), err)
		}
	}
	return e.out, nil
}

func (e *engine) versionable(u *graph.UrlInfo) bool {
	if u.IsEntryPoint || u.IsInline {
		return false
	}
	switch u.Type {
	case graph.KindWebmanifest, graph.KindSourcemap:
		return false
	}
	if _, ok := e.out.Paths[u.URL()]; !ok || !strings.HasPrefix(u.URL(), "file:") {
		return false
	}
	return e.cfg.VersioningFor(u.Type)
}

// strategy returns how ref, owned by owner, is versioned.
func (e *engine) strategy(owner *graph.UrlInfo, ref *graph.Reference) Strategy {
	ctx := owner.Context()
	if !e.hasHTML || (ctx != nil && ctx.Isolated()) {
		return StrategyInline
	}
	switch {
	case ref.Type == graph.TypeJSURL && owner.IsJS() && quoted(owner.Content(), ref.GeneratedSpecifier):
		return StrategyGlobal
	case ref.Type == graph.TypeJSImport && owner.Type == graph.KindJSModule &&
		e.cfg.Versioning.ViaImportmap && ctx != nil && ctx.Supports(config.FeatureImportMap):
		return StrategyImportMap
	}
	return StrategyInline
}

func quoted(content []byte, token string) bool {
	if !isToken(token) {
		return false
	}
	return bytes.Contains(content, []byte(`"`+token+`"`)) || bytes.Contains(content, []byte(`'`+token+`'`))
}

func isToken(s string) bool {
	return s != "" && Pattern.FindString(s) == s
}

func (e *engine) target(ref *graph.Reference) *graph.UrlInfo {
	url := ref.URL()
	if e.opts.Remap != nil {
		if next := e.opts.Remap(url); next != "" {
			url = next
		}
	}
	return e.byURL[url]
}

// influencers returns every node whose content reaches the public form of
// u through statically substituted references, sorted by path.
func (e *engine) influencers(u *graph.UrlInfo) []*graph.UrlInfo {
	seen := map[string]bool{u.URL(): true}
	var out []*graph.UrlInfo
	add := func(t *graph.UrlInfo) bool {
		if seen[t.URL()] {
			return false
		}
		seen[t.URL()] = true
		out = append(out, t)
		return true
	}
	var walk func(n *graph.UrlInfo)
	walk = func(n *graph.UrlInfo) {
		for _, ref := range e.g.ReferencesToOthers(n) {
			if ref.IsImplicit || ref.IsIgnored() || ref.Type == graph.TypeSourcemapComment {
				continue
			}
			t := e.target(ref)
			if t == nil {
				continue
			}
			if ref.IsInline || t.IsInline {
				if !seen[t.URL()] {
					seen[t.URL()] = true
					walk(t)
				}
				continue
			}
			if !e.versionable(t) || e.strategy(n, ref) != StrategyInline {
				continue
			}
			if add(t) {
				walk(t)
			}
			if t.Type == graph.KindDirectory {
				for _, c := range e.contained(t) {
					if add(c) {
						walk(c)
					}
				}
			}
		}
	}
	walk(u)
	slices.SortFunc(out, func(a, b *graph.UrlInfo) int {
		return strings.Compare(e.out.Paths[a.URL()], e.out.Paths[b.URL()])
	})
	return out
}

func (e *engine) contained(dir *graph.UrlInfo) []*graph.UrlInfo {
	prefix := e.out.Paths[dir.URL()]
	var out []*graph.UrlInfo
	for _, u := range e.nodes {
		if p, ok := e.out.Paths[u.URL()]; ok && u != dir && strings.HasPrefix(p, prefix) {
			out = append(out, u)
		}
	}
	return out
}

func (e *engine) version(u *graph.UrlInfo) {
	h := sha256.New()
	writeLenPrefixed(h, []byte(e.hashes[u.URL()]))
	for _, dep := range e.influencers(u) {
		writeLenPrefixed(h, []byte(e.out.Paths[dep.URL()]))
		writeLenPrefixed(h, []byte(e.hashes[dep.URL()]))
	}
	e.record(u, hex.EncodeToString(h.Sum(nil)), e.cfg.Versioning.Method)
}

func (e *engine) versionDirectory(u *graph.UrlInfo) {
	h := sha256.New()
	for _, c := range e.contained(u) {
		v, ok := e.out.Versions[c.URL()]
		if !ok {
			v = e.hashes[c.URL()]
		}
		writeLenPrefixed(h, []byte(e.out.Paths[c.URL()]))
		writeLenPrefixed(h, []byte(v))
	}
	e.record(u, hex.EncodeToString(h.Sum(nil)), config.VersionInSearchParam)
}

func (e *engine) record(u *graph.UrlInfo, sum string, method config.VersioningMethod) {
	n := e.cfg.Versioning.Length
	if n <= 0 {
		n = 8
	}
	v := sum[:n]
	e.out.Versions[u.URL()] = v
	e.out.Versioned[u.URL()] = versionedPath(e.out.Paths[u.URL()], v, method)
	e.logger.Debug("versioned", "url", u.URL(), "version", v)
}

// followSourcemaps names each sourcemap file after its owner's versioned
// file.
func (e *engine) followSourcemaps() {
	if e.cfg.Versioning.Method == config.VersionInSearchParam {
		return
	}
	for _, u := range e.nodes {
		versioned, ok := e.out.Versions[u.URL()]
		if !ok || versioned == "" {
			continue
		}
		for _, ref := range e.g.ReferencesToOthers(u) {
			if ref.Type == graph.TypeSourcemapComment {
				e.out.Versioned[ref.URL()] = e.out.Versioned[u.URL()] + ".map"
			}
		}
	}
}

func versionedPath(p, v string, method config.VersioningMethod) string {
	if method == config.VersionInSearchParam || strings.HasSuffix(p, "/") {
		return p + "?v=" + v
	}
	dir, base := path.Split(p)
	ext := path.Ext(base)
	return dir + strings.TrimSuffix(base, ext) + "-" + v + ext
}

type replacement struct {
	strategy  Strategy
	specifier string
}

// tokens maps every placeholder claimed by a reference of n, or of its
// inline descendants, to its replacement. The first reference wins.
func (e *engine) tokens(n *graph.UrlInfo, into map[string]replacement, seen map[string]bool) {
	if seen[n.URL()] {
		return
	}
	seen[n.URL()] = true
	for _, ref := range e.g.ReferencesToOthers(n) {
		if ref.IsInline {
			if t := e.g.Target(ref); t != nil {
				e.tokens(t, into, seen)
			}
			continue
		}
		token := ref.GeneratedSpecifier
		if !isToken(token) {
			continue
		}
		if _, ok := into[token]; ok {
			continue
		}
		into[token] = e.replacementFor(n, ref)
	}
}

func (e *engine) replacementFor(owner *graph.UrlInfo, ref *graph.Reference) replacement {
	t := e.target(ref)
	if t == nil {
		return replacement{specifier: e.publicPath(ref.URL(), true)}
	}
	s := e.strategy(owner, ref)
	if _, versioned := e.out.Versions[t.URL()]; !versioned || s == StrategyInline {
		return replacement{specifier: e.publicPath(t.URL(), true)}
	}
	plain := e.publicPath(t.URL(), false)
	final := e.publicPath(t.URL(), true)
	switch s {
	case StrategyImportMap:
		e.out.ImportMap.Set(plain, final)
	case StrategyGlobal:
		e.out.VersionMap[plain] = final
	}
	return replacement{strategy: s, specifier: plain}
}

func (e *engine) publicPath(url string, versioned bool) string {
	if versioned {
		if p, ok := e.out.Versioned[url]; ok {
			return e.cfg.BasePath() + p
		}
	}
	if p, ok := e.out.Paths[url]; ok {
		return e.cfg.BasePath() + p
	}
	// Only weakly referenced, so never written. The reference keeps the
	// plain build path rather than the local file URL.
	if p, ok := config.URLToPath(url); ok {
		rel := relativePath(e.cfg, p)
		if rel != "" && strings.HasSuffix(url, "/") {
			rel += "/"
		}
		return e.cfg.BasePath() + rel
	}
	return url
}

func (e *engine) substitute(u *graph.UrlInfo) error {
	content := u.Content()
	if content == nil {
		return nil
	}
	tokens := make(map[string]replacement)
	e.tokens(u, tokens, make(map[string]bool))

	out := quotedPattern.ReplaceAllFunc(content, func(m []byte) []byte {
		r, ok := tokens[string(m[1:len(m)-1])]
		if !ok || r.strategy != StrategyGlobal {
			return m
		}
		return []byte(`__v__("` + r.specifier + `")`)
	})
	out = Pattern.ReplaceAllFunc(out, func(m []byte) []byte {
		if r, ok := tokens[string(m)]; ok {
			return []byte(r.specifier)
		}
		if e.opts.Placeholders != nil {
			if url, ok := e.opts.Placeholders.URL(string(m)); ok {
				return []byte(e.publicPath(url, true))
			}
		}
		e.logger.Warn("unknown placeholder", "url", u.URL(), "token", string(m))
		return m
	})
	out = e.renameSourcemap(u, out)
	if bytes.Equal(out, content) {
		return nil
	}
	return u.Refine(func() error { return u.SetContent(out) })
}

func (e *engine) renameSourcemap(u *graph.UrlInfo, content []byte) []byte {
	for _, ref := range e.g.ReferencesToOthers(u) {
		if ref.Type != graph.TypeSourcemapComment {
			continue
		}
		name, ok := e.out.Versioned[ref.URL()]
		if !ok || name == e.out.Paths[ref.URL()] {
			continue
		}
		marker := []byte("sourceMappingURL=" + ref.GeneratedSpecifier)
		i := bytes.LastIndex(content, marker)
		if i < 0 {
			continue
		}
		var b bytes.Buffer
		b.Write(content[:i])
		b.WriteString("sourceMappingURL=" + path.Base(name))
		b.Write(content[i+len(marker):])
		content = b.Bytes()
	}
	return content
}

func (e *engine) injectInto(u *graph.UrlInfo) error {
	content := u.Content()
	var err error
	if len(e.out.VersionMap) > 0 {
		versions, merr := json.Marshal(e.out.VersionMap)
		if merr != nil {
			return merr
		}
		script := fmt.Sprintf("window.%s = %s;\nwindow.__v__ = (s) => window.%s[s] || s;", VersionMapGlobal, versions, VersionMapGlobal)
		if content, err = inject.Script(content, script); err != nil {
			return err
		}
	}
	if !e.out.ImportMap.IsEmpty() {
		if content, _, err = inject.ImportMap(content, e.out.ImportMap); err != nil {
			return err
		}
	}
	if bytes.Equal(content, u.Content()) {
		return nil
	}
	return u.Refine(func() error { return u.SetContent(content) })
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(Normalize(content))
	return hex.EncodeToString(sum[:])
}

// writeLenPrefixed frames b so that concatenated fields cannot collide.
func writeLenPrefixed(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}
