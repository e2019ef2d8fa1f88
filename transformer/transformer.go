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

// Package transformer applies hook results to nodes, composes their
// sourcemaps, materializes sourcemap files and writes debug copies.
package transformer

import (
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"strings"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/sourcemap"
)

// Transformer mutates node content on behalf of the kitchen.
type Transformer struct {
	cfg    *config.Config
	fsys   fs.FileSystem
	logger *slog.Logger
}

// New returns a transformer. fsys is only used for debug copies and may
// be nil when none are wanted.
func New(cfg *config.Config, fsys fs.FileSystem, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{cfg: cfg, fsys: fsys, logger: logger}
}

// Apply stores a hook result on u. Content, parsed form and metadata are
// replaced when set; a sourcemap is composed with the one already held so
// that it keeps pointing at the original source.
func (t *Transformer) Apply(u *graph.UrlInfo, r *plugin.Result) error {
	if r == nil {
		return nil
	}
	if r.Content != nil {
		previous := u.Content()
		if err := u.SetContent(r.Content); err != nil {
			return err
		}
		if r.Sourcemap == nil && u.Sourcemap() != nil && string(previous) != string(r.Content) {
			t.logger.Debug("content changed without a sourcemap, dropping stale map", "url", u.URL())
			u.SetSourcemap(nil)
		}
	}
	if r.Sourcemap != nil {
		composed, err := compose(r.Sourcemap, u.Sourcemap())
		if err != nil {
			return fmt.Errorf("composing sourcemap: %w", err)
		}
		u.SetSourcemap(composed)
	}
	if r.Parsed != nil {
		u.SetParsed(r.Parsed)
	}
	if r.ContentType != "" {
		u.ContentType = r.ContentType
	}
	if r.Type != "" {
		u.Type = r.Type
	}
	if r.Subtype != "" {
		u.Subtype = r.Subtype
	}
	maps.Copy(u.Data, r.Data)
	return nil
}

func compose(outer, inner []byte) ([]byte, error) {
	if inner == nil {
		if _, err := sourcemap.Parse(outer); err != nil {
			return nil, err
		}
		return outer, nil
	}
	o, err := sourcemap.Parse(outer)
	if err != nil {
		return nil, err
	}
	i, err := sourcemap.Parse(inner)
	if err != nil {
		return nil, err
	}
	m, err := sourcemap.Compose(o, i)
	if err != nil {
		return nil, err
	}
	return m.Bytes()
}

// SourcemapFile is a sourcemap to be written as its own node.
type SourcemapFile struct {
	// Reference is the sourcemap_comment reference from the owner to the
	// map. It still has to be committed with the owner's other references.
	Reference *graph.Reference
	Content   []byte
}

// Finalize appends the sourcemap comment to u according to the configured
// mode and returns the map to materialize, if any. Inline nodes never get
// a separate map file.
func (t *Transformer) Finalize(g *graph.UrlGraph, u *graph.UrlInfo) (*SourcemapFile, error) {
	sm := u.Sourcemap()
	if sm == nil || (u.Type != graph.KindCSS && !u.IsJS()) {
		return nil, nil
	}
	mode := t.cfg.SourcemapsFor(u.Type)
	if mode == config.SourcemapsFile && u.IsInline {
		mode = config.SourcemapsInline
	}
	switch mode {
	case config.SourcemapsInline:
		return nil, u.SetContent(append(withoutComment(u.Content()), sourcemap.Comment(u.Type, sourcemap.DataURL(sm))...))
	case config.SourcemapsFile:
		filename := u.Filename() + ".map"
		sm, err := sourcemap.SetFile(sm, u.Filename())
		if err != nil {
			return nil, err
		}
		content := withoutComment(u.Content())
		comment := sourcemap.Comment(u.Type, filename)
		start := len(content) + strings.Index(comment, filename)
		if err := u.SetContent(append(content, comment...)); err != nil {
			return nil, err
		}
		ref := g.CreateReference(u, &graph.Reference{
			Specifier:    filename,
			Type:         graph.TypeSourcemapComment,
			ExpectedType: graph.KindSourcemap,
			Start:        start,
			End:          start + len(filename),
		})
		if err := ref.SetURL(mapURL(u.URL())); err != nil {
			return nil, err
		}
		ref.GeneratedURL = ref.URL()
		ref.GeneratedSpecifier = filename
		return &SourcemapFile{Reference: ref, Content: sm}, nil
	}
	return nil, nil
}

// Materialize stores the map content on its node once the reference to it
// is committed.
func (t *Transformer) Materialize(g *graph.UrlGraph, f *SourcemapFile) error {
	target := g.Target(f.Reference)
	if target == nil {
		return fmt.Errorf("sourcemap %s is not in the graph", f.Reference.URL())
	}
	target.ResetContent()
	target.Type = graph.KindSourcemap
	target.ContentType = "application/json"
	if err := target.SetOriginalContent(f.Content); err != nil {
		return err
	}
	target.MarkCooked(target.ModifiedAt())
	target.Lock()
	return nil
}

func mapURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i] + ".map" + u[i:]
	}
	return u + ".map"
}

// withoutComment strips a trailing sourceMappingURL comment left by an
// earlier tool.
func withoutComment(content []byte) []byte {
	s := string(content)
	for _, marker := range []string{"\n//# sourceMappingURL=", "\n/*# sourceMappingURL="} {
		if i := strings.LastIndex(s, marker); i >= 0 && !strings.Contains(s[i+1:], "\n") {
			s = s[:i]
		}
	}
	return []byte(s)
}

// PersistDebug writes the cooked content of u below the debug directory,
// mirroring its path relative to the root. It only runs for nodes flagged
// as debug, or for every file node when a debug directory is configured.
func (t *Transformer) PersistDebug(u *graph.UrlInfo) error {
	if t.fsys == nil || (t.cfg.DebugDirectory == "" && !u.Debug) {
		return nil
	}
	p, ok := config.URLToPath(u.URL())
	if !ok || u.IsInline {
		return nil
	}
	rel, err := filepath.Rel(t.cfg.RootDirectory, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	dir := t.cfg.DebugDirectory
	if dir == "" {
		dir = filepath.Join(t.cfg.RootDirectory, ".sous")
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(t.cfg.RootDirectory, dir)
	}
	out := filepath.Join(dir, rel)
	if err := t.fsys.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	t.logger.Debug("writing debug copy", "url", u.URL(), "path", out)
	return t.fsys.WriteFile(out, u.Content(), 0o644)
}
