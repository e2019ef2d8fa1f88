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

package transformer_test

import (
	"strings"
	"testing"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/mapfs"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/sourcemap"
	"bennypowers.dev/sous/transformer"
)

func newNode(t *testing.T, cfg *config.Config, name, content string) (*graph.UrlGraph, *graph.UrlInfo) {
	t.Helper()
	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	ref := g.CreateReference(g.Root(), &graph.Reference{Specifier: "./" + name, Type: graph.TypeEntryPoint})
	if err := ref.SetURL(cfg.RootURL() + name); err != nil {
		t.Fatal(err)
	}
	u, err := g.Finalize(ref)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.SetOriginalContent([]byte(content)); err != nil {
		t.Fatal(err)
	}
	return g, u
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RootDirectory = "/project"
	return cfg
}

func TestApplyReplacesContentAndMetadata(t *testing.T) {
	cfg := testConfig()
	_, u := newNode(t, cfg, "app.ts", "let a: number = 1")
	tr := transformer.New(cfg, nil, nil)
	err := tr.Apply(u, &plugin.Result{
		Content:     []byte("let a = 1"),
		ContentType: "text/javascript",
		Type:        graph.KindJSModule,
		Data:        map[string]any{"transpiled": true},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if string(u.Content()) != "let a = 1" {
		t.Errorf("content = %q", u.Content())
	}
	if string(u.OriginalContent()) != "let a: number = 1" {
		t.Errorf("original content changed: %q", u.OriginalContent())
	}
	if u.Type != graph.KindJSModule || u.ContentType != "text/javascript" {
		t.Errorf("metadata not applied: %s %s", u.Type, u.ContentType)
	}
	if u.Data["transpiled"] != true {
		t.Error("data not merged")
	}
	if err := tr.Apply(u, nil); err != nil {
		t.Errorf("nil result should be a no-op: %v", err)
	}
}

func TestApplyComposesSourcemaps(t *testing.T) {
	cfg := testConfig()
	_, u := newNode(t, cfg, "app.js", "one\ntwo")
	tr := transformer.New(cfg, nil, nil)
	first, _ := sourcemap.Identity(u.URL(), u.Content()).Bytes()
	if err := tr.Apply(u, &plugin.Result{Content: []byte("one\ntwo"), Sourcemap: first}); err != nil {
		t.Fatal(err)
	}
	// the second transform moved line 1 to line 0
	second := []byte(`{"version":3,"sources":["app.js"],"names":[],"mappings":"AACA"}`)
	if err := tr.Apply(u, &plugin.Result{Content: []byte("two"), Sourcemap: second}); err != nil {
		t.Fatal(err)
	}
	m, err := sourcemap.Parse(u.Sourcemap())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Sources) != 1 || m.Sources[0] != u.URL() {
		t.Errorf("composed sources = %v", m.Sources)
	}
	if m.Mappings != "AACA" {
		t.Errorf("composed mappings = %q", m.Mappings)
	}
}

func TestApplyRejectsLockedContent(t *testing.T) {
	cfg := testConfig()
	_, u := newNode(t, cfg, "app.js", "a")
	u.Lock()
	tr := transformer.New(cfg, nil, nil)
	if err := tr.Apply(u, &plugin.Result{Content: []byte("b")}); err == nil {
		t.Fatal("expected locked content error")
	}
	err := u.Refine(func() error {
		return tr.Apply(u, &plugin.Result{Content: []byte("b")})
	})
	if err != nil || string(u.Content()) != "b" {
		t.Errorf("refine window should allow mutation: %v %q", err, u.Content())
	}
}

func TestFinalizeFileSourcemap(t *testing.T) {
	cfg := testConfig()
	cfg.Sourcemaps = config.SourcemapsFile
	g, u := newNode(t, cfg, "app.js", "console.log(1)")
	u.Type = graph.KindJSModule
	sm, _ := sourcemap.Identity(u.URL(), u.Content()).Bytes()
	u.SetSourcemap(sm)
	tr := transformer.New(cfg, nil, nil)

	file, err := tr.Finalize(g, u)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if file == nil {
		t.Fatal("expected a sourcemap file")
	}
	want := "console.log(1)\n//# sourceMappingURL=app.js.map"
	if string(u.Content()) != want {
		t.Errorf("content = %q", u.Content())
	}
	ref := file.Reference
	if ref.Type != graph.TypeSourcemapComment || ref.URL() != "file:///project/app.js.map" {
		t.Errorf("unexpected reference %+v", ref)
	}
	if got := string(u.Content()[ref.Start:ref.End]); got != "app.js.map" {
		t.Errorf("span = %q", got)
	}
	if !strings.Contains(string(file.Content), `"file":"app.js"`) {
		t.Errorf("map file field not set: %s", file.Content)
	}

	if err := g.ReplaceReferences(u, []*graph.Reference{ref}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Materialize(g, file); err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	target := g.Get("file:///project/app.js.map")
	if target == nil || target.Type != graph.KindSourcemap || !target.Locked() {
		t.Fatalf("sourcemap node not materialized: %+v", target)
	}
}

func TestFinalizeInlineSourcemap(t *testing.T) {
	cfg := testConfig()
	cfg.Kinds = map[string]config.KindOptions{graph.KindCSS: {Sourcemaps: config.SourcemapsInline}}
	g, u := newNode(t, cfg, "app.css", "a{}")
	u.Type = graph.KindCSS
	u.SetSourcemap([]byte(`{"version":3,"sources":[],"names":[],"mappings":""}`))
	file, err := transformer.New(cfg, nil, nil).Finalize(g, u)
	if err != nil || file != nil {
		t.Fatalf("Finalize = %v, %v", file, err)
	}
	if !strings.HasPrefix(string(u.Content()), "a{}\n/*# sourceMappingURL=data:application/json;charset=utf-8;base64,") {
		t.Errorf("content = %q", u.Content())
	}
}

func TestFinalizeWithoutSourcemap(t *testing.T) {
	cfg := testConfig()
	cfg.Sourcemaps = config.SourcemapsFile
	g, u := newNode(t, cfg, "app.js", "x")
	u.Type = graph.KindJSModule
	file, err := transformer.New(cfg, nil, nil).Finalize(g, u)
	if err != nil || file != nil || string(u.Content()) != "x" {
		t.Errorf("expected untouched node, got %v %v %q", file, err, u.Content())
	}
}

func TestPersistDebug(t *testing.T) {
	cfg := testConfig()
	cfg.DebugDirectory = ".debug"
	_, u := newNode(t, cfg, "src/app.js", "cooked")
	mfs := mapfs.New()
	if err := transformer.New(cfg, mfs, nil).PersistDebug(u); err != nil {
		t.Fatalf("PersistDebug failed: %v", err)
	}
	data, err := mfs.ReadFile("/project/.debug/src/app.js")
	if err != nil || string(data) != "cooked" {
		t.Errorf("debug copy = %q, %v", data, err)
	}
}

func TestPersistDebugSkipsWhenDisabled(t *testing.T) {
	cfg := testConfig()
	_, u := newNode(t, cfg, "app.js", "cooked")
	mfs := mapfs.New()
	if err := transformer.New(cfg, mfs, nil).PersistDebug(u); err != nil {
		t.Fatal(err)
	}
	if len(mfs.ListFiles()) != 0 {
		t.Errorf("unexpected files: %v", mfs.ListFiles())
	}
}
