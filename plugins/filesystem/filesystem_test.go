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

package filesystem_test

import (
	"context"
	"errors"
	iofs "io/fs"
	"testing"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/mapfs"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/plugins/filesystem"
)

func setup(t *testing.T) (*plugin.Plugin, *plugin.HookContext, *graph.UrlGraph) {
	t.Helper()
	mfs := mapfs.New()
	mfs.AddFile("/project/index.html", "<html></html>", 0644)
	mfs.AddFile("/project/src/app.js", "export {}", 0644)
	mfs.AddFile("/project/src/assets/logo.svg", "<svg/>", 0644)
	mfs.AddDir("/project/src/empty", 0755)
	cfg := config.Default()
	cfg.RootDirectory = "/project"
	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	return filesystem.New(mfs), &plugin.HookContext{Mode: config.ModeBuild, Config: cfg, Graph: g}, g
}

func TestResolve(t *testing.T) {
	p, hc, _ := setup(t)
	tests := []struct {
		name string
		ref  graph.Reference
		want string
	}{
		{"relative", graph.Reference{OwnerURL: "file:///project/src/app.js", Specifier: "./util.js", Type: graph.TypeJSImport}, "file:///project/src/util.js"},
		{"parent", graph.Reference{OwnerURL: "file:///project/src/app.js", Specifier: "../lib/x.js", Type: graph.TypeJSImport}, "file:///project/lib/x.js"},
		{"root relative", graph.Reference{OwnerURL: "file:///project/src/app.js", Specifier: "/img/a.png", Type: graph.TypeJSURL}, "file:///project/img/a.png"},
		{"entry point", graph.Reference{OwnerURL: "file:///project/", Specifier: "index.html", Type: graph.TypeEntryPoint}, "file:///project/index.html"},
		{"request", graph.Reference{OwnerURL: "file:///project/", Specifier: "/src/app.js", Type: graph.TypeHTTPRequest}, "file:///project/src/app.js"},
		{"outside root", graph.Reference{OwnerURL: "file:///project/", Specifier: "/@fs/shared/x.js", Type: graph.TypeHTTPRequest}, "file:///shared/x.js"},
		{"relative image", graph.Reference{OwnerURL: "file:///project/index.html", Specifier: "logo.png", Type: graph.TypeImgSrc}, "file:///project/logo.png"},
		{"keeps query", graph.Reference{OwnerURL: "file:///project/index.html", Specifier: "./a.css?inline", Type: graph.TypeLinkHref}, "file:///project/a.css?inline"},
		{"bare import", graph.Reference{OwnerURL: "file:///project/src/app.js", Specifier: "lit", Type: graph.TypeJSImport}, ""},
		{"subpath import", graph.Reference{OwnerURL: "file:///project/src/app.js", Specifier: "#utils", Type: graph.TypeJSImport}, ""},
		{"fragment", graph.Reference{OwnerURL: "file:///project/index.html", Specifier: "#top", Type: graph.TypeLinkHref}, "ignore:#top"},
		{"remote", graph.Reference{OwnerURL: "file:///project/index.html", Specifier: "https://cdn.example.com/x.js", Type: graph.TypeScript}, ""},
		{"data", graph.Reference{OwnerURL: "file:///project/index.html", Specifier: "data:image/png;base64,AA", Type: graph.TypeImgSrc}, "ignore:data:image/png;base64,AA"},
		{"remote owner", graph.Reference{OwnerURL: "https://cdn.example.com/x.js", Specifier: "./y.js", Type: graph.TypeJSImport}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ResolveReference(hc, &tt.ref)
			if err != nil {
				t.Fatalf("ResolveReference failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedirectDirectory(t *testing.T) {
	p, hc, _ := setup(t)
	ref := &graph.Reference{Specifier: "./assets"}
	got, err := p.RedirectReference(hc, ref, "file:///project/src/assets")
	if err != nil || got != "file:///project/src/assets/" {
		t.Errorf("redirect = %q, %v", got, err)
	}
	got, err = p.RedirectReference(hc, ref, "file:///project/src/app.js")
	if err != nil || got != "" {
		t.Errorf("files should not redirect: %q, %v", got, err)
	}
	got, _ = p.RedirectReference(hc, ref, "file:///project/src/assets/")
	if got != "" {
		t.Errorf("directory URL redirected again: %q", got)
	}
}

func fetchURL(t *testing.T, p *plugin.Plugin, hc *plugin.HookContext, g *graph.UrlGraph, u string) (*plugin.Result, error) {
	t.Helper()
	ref := g.CreateReference(g.Root(), &graph.Reference{Specifier: u, Type: graph.TypeEntryPoint})
	if err := ref.SetURL(u); err != nil {
		t.Fatal(err)
	}
	info, err := g.Finalize(ref)
	if err != nil {
		t.Fatal(err)
	}
	return p.FetchUrlContent.For("")(context.Background(), hc, info)
}

func TestFetchFile(t *testing.T) {
	p, hc, g := setup(t)
	r, err := fetchURL(t, p, hc, g, "file:///project/src/assets/logo.svg")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if string(r.Content) != "<svg/>" || r.ContentType != "image/svg+xml" {
		t.Errorf("result = %q %s", r.Content, r.ContentType)
	}
}

func TestFetchMissing(t *testing.T) {
	p, hc, g := setup(t)
	_, err := fetchURL(t, p, hc, g, "file:///project/missing.js")
	if !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestFetchDirectory(t *testing.T) {
	p, hc, g := setup(t)
	if _, err := fetchURL(t, p, hc, g, "file:///project/src/"); err == nil {
		t.Fatal("expected directory error by default")
	}
	hc.Config.Directories = config.DirectoriesPreserve
	r, err := fetchURL(t, p, hc, g, "file:///project/src/")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got := string(r.Content); got != `["app.js","assets/","empty/"]` {
		t.Errorf("listing = %s", got)
	}
	if r.Type != graph.KindDirectory {
		t.Errorf("type = %s", r.Type)
	}
}

func TestFetchIgnoresOtherSchemes(t *testing.T) {
	p, hc, g := setup(t)
	r, err := fetchURL(t, p, hc, g, "https://cdn.example.com/x.js")
	if r != nil || err != nil {
		t.Errorf("expected no result, got %v, %v", r, err)
	}
}
