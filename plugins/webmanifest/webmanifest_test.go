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

package webmanifest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tidwall/gjson"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/plugins/webmanifest"
)

type collector struct {
	g     *graph.UrlGraph
	owner *graph.UrlInfo
	refs  []*graph.Reference
}

func (c *collector) Found(ref *graph.Reference) (*graph.Reference, error) {
	ref = c.g.CreateReference(c.owner, ref)
	if err := ref.SetURL("file:///project/" + ref.Specifier); err != nil {
		return nil, err
	}
	ref.GeneratedSpecifier = "/static/" + ref.Specifier
	c.refs = append(c.refs, ref)
	return ref, nil
}

func (c *collector) FoundInline(*graph.Reference, graph.InlineInput) (*graph.Reference, error) {
	return nil, errors.New("not supported")
}

func (c *collector) CookInline(context.Context, *graph.Reference) (*graph.UrlInfo, error) {
	return nil, errors.New("not supported")
}

func cook(t *testing.T, content string) (*plugin.Result, *collector, error) {
	t.Helper()
	cfg := config.Default()
	cfg.RootDirectory = "/project"
	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	ref := g.CreateReference(g.Root(), &graph.Reference{Specifier: "./app.webmanifest", Type: graph.TypeEntryPoint})
	if err := ref.SetURL("file:///project/app.webmanifest"); err != nil {
		t.Fatal(err)
	}
	u, err := g.Finalize(ref)
	if err != nil {
		t.Fatal(err)
	}
	u.Type = graph.KindWebmanifest
	if err := u.SetOriginalContent([]byte(content)); err != nil {
		t.Fatal(err)
	}
	c := &collector{g: g, owner: u}
	hc := &plugin.HookContext{Mode: config.ModeBuild, Config: cfg, Graph: g, References: c}
	r, err := webmanifest.New().TransformUrlContent.For(graph.KindWebmanifest)(context.Background(), hc, u)
	return r, c, err
}

func TestRewritesIcons(t *testing.T) {
	src := `{"name":"App","icons":[{"src":"icon-192.png","sizes":"192x192"},{"src":"icon-512.png"},{"sizes":"any"}]}`
	r, c, err := cook(t, src)
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if len(c.refs) != 2 {
		t.Fatalf("found %d references, want 2", len(c.refs))
	}
	first := c.refs[0]
	if first.Type != graph.TypeWebmanifestIcon || src[first.Start:first.End] != "icon-192.png" {
		t.Errorf("reference %+v", first)
	}
	if got := gjson.GetBytes(r.Content, "icons.1.src").Str; got != "/static/icon-512.png" {
		t.Errorf("icons.1.src = %q", got)
	}
	if got := gjson.GetBytes(r.Content, "name").Str; got != "App" {
		t.Errorf("other fields changed: %s", r.Content)
	}
}

func TestNoIcons(t *testing.T) {
	r, c, err := cook(t, `{"name":"App"}`)
	if r != nil || err != nil || len(c.refs) != 0 {
		t.Errorf("expected nothing, got %v %v %d", r, err, len(c.refs))
	}
}

func TestInvalidManifest(t *testing.T) {
	_, _, err := cook(t, `{"icons":[`)
	var syntax *plugin.SyntaxError
	if !errors.As(err, &syntax) {
		t.Errorf("expected a SyntaxError, got %v", err)
	}
}
