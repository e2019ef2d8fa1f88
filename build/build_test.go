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

package build_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"bennypowers.dev/sous/build"
	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/mapfs"
	"bennypowers.dev/sous/kitchen"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/plugins/filesystem"
	"bennypowers.dev/sous/plugins/html"
	"bennypowers.dev/sous/plugins/jsmodule"
	"bennypowers.dev/sous/testutil"
	"github.com/google/go-cmp/cmp"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RootDirectory = "/project"
	cfg.Versioning.ViaImportmap = false
	return cfg
}

func run(t *testing.T, mfs *mapfs.MapFileSystem, cfg *config.Config, extra ...*plugin.Plugin) *build.Result {
	t.Helper()
	plugins := append([]*plugin.Plugin{filesystem.New(mfs), html.New(), jsmodule.New()}, extra...)
	res, err := build.Run(context.Background(), cfg, build.Options{FileSystem: mfs, Plugins: plugins})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

var (
	appPattern  = regexp.MustCompile(`^app-[0-9a-f]{8}\.js$`)
	utilPattern = regexp.MustCompile(`^util-[0-9a-f]{8}\.js$`)
)

func TestRunVersionsEveryDependency(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "build/basic", "/project")
	res := run(t, mfs, testConfig())

	app, util := res.Manifest["app.js"], res.Manifest["util.js"]
	if !appPattern.MatchString(app) {
		t.Fatalf("app.js versioned as %q", app)
	}
	if !utilPattern.MatchString(util) {
		t.Fatalf("util.js versioned as %q", util)
	}
	if res.Manifest["index.html"] != "index.html" {
		t.Errorf("entry point must keep its name, got %q", res.Manifest["index.html"])
	}
	if len(res.Files) != 3 {
		t.Errorf("expected 3 files, got %v", keys(res.Files))
	}

	index := string(res.Files["index.html"])
	if !strings.Contains(index, `src="/`+app+`"`) {
		t.Errorf("index.html does not load %s:\n%s", app, index)
	}
	appContent := string(res.Files[app])
	if !strings.Contains(appContent, `import { util } from "/`+util+`";`) {
		t.Errorf("app does not import %s:\n%s", util, appContent)
	}
	if strings.Contains(appContent, "!~{") {
		t.Errorf("placeholder left in output:\n%s", appContent)
	}
	if got := string(res.Files[util]); !strings.Contains(got, "export function util()") {
		t.Errorf("util content = %q", got)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	first := run(t, testutil.NewFixtureFS(t, "build/basic", "/project"), testConfig())
	second := run(t, testutil.NewFixtureFS(t, "build/basic", "/project"), testConfig())
	if diff := cmp.Diff(first.Manifest, second.Manifest); diff != "" {
		t.Errorf("manifest changed between identical builds (-first +second):\n%s", diff)
	}
}

func TestRunCascadesLeafChanges(t *testing.T) {
	before := run(t, testutil.NewFixtureFS(t, "build/basic", "/project"), testConfig())

	mfs := testutil.NewFixtureFS(t, "build/basic", "/project")
	mfs.AddFile("/project/util.js", "export function util() {\n  return 2;\n}\n", 0644)
	after := run(t, mfs, testConfig())

	if before.Manifest["util.js"] == after.Manifest["util.js"] {
		t.Error("util.js version did not change with its content")
	}
	if before.Manifest["app.js"] == after.Manifest["app.js"] {
		t.Error("app.js version did not change with the file it embeds")
	}
}

func TestRunImportMapStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Versioning.ViaImportmap = true
	cfg.RuntimeCompat = map[string]string{"chrome": "120"}
	res := run(t, testutil.NewFixtureFS(t, "build/basic", "/project"), cfg)

	util := res.Manifest["util.js"]
	if !utilPattern.MatchString(util) {
		t.Fatalf("util.js versioned as %q", util)
	}
	app := string(res.Files[res.Manifest["app.js"]])
	if !strings.Contains(app, `from "/util.js"`) {
		t.Errorf("import should stay unversioned:\n%s", app)
	}
	if got := res.ImportMap.Imports["/util.js"]; got != "/"+util {
		t.Errorf("import map entry = %q", got)
	}
	index := string(res.Files["index.html"])
	if !strings.Contains(index, `<script type="importmap">`) || !strings.Contains(index, "/"+util) {
		t.Errorf("import map not injected:\n%s", index)
	}
}

func TestRunWithVersioningDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Versioning.Enabled = false
	res := run(t, testutil.NewFixtureFS(t, "build/basic", "/project"), cfg)
	want := map[string]string{"index.html": "index.html", "app.js": "app.js", "util.js": "util.js"}
	if diff := cmp.Diff(want, res.Manifest); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(res.Files["app.js"]), `from "/util.js"`) {
		t.Errorf("app.js = %s", res.Files["app.js"])
	}
}

func TestRunBundlesMergedSources(t *testing.T) {
	bundler := &plugin.Plugin{
		Name: "concat",
		Bundle: map[string]plugin.BundleFunc{
			graph.KindJSModule: func(ctx context.Context, hc *plugin.HookContext, infos []*graph.UrlInfo) (map[string]plugin.BundleResult, error) {
				app := "file:///project/app.js"
				return map[string]plugin.BundleResult{
					app: {
						Content:    []byte("function util() { return 1; }\nutil();\n"),
						SourceURLs: []string{app, "file:///project/util.js"},
					},
				}, nil
			},
		},
	}
	res := run(t, testutil.NewFixtureFS(t, "build/basic", "/project"), testConfig(), bundler)

	if _, ok := res.Manifest["util.js"]; ok {
		t.Error("merged module should not be written")
	}
	app := res.Manifest["app.js"]
	if !appPattern.MatchString(app) {
		t.Fatalf("app.js versioned as %q", app)
	}
	if got := string(res.Files[app]); got != "function util() { return 1; }\nutil();\n" {
		t.Errorf("bundle content = %q", got)
	}
}

func TestRunOptimizes(t *testing.T) {
	minify := &plugin.Plugin{
		Name: "minify",
		OptimizeUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindJSModule: func(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
				return &plugin.Result{Content: []byte(strings.ReplaceAll(string(u.Content()), "\n", ""))}, nil
			},
		}),
	}
	res := run(t, testutil.NewFixtureFS(t, "build/basic", "/project"), testConfig(), minify)
	util := string(res.Files[res.Manifest["util.js"]])
	if util != "export function util() {  return 1;}" {
		t.Errorf("optimized util = %q", util)
	}
}

func TestRunWeakOnlyTargetKeepsBuildPath(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "build/basic", "/project")
	mfs.AddFile("/project/lazy.js", "export const lazy = 1;\n", 0644)
	mfs.AddFile("/project/index.html", `<html><head>
<link rel="preload" href="./lazy.js" as="script">
<link rel="modulepreload" href="./app.js">
<script type="module" src="./app.js"></script>
</head></html>
`, 0644)
	res := run(t, mfs, testConfig())

	index := string(res.Files["index.html"])
	if strings.Contains(index, "file://") {
		t.Errorf("local file URL leaked into the build:\n%s", index)
	}
	if !strings.Contains(index, `<link rel="preload" href="/lazy.js" as="script">`) {
		t.Errorf("weak-only target should keep its plain build path:\n%s", index)
	}
	if _, ok := res.Manifest["lazy.js"]; ok {
		t.Error("a target with no strong reference must not be emitted")
	}
	app := res.Manifest["app.js"]
	if !appPattern.MatchString(app) || !strings.Contains(index, `<link rel="modulepreload" href="/`+app+`">`) {
		t.Errorf("modulepreload of an emitted module should be versioned (%s):\n%s", app, index)
	}
}

func TestRunCollectsInlineContent(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "build/basic", "/project")
	mfs.AddFile("/project/index.html", "<html><body>\n<script type=\"module\">import \"./util.js\";</script>\n</body></html>\n", 0644)
	res := run(t, mfs, testConfig())

	util := res.Manifest["util.js"]
	inline, ok := res.Inline["index.html@L2C23.js"]
	if !ok {
		t.Fatalf("inline script missing, got %v", keys(res.Inline))
	}
	if string(inline) != `import "/`+util+`";` {
		t.Errorf("inline content = %q", inline)
	}
	if !strings.Contains(string(res.Files["index.html"]), `import "/`+util+`";`) {
		t.Errorf("index.html = %s", res.Files["index.html"])
	}
}

func TestRunMissingEntryPoint(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/project", 0755)
	_, err := build.Run(context.Background(), testConfig(), build.Options{
		FileSystem: mfs,
		Plugins:    []*plugin.Plugin{filesystem.New(mfs)},
	})
	var fe *kitchen.FetchError
	if !errors.As(err, &fe) || !fe.IsNotFound() {
		t.Fatalf("expected a not found fetch error, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "build/basic", "/project")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := build.Run(ctx, testConfig(), build.Options{
		FileSystem: mfs,
		Plugins:    []*plugin.Plugin{filesystem.New(mfs), html.New(), jsmodule.New()},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := kitchen.Stage(err); ok {
		t.Errorf("cancellation reported as a stage error: %v", err)
	}
}

func TestWrite(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "build/basic", "/project")
	cfg := testConfig()
	res := run(t, mfs, cfg)
	if err := build.Write(mfs, cfg, res); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	for p, content := range res.Files {
		got, err := mfs.ReadFile("/project/dist/" + p)
		if err != nil {
			t.Errorf("reading %s: %v", p, err)
			continue
		}
		if string(got) != string(content) {
			t.Errorf("%s = %q, want %q", p, got, content)
		}
	}
	manifest, err := mfs.ReadFile("/project/dist/" + build.ManifestFile)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if !strings.Contains(string(manifest), `"app.js": "`+res.Manifest["app.js"]+`"`) {
		t.Errorf("manifest = %s", manifest)
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
