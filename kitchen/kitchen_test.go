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

package kitchen_test

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/metrics"
	"bennypowers.dev/sous/kitchen"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/sourcemap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const root = "file:///project/"

// memory serves files from a map and resolves relative specifiers.
type memory struct {
	mu      sync.Mutex
	files   map[string]string
	fetches map[string]int
	// block, when set, is consulted before serving a file.
	block func(ctx context.Context, u string, n int) error
}

func newMemory(files map[string]string) *memory {
	full := make(map[string]string, len(files))
	for name, content := range files {
		full[root+name] = content
	}
	return &memory{files: full, fetches: make(map[string]int)}
}

func (m *memory) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[root+name]
}

func (m *memory) set(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[root+name] = content
}

func (m *memory) plugin() *plugin.Plugin {
	return &plugin.Plugin{
		Name: "memory",
		ResolveReference: func(hc *plugin.HookContext, ref *graph.Reference) (string, error) {
			if strings.HasPrefix(ref.Specifier, "data:") {
				return graph.IgnoreScheme + ref.Specifier, nil
			}
			if !strings.HasPrefix(ref.Specifier, "./") && !strings.HasPrefix(ref.Specifier, "/") {
				return "", nil
			}
			base, err := url.Parse(ref.OwnerURL)
			if err != nil {
				return "", err
			}
			if strings.HasPrefix(ref.Specifier, "/") {
				base, _ = url.Parse(root)
				return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Specifier, "/")}).String(), nil
			}
			spec, err := url.Parse(ref.Specifier)
			if err != nil {
				return "", err
			}
			return base.ResolveReference(spec).String(), nil
		},
		FetchUrlContent: plugin.Uniform(func(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
			m.mu.Lock()
			m.fetches[u.URL()]++
			n := m.fetches[u.URL()]
			content, ok := m.files[u.URL()]
			block := m.block
			m.mu.Unlock()
			if block != nil {
				if err := block(ctx, u.URL(), n); err != nil {
					return nil, err
				}
			}
			if !ok {
				return nil, fmt.Errorf("open %s: %w", u.URL(), iofs.ErrNotExist)
			}
			ct := "text/plain"
			switch {
			case strings.HasSuffix(u.URL(), ".js"):
				ct = "text/javascript"
			case strings.HasSuffix(u.URL(), ".html"):
				ct = "text/html"
			}
			return &plugin.Result{Content: []byte(content), ContentType: ct}, nil
		}),
	}
}

var importPattern = regexp.MustCompile(`import "([^"]+)"`)

// imports reports `import "x"` statements of js modules.
func imports() *plugin.Plugin {
	return &plugin.Plugin{
		Name: "imports",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindJSModule: func(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
				content := u.Content()
				for _, m := range importPattern.FindAllSubmatchIndex(content, -1) {
					_, err := hc.References.Found(&graph.Reference{
						Specifier:    string(content[m[2]:m[3]]),
						Type:         graph.TypeJSImport,
						ExpectedType: graph.KindJSModule,
						Start:        m[2],
						End:          m[3],
						Trace:        graph.TraceAt(u.URL(), content, m[2]),
					})
					if err != nil {
						return nil, err
					}
				}
				return nil, nil
			},
		}),
	}
}

type fixture struct {
	g   *graph.UrlGraph
	k   *kitchen.Kitchen
	mem *memory
	m   *metrics.Metrics
}

func setup(t *testing.T, mode config.Mode, files map[string]string, extra ...*plugin.Plugin) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.RootDirectory = "/project"
	mem := newMemory(files)
	plugins := append([]*plugin.Plugin{mem.plugin(), imports()}, extra...)
	ctrl, err := plugin.NewController(mode, cfg, nil, plugins...)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	m := metrics.New(prometheus.NewRegistry())
	k := kitchen.New(g, ctrl, cfg, kitchen.WithMetrics(m))
	t.Cleanup(k.Close)
	return &fixture{g: g, k: k, mem: mem, m: m}
}

func (f *fixture) entry(t *testing.T, specifier string) *graph.UrlInfo {
	t.Helper()
	u, err := f.k.InjectEntryPoint(specifier)
	if err != nil {
		t.Fatalf("InjectEntryPoint(%s) failed: %v", specifier, err)
	}
	return u
}

func TestCookCommitsReferences(t *testing.T) {
	f := setup(t, config.ModeDev, map[string]string{
		"app.js":  `import "./util.js"` + "\n",
		"util.js": "export const x = 1\n",
	})
	app := f.entry(t, "./app.js")
	if err := f.k.Cook(context.Background(), app); err != nil {
		t.Fatalf("Cook failed: %v", err)
	}
	if app.Type != graph.KindJSModule || !app.IsEntryPoint || !app.Locked() {
		t.Errorf("unexpected app state: type=%s entry=%v locked=%v", app.Type, app.IsEntryPoint, app.Locked())
	}
	refs := f.g.ReferencesToOthers(app)
	if len(refs) != 1 || refs[0].URL() != root+"util.js" {
		t.Fatalf("references = %v", refs)
	}
	if refs[0].GeneratedSpecifier != "/util.js" {
		t.Errorf("generated specifier = %q", refs[0].GeneratedSpecifier)
	}
	util := f.g.Get(root + "util.js")
	if util == nil || util.IsCooked() {
		t.Fatal("util should be in the graph but not cooked yet")
	}
	if err := f.k.CookDependencies(context.Background(), app); err != nil {
		t.Fatalf("CookDependencies failed: %v", err)
	}
	if !util.IsCooked() || string(util.Content()) != "export const x = 1\n" {
		t.Errorf("util not cooked: %q", util.Content())
	}
}

func TestDevCookSkipsFreshNodes(t *testing.T) {
	f := setup(t, config.ModeDev, map[string]string{"app.js": "1"})
	app := f.entry(t, "./app.js")
	ctx := context.Background()
	for range 3 {
		if err := f.k.Cook(ctx, app); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.mem.count("app.js"); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
	f.mem.set("app.js", "2")
	f.g.MarkModified(app, time.Now())
	if err := f.k.Cook(ctx, app); err != nil {
		t.Fatal(err)
	}
	if n := f.mem.count("app.js"); n != 2 || string(app.Content()) != "2" {
		t.Errorf("expected a re-cook after modification: fetches=%d content=%q", n, app.Content())
	}
	if got := testutil.ToFloat64(f.m.CooksTotal.WithLabelValues("unknown", metrics.ResultFresh)); got != 2 {
		t.Errorf("fresh cooks = %v", got)
	}
}

func TestDevCookSharesInflightResult(t *testing.T) {
	f := setup(t, config.ModeDev, map[string]string{"app.js": "shared"})
	started := make(chan struct{})
	release := make(chan struct{})
	f.mem.block = func(ctx context.Context, u string, n int) error {
		close(started)
		<-release
		return nil
	}
	app := f.entry(t, "./app.js")
	ctx := context.Background()

	errs := make(chan error, 2)
	go func() { errs <- f.k.Cook(ctx, app) }()
	<-started
	go func() { errs <- f.k.Cook(ctx, app) }()
	shared := f.m.CooksTotal.WithLabelValues("unknown", metrics.ResultShared)
	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(shared) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("second cook never joined the in-flight one")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	for range 2 {
		if err := <-errs; err != nil {
			t.Errorf("Cook failed: %v", err)
		}
	}
	if n := f.mem.count("app.js"); n != 1 {
		t.Errorf("expected a single fetch, got %d", n)
	}
}

func TestDevCookRestartsSupersededCook(t *testing.T) {
	f := setup(t, config.ModeDev, map[string]string{"app.js": "old"})
	started := make(chan struct{})
	f.mem.block = func(ctx context.Context, u string, n int) error {
		if n != 1 {
			return nil
		}
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	app := f.entry(t, "./app.js")
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- f.k.Cook(ctx, app) }()
	<-started
	f.mem.set("app.js", "new")
	f.g.MarkModified(app, time.Now().Add(time.Second))
	if err := f.k.Cook(ctx, app); err != nil {
		t.Fatalf("second Cook failed: %v", err)
	}
	if err := <-first; err != nil {
		t.Fatalf("superseded Cook should restart and succeed, got %v", err)
	}
	if n := f.mem.count("app.js"); n != 2 {
		t.Errorf("expected 2 fetches, got %d", n)
	}
	if string(app.Content()) != "new" || !app.IsFresh() {
		t.Errorf("content = %q fresh = %v", app.Content(), app.IsFresh())
	}
}

func TestBuildCookRunsOncePerPass(t *testing.T) {
	f := setup(t, config.ModeBuild, map[string]string{"app.js": "x"})
	app := f.entry(t, "./app.js")
	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 10 {
		wg.Go(func() {
			if err := f.k.Cook(context.Background(), app); err != nil {
				failures.Add(1)
			}
		})
	}
	wg.Wait()
	if failures.Load() != 0 {
		t.Errorf("%d cooks failed", failures.Load())
	}
	if n := f.mem.count("app.js"); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
	f.k.ResetBuildPass()
	if err := f.k.Cook(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	if n := f.mem.count("app.js"); n != 2 {
		t.Errorf("expected a new pass to cook again, got %d fetches", n)
	}
}

func TestResolutionErrorCarriesTrace(t *testing.T) {
	f := setup(t, config.ModeBuild, map[string]string{
		"app.js": "const a = 1\nimport \"pkg\"\n",
	})
	app := f.entry(t, "./app.js")
	err := f.k.Cook(context.Background(), app)
	var re *kitchen.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if re.Reason != kitchen.ReasonNoResolver || re.Specifier != "pkg" {
		t.Errorf("unexpected error %+v", re)
	}
	if re.Trace.URL != root+"app.js" || re.Trace.Line != 2 || re.Trace.Column != 9 {
		t.Errorf("trace = %v", re.Trace)
	}
	if !strings.Contains(re.Trace.CodeFrame, `> 2 | import "pkg"`) {
		t.Errorf("code frame = %q", re.Trace.CodeFrame)
	}
	if len(f.g.ReferencesToOthers(app)) != 0 {
		t.Error("failed cook must not commit references")
	}
	if se, ok := kitchen.Stage(err); !ok || se.Stage != kitchen.StageResolve {
		t.Errorf("Stage(err) = %v, %v", se, ok)
	}
}

func TestIgnoredReferencesAreNotCommitted(t *testing.T) {
	f := setup(t, config.ModeDev, map[string]string{
		"app.js": `import "data:text/javascript,1"`,
	})
	app := f.entry(t, "./app.js")
	if err := f.k.Cook(context.Background(), app); err != nil {
		t.Fatalf("Cook failed: %v", err)
	}
	if refs := f.g.ReferencesToOthers(app); len(refs) != 0 {
		t.Errorf("ignored reference committed: %v", refs)
	}
}

func TestRedirectChains(t *testing.T) {
	redirect := &plugin.Plugin{
		Name: "redirect",
		RedirectReference: func(hc *plugin.HookContext, ref *graph.Reference, current string) (string, error) {
			if current == root+"old.js" {
				return root + "new.js", nil
			}
			return "", nil
		},
	}
	f := setup(t, config.ModeDev, map[string]string{
		"app.js": `import "./old.js"`,
		"new.js": "",
	}, redirect)
	app := f.entry(t, "./app.js")
	if err := f.k.Cook(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	refs := f.g.ReferencesToOthers(app)
	if len(refs) != 1 {
		t.Fatalf("references = %v", refs)
	}
	ref := refs[0]
	if ref.URL() != root+"new.js" || ref.Specifier != "./old.js" {
		t.Errorf("redirected reference = %s (%s)", ref.URL(), ref.Specifier)
	}
	prev := f.g.Reference(ref.Prev)
	if prev == nil || prev.Next != ref.ID || prev.URL() != root+"old.js" || ref.Original != prev.ID {
		t.Errorf("inconsistent chain: prev=%+v ref=%+v", prev, ref)
	}
	if f.g.Get(root+"old.js") != nil {
		t.Error("redirected-from URL should not become a node")
	}
}

func TestRedirectLoopIsBounded(t *testing.T) {
	loop := &plugin.Plugin{
		Name: "loop",
		RedirectReference: func(hc *plugin.HookContext, ref *graph.Reference, current string) (string, error) {
			return current + "x", nil
		},
	}
	f := setup(t, config.ModeBuild, map[string]string{"app.js": `import "./a.js"`}, loop)
	_, err := f.k.InjectEntryPoint("./app.js")
	var re *kitchen.ResolutionError
	if !errors.As(err, &re) || re.Reason != kitchen.ReasonRedirectLoop || re.Plugin != "loop" {
		t.Fatalf("expected redirect loop error, got %v", err)
	}
}

func TestFetchErrors(t *testing.T) {
	f := setup(t, config.ModeBuild, map[string]string{"app.js": `import "./missing.js"`})
	app := f.entry(t, "./app.js")
	if err := f.k.Cook(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	err := f.k.CookDependencies(context.Background(), app)
	var fe *kitchen.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if !fe.IsNotFound() || fe.Plugin != "memory" || fe.URL != root+"missing.js" {
		t.Errorf("unexpected fetch error %+v", fe)
	}
	if fe.Trace.URL != root+"app.js" {
		t.Errorf("trace should point at the importer, got %v", fe.Trace)
	}
	if !errors.Is(err, iofs.ErrNotExist) {
		t.Error("fetch error should unwrap to the cause")
	}
}

func TestFetchWithoutPlugin(t *testing.T) {
	cfg := config.Default()
	cfg.RootDirectory = "/project"
	mem := newMemory(map[string]string{"app.js": ""})
	resolveOnly := mem.plugin()
	resolveOnly.FetchUrlContent = plugin.ContentHook{}
	ctrl, err := plugin.NewController(config.ModeBuild, cfg, nil, resolveOnly)
	if err != nil {
		t.Fatal(err)
	}
	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	k := kitchen.New(g, ctrl, cfg)
	defer k.Close()
	app, err := k.InjectEntryPoint("./app.js")
	if err != nil {
		t.Fatal(err)
	}
	err = k.Cook(context.Background(), app)
	var fe *kitchen.FetchError
	if !errors.As(err, &fe) || fe.Reason != kitchen.ReasonNoContent {
		t.Fatalf("expected no_content FetchError, got %v", err)
	}
}

// inlineScripts treats every line "<script>...</script>" of an html file
// as inline module content.
func inlineScripts() *plugin.Plugin {
	pattern := regexp.MustCompile(`<script>(.*)</script>`)
	return &plugin.Plugin{
		Name: "inline-scripts",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindHTML: func(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
				content := u.Content()
				for _, m := range pattern.FindAllSubmatchIndex(content, -1) {
					line, col := graph.PositionOf(content, m[2])
					ref, err := hc.References.FoundInline(&graph.Reference{
						Type:         graph.TypeScript,
						ExpectedType: graph.KindJSModule,
					}, graph.InlineInput{
						Line:        line,
						Column:      col,
						Content:     content[m[2]:m[3]],
						ContentType: "text/javascript",
					})
					if err != nil {
						return nil, err
					}
					if _, err := hc.References.CookInline(ctx, ref); err != nil {
						return nil, err
					}
				}
				return nil, nil
			},
		}),
	}
}

// strict rejects js containing "BROKEN" at its position.
func strict() *plugin.Plugin {
	return &plugin.Plugin{
		Name: "strict",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindJSModule: func(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
				if i := strings.Index(string(u.Content()), "BROKEN"); i >= 0 {
					line, col := graph.PositionOf(u.Content(), i)
					return nil, &plugin.SyntaxError{Line: line, Column: col, Message: "unexpected token"}
				}
				return nil, nil
			},
		}),
	}
}

func TestInlineContent(t *testing.T) {
	files := map[string]string{
		"index.html": "<html>\n<script>import \"./util.js\"</script>\n",
		"util.js":    "",
	}
	f := setup(t, config.ModeBuild, files, inlineScripts())
	index := f.entry(t, "./index.html")
	if err := f.k.Cook(context.Background(), index); err != nil {
		t.Fatalf("Cook failed: %v", err)
	}
	inlineURL := root + "index.html@L2C9.js"
	inline := f.g.Get(inlineURL)
	if inline == nil || !inline.IsInline || !inline.IsCooked() {
		t.Fatalf("inline node missing or not cooked: %+v", inline)
	}
	if inline.InlineSite == nil || inline.InlineSite.OwnerURL != root+"index.html" || inline.InlineSite.Line != 2 {
		t.Errorf("inline site = %+v", inline.InlineSite)
	}
	refs := f.g.ReferencesToOthers(inline)
	if len(refs) != 1 || refs[0].URL() != root+"util.js" {
		t.Errorf("inline references = %v", refs)
	}
	if refs := f.g.ReferencesToOthers(index); len(refs) != 1 || !refs[0].IsInline || refs[0].Prev == 0 {
		t.Errorf("index references = %v", refs)
	}
}

func TestInlineErrorsInDevAreLogged(t *testing.T) {
	files := map[string]string{"index.html": "<html>\n<script>let x = BROKEN</script>\n"}
	f := setup(t, config.ModeDev, files, inlineScripts(), strict())
	index := f.entry(t, "./index.html")
	if err := f.k.Cook(context.Background(), index); err != nil {
		t.Fatalf("dev should serve the document despite inline errors: %v", err)
	}
	inline := f.g.Get(root + "index.html@L2C9.js")
	if inline == nil || string(inline.Content()) != "let x = BROKEN" {
		t.Errorf("inline content should be kept as is: %+v", inline)
	}
}

func TestInlineErrorsInBuildAbort(t *testing.T) {
	files := map[string]string{"index.html": "<html>\n<script>let x = BROKEN</script>\n"}
	f := setup(t, config.ModeBuild, files, inlineScripts(), strict())
	index := f.entry(t, "./index.html")
	err := f.k.Cook(context.Background(), index)
	var te *kitchen.TransformError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransformError, got %v", err)
	}
	if te.Plugin != "strict" || te.Reason != kitchen.ReasonSyntaxError {
		t.Errorf("unexpected error %+v", te)
	}
	// "let x = " starts at column 9 of line 2 and BROKEN 8 bytes later
	if te.Trace.URL != root+"index.html" || te.Trace.Line != 2 || te.Trace.Column != 17 {
		t.Errorf("position not translated into the document: %v", te.Trace)
	}
	if !strings.Contains(te.Trace.CodeFrame, "<script>let x = BROKEN</script>") {
		t.Errorf("code frame = %q", te.Trace.CodeFrame)
	}
}

func TestCookDependenciesSkipsWeakReferences(t *testing.T) {
	weak := &plugin.Plugin{
		Name: "preload",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindHTML: func(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
				if _, err := hc.References.Found(&graph.Reference{Specifier: "./hint.js", Type: graph.TypeLinkHref, IsWeak: true}); err != nil {
					return nil, err
				}
				_, err := hc.References.Found(&graph.Reference{Specifier: "./app.js", Type: graph.TypeScript, ExpectedType: graph.KindJSModule})
				return nil, err
			},
		}),
	}
	f := setup(t, config.ModeBuild, map[string]string{
		"index.html": "",
		"app.js":     `import "./util.js"`,
		"util.js":    "",
		"hint.js":    "",
	}, weak)
	index := f.entry(t, "./index.html")
	ctx := context.Background()
	if err := f.k.Cook(ctx, index); err != nil {
		t.Fatal(err)
	}
	if err := f.k.CookDependencies(ctx, index); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"app.js", "util.js"} {
		if u := f.g.Get(root + name); u == nil || !u.IsCooked() {
			t.Errorf("%s should be cooked", name)
		}
	}
	if hint := f.g.Get(root + "hint.js"); hint == nil || hint.IsCooked() {
		t.Error("weakly referenced hint.js should be in the graph but not cooked")
	}
}

func TestCookDependenciesHonorsCancellation(t *testing.T) {
	f := setup(t, config.ModeBuild, map[string]string{"app.js": `import "./util.js"`, "util.js": ""})
	app := f.entry(t, "./app.js")
	if err := f.k.Cook(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.k.CookDependencies(ctx, app); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, ok := kitchen.Stage(context.Canceled); ok {
		t.Error("cancellation is not a stage error")
	}
}

func TestRecookDereferencesDroppedImports(t *testing.T) {
	f := setup(t, config.ModeDev, map[string]string{"app.js": `import "./util.js"`, "util.js": ""})
	app := f.entry(t, "./app.js")
	ctx := context.Background()
	if err := f.k.Cook(ctx, app); err != nil {
		t.Fatal(err)
	}
	var dereferenced []string
	defer f.g.OnDereferenced(func(u *graph.UrlInfo, last *graph.Reference) {
		dereferenced = append(dereferenced, u.URL())
	})()
	f.mem.set("app.js", "")
	f.g.MarkModified(app, time.Now())
	if err := f.k.Cook(ctx, app); err != nil {
		t.Fatal(err)
	}
	if len(dereferenced) != 1 || dereferenced[0] != root+"util.js" {
		t.Errorf("dereferenced = %v", dereferenced)
	}
	if got := testutil.ToFloat64(f.m.DereferencedTotal); got != 1 {
		t.Errorf("dereferenced metric = %v", got)
	}
}

func TestFileSourcemaps(t *testing.T) {
	cfg := config.Default()
	cfg.RootDirectory = "/project"
	cfg.Sourcemaps = config.SourcemapsFile
	mem := newMemory(map[string]string{"app.js": "a\nb"})
	withMap := &plugin.Plugin{
		Name: "identity-map",
		TransformUrlContent: plugin.Uniform(func(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
			sm, err := sourcemap.Identity(u.URL(), u.Content()).Bytes()
			return &plugin.Result{Sourcemap: sm}, err
		}),
	}
	ctrl, err := plugin.NewController(config.ModeBuild, cfg, nil, mem.plugin(), withMap)
	if err != nil {
		t.Fatal(err)
	}
	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	k := kitchen.New(g, ctrl, cfg)
	defer k.Close()
	app, err := k.InjectEntryPoint("./app.js")
	if err != nil {
		t.Fatal(err)
	}
	if err := k.Cook(context.Background(), app); err != nil {
		t.Fatalf("Cook failed: %v", err)
	}
	if !strings.HasSuffix(string(app.Content()), "//# sourceMappingURL=app.js.map") {
		t.Errorf("content = %q", app.Content())
	}
	mapNode := g.Get(root + "app.js.map")
	if mapNode == nil || mapNode.Type != graph.KindSourcemap {
		t.Fatalf("sourcemap node = %+v", mapNode)
	}
	if got := sourcemap.Sources(mapNode.Content()); len(got) != 1 || got[0] != root+"app.js" {
		t.Errorf("sources = %v", got)
	}
	refs := g.ReferencesToOthers(app)
	if len(refs) != 1 || refs[0].Type != graph.TypeSourcemapComment {
		t.Errorf("references = %v", refs)
	}
	if err := k.CookDependencies(context.Background(), app); err != nil {
		t.Errorf("sourcemap comments must not be cooked as dependencies: %v", err)
	}
}

func TestInlineURL(t *testing.T) {
	got := kitchen.InlineURL(root+"index.html?x=1", 3, 5, "text/css")
	if got != root+"index.html@L3C5.css" {
		t.Errorf("InlineURL = %q", got)
	}
}
