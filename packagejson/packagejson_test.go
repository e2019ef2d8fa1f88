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

package packagejson_test

import (
	"errors"
	"testing"

	"bennypowers.dev/sous/internal/mapfs"
	"bennypowers.dev/sous/packagejson"
)

func TestParseFile(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/pkg/package.json", `{"name":"@scope/pkg","version":"1.2.3","module":"./esm/index.js"}`, 0644)

	pkg, err := packagejson.ParseFile(mfs, "/pkg/package.json")
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if pkg.Name != "@scope/pkg" || pkg.Version != "1.2.3" {
		t.Errorf("parsed %+v", pkg)
	}
	if _, err := packagejson.ParseFile(mfs, "/missing/package.json"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := packagejson.Parse([]byte(`{"name":`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestResolveExport(t *testing.T) {
	tests := []struct {
		name       string
		pkg        string
		subpath    string
		conditions []string
		want       string
		wantErr    bool
	}{
		{"string export", `{"exports":"./index.js"}`, ".", nil, "index.js", false},
		{"string export hides subpaths", `{"exports":"./index.js"}`, "./other.js", nil, "", true},
		{"subpath", `{"exports":{".":"./index.js","./button":"./src/button.js"}}`, "./button", nil, "src/button.js", false},
		{"unexported subpath", `{"exports":{".":"./index.js"}}`, "./internal.js", nil, "", true},
		{"conditions", `{"exports":{".":{"node":"./node.js","import":"./esm.js","default":"./cjs.js"}}}`, ".", nil, "esm.js", false},
		{"condition-only map", `{"exports":{"browser":"./browser.js","default":"./index.js"}}`, ".", nil, "browser.js", false},
		{"nested conditions", `{"exports":{".":{"import":{"types":"./a.d.ts","default":"./a.js"}}}}`, ".", nil, "a.js", false},
		{"custom conditions", `{"exports":{".":{"development":"./dev.js","default":"./prod.js"}}}`, ".", []string{"development", "default"}, "dev.js", false},
		{"fallback array", `{"exports":{".":[{"worker":"./w.js"},"./index.js"]}}`, ".", nil, "index.js", false},
		{"wildcard", `{"exports":{"./*":"./dist/*.js"}}`, "./button", nil, "dist/button.js", false},
		{"longest wildcard wins", `{"exports":{"./*":"./a/*","./icons/*":"./svg/*"}}`, "./icons/x.svg", nil, "svg/x.svg", false},
		{"wildcard cannot escape", `{"exports":{"./*":"./*"}}`, "./../secret.js", nil, "", true},
		{"module field", `{"module":"./esm/index.js","main":"./index.cjs"}`, ".", nil, "esm/index.js", false},
		{"main field", `{"main":"lib/index.js"}`, ".", nil, "lib/index.js", false},
		{"index fallback", `{}`, ".", nil, "index.js", false},
		{"open subpaths without exports", `{"main":"index.js"}`, "./lib/a.js", nil, "lib/a.js", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := packagejson.Parse([]byte(tt.pkg))
			if err != nil {
				t.Fatal(err)
			}
			got, err := pkg.ResolveExport(tt.subpath, tt.conditions)
			if tt.wantErr {
				if !errors.Is(err, packagejson.ErrNotExported) {
					t.Errorf("ResolveExport(%q) = %q, %v; want ErrNotExported", tt.subpath, got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ResolveExport(%q) = %q, %v; want %q", tt.subpath, got, err, tt.want)
			}
		})
	}
}

func TestResolveImport(t *testing.T) {
	pkg, err := packagejson.Parse([]byte(`{"imports":{"#utils":"./src/utils.js","#internal/*":{"browser":"./src/browser/*.js"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if got, err := pkg.ResolveImport("#utils", nil); err != nil || got != "src/utils.js" {
		t.Errorf("ResolveImport(#utils) = %q, %v", got, err)
	}
	if got, err := pkg.ResolveImport("#internal/dom", nil); err != nil || got != "src/browser/dom.js" {
		t.Errorf("ResolveImport(#internal/dom) = %q, %v", got, err)
	}
	if _, err := pkg.ResolveImport("#missing", nil); !errors.Is(err, packagejson.ErrNotExported) {
		t.Errorf("expected ErrNotExported, got %v", err)
	}
}

func TestWorkspacePatterns(t *testing.T) {
	for _, raw := range []string{
		`{"workspaces":["packages/*","apps/site"]}`,
		`{"workspaces":{"packages":["packages/*","apps/site"]}}`,
	} {
		pkg, err := packagejson.Parse([]byte(raw))
		if err != nil {
			t.Fatal(err)
		}
		got := pkg.WorkspacePatterns()
		if len(got) != 2 || got[0] != "packages/*" || got[1] != "apps/site" {
			t.Errorf("%s: patterns = %v", raw, got)
		}
	}
	pkg, _ := packagejson.Parse([]byte(`{"name":"x"}`))
	if pkg.WorkspacePatterns() != nil {
		t.Error("expected no patterns")
	}
}

func TestSplitSpecifier(t *testing.T) {
	tests := []struct {
		spec, name, subpath string
	}{
		{"lit", "lit", "."},
		{"lit/decorators.js", "lit", "./decorators.js"},
		{"@lit/reactive-element", "@lit/reactive-element", "."},
		{"@lit/reactive-element/decorators/custom-element.js", "@lit/reactive-element", "./decorators/custom-element.js"},
	}
	for _, tt := range tests {
		name, subpath := packagejson.SplitSpecifier(tt.spec)
		if name != tt.name || subpath != tt.subpath {
			t.Errorf("SplitSpecifier(%q) = %q, %q; want %q, %q", tt.spec, name, subpath, tt.name, tt.subpath)
		}
	}
}

func TestIsBare(t *testing.T) {
	for spec, want := range map[string]bool{
		"lit":                  true,
		"@scope/pkg":           true,
		"./a.js":               false,
		"../a.js":              false,
		"/a.js":                false,
		"https://x.com/a.js":   false,
		"data:text/javascript": false,
		"#internal":            false,
		"":                     false,
	} {
		if got := packagejson.IsBare(spec); got != want {
			t.Errorf("IsBare(%q) = %v, want %v", spec, got, want)
		}
	}
}
