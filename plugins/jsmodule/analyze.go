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

package jsmodule

import (
	"errors"
	"slices"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
)

// Import is a specifier found in module source. Start and End delimit
// the specifier without its quotes.
type Import struct {
	Specifier string
	Type      graph.ReferenceType
	Dynamic   bool
	// Worker is set for new URL(...) passed to a Worker constructor.
	Worker     bool
	Start, End int
}

// Hot is the import.meta.hot usage of a module. Dependencies are the
// specifiers passed to accept, as written.
type Hot struct {
	AcceptSelf   bool
	Decline      bool
	Dependencies []string
}

// Analysis is what Analyze finds in a module.
type Analysis struct {
	Imports []Import
	// Hot is nil when the module never calls import.meta.hot.
	Hot *Hot
}

// Analyze parses content as a module and reports its specifiers in
// source order. A parse failure is a *plugin.SyntaxError.
func Analyze(content []byte) (*Analysis, error) {
	q, err := getQueries()
	if err != nil {
		return nil, err
	}
	parser := getParser()
	defer putParser(parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, errors.New("failed to parse module")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root)
	}

	a := &Analysis{Imports: findImports(q.imports, root, content)}
	a.Hot = findHot(q.hot, root, content)
	return a, nil
}

func findImports(query *ts.Query, root *ts.Node, content []byte) []Import {
	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	var imports []Import
	names := query.CaptureNames()
	matches := cursor.Matches(query, root, content)
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		captured := make(map[string]ts.Node, len(match.Captures))
		for _, c := range match.Captures {
			captured[names[c.Index]] = c.Node
		}
		for _, name := range []string{"import.spec", "reexport.spec", "dynamicImport.spec"} {
			if n, ok := captured[name]; ok {
				imports = append(imports, Import{
					Specifier: n.Utf8Text(content),
					Type:      graph.TypeJSImport,
					Dynamic:   name == "dynamicImport.spec",
					Start:     int(n.StartByte()),
					End:       int(n.EndByte()),
				})
			}
		}
		spec, ok := captured["url.spec"]
		if !ok {
			continue
		}
		base, hasBase := captured["url.base"]
		expr, hasExpr := captured["url.expr"]
		if !hasBase || !hasExpr || compact(base.Utf8Text(content)) != "import.meta.url" {
			continue
		}
		imports = append(imports, Import{
			Specifier: spec.Utf8Text(content),
			Type:      graph.TypeJSURL,
			Worker:    isWorkerArgument(&expr, content),
			Start:     int(spec.StartByte()),
			End:       int(spec.EndByte()),
		})
	}
	slices.SortFunc(imports, func(a, b Import) int { return a.Start - b.Start })
	return slices.CompactFunc(imports, func(a, b Import) bool { return a.Start == b.Start })
}

// isWorkerArgument reports whether expr is the first argument of
// new Worker(...) or new SharedWorker(...).
func isWorkerArgument(expr *ts.Node, content []byte) bool {
	args := expr.Parent()
	if args == nil || args.Kind() != "arguments" {
		return false
	}
	if first := args.NamedChild(0); first == nil || first.StartByte() != expr.StartByte() {
		return false
	}
	call := args.Parent()
	if call == nil || call.Kind() != "new_expression" {
		return false
	}
	ctor := call.ChildByFieldName("constructor")
	if ctor == nil {
		return false
	}
	switch ctor.Utf8Text(content) {
	case "Worker", "SharedWorker":
		return true
	}
	return false
}

func findHot(query *ts.Query, root *ts.Node, content []byte) *Hot {
	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	var hot *Hot
	names := query.CaptureNames()
	matches := cursor.Matches(query, root, content)
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		var callee, args *ts.Node
		for _, c := range match.Captures {
			n := c.Node
			switch names[c.Index] {
			case "hot.callee":
				callee = &n
			case "hot.args":
				args = &n
			}
		}
		if callee == nil || args == nil {
			continue
		}
		if hot == nil {
			hot = &Hot{}
		}
		switch compact(callee.Utf8Text(content)) {
		case "import.meta.hot.decline":
			hot.Decline = true
		case "import.meta.hot.accept":
			deps, ok := acceptedDependencies(args, content)
			if !ok {
				hot.AcceptSelf = true
				continue
			}
			hot.Dependencies = append(hot.Dependencies, deps...)
		}
	}
	return hot
}

// acceptedDependencies reads the specifiers of accept("./dep.js") or
// accept(["./a.js", "./b.js"]). It returns false for a self-accept, with
// no arguments or a callback only.
func acceptedDependencies(args *ts.Node, content []byte) ([]string, bool) {
	first := args.NamedChild(0)
	if first == nil {
		return nil, false
	}
	switch first.Kind() {
	case "string":
		return []string{unquote(first.Utf8Text(content))}, true
	case "array":
		var deps []string
		for i := range first.NamedChildCount() {
			if el := first.NamedChild(i); el != nil && el.Kind() == "string" {
				deps = append(deps, unquote(el.Utf8Text(content)))
			}
		}
		return deps, true
	}
	return nil, false
}

func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// syntaxError locates the first error or missing node below n.
func syntaxError(n *ts.Node) error {
	for n != nil && !n.IsError() && !n.IsMissing() {
		var next *ts.Node
		for i := range n.ChildCount() {
			c := n.Child(i)
			if c != nil && (c.HasError() || c.IsMissing() || c.IsError()) {
				next = c
				break
			}
		}
		if next == nil {
			break
		}
		n = next
	}
	msg := "unexpected token"
	if n.IsMissing() {
		msg = "missing " + n.Kind()
	}
	pos := n.StartPosition()
	return &plugin.SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Message: msg}
}
