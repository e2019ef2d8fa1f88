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
	"embed"
	"fmt"
	"path"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

//go:embed queries/*.scm
var queryFiles embed.FS

var language = ts.NewLanguage(tsTypescript.LanguageTypescript())

var parserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(language); err != nil {
			panic("failed to set TypeScript language: " + err.Error())
		}
		return parser
	},
}

func getParser() *ts.Parser {
	return parserPool.Get().(*ts.Parser)
}

func putParser(p *ts.Parser) {
	p.Reset()
	parserPool.Put(p)
}

type queries struct {
	imports *ts.Query
	hot     *ts.Query
}

var (
	loadedQueries *queries
	queriesOnce   sync.Once
	queriesErr    error
)

// getQueries compiles the embedded queries once per process.
func getQueries() (*queries, error) {
	queriesOnce.Do(func() {
		q := &queries{}
		if q.imports, queriesErr = loadQuery("imports"); queriesErr != nil {
			return
		}
		if q.hot, queriesErr = loadQuery("hot"); queriesErr != nil {
			q.imports.Close()
			return
		}
		loadedQueries = q
	})
	return loadedQueries, queriesErr
}

func loadQuery(name string) (*ts.Query, error) {
	queryPath := path.Join("queries", name+".scm")
	data, err := queryFiles.ReadFile(queryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read query %s: %w", queryPath, err)
	}
	query, qerr := ts.NewQuery(language, string(data))
	if qerr != nil {
		return nil, fmt.Errorf("failed to parse query %s: %w", name, qerr)
	}
	return query, nil
}
