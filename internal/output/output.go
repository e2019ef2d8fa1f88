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

// Package output renders build results and graphs for sous CLI commands.
package output

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/ddddddO/gtree"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/viper"

	"bennypowers.dev/sous/build"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
)

// Write sends data to the file named by viper's "output" flag, or to
// stdout when it is unset.
func Write(osfs fs.FileSystem, data string) error {
	if outputPath := viper.GetString("output"); outputPath != "" {
		return osfs.WriteFile(outputPath, []byte(data+"\n"), 0644)
	}
	_, err := fmt.Fprintln(os.Stdout, data)
	return err
}

// Summary writes one row per built file: its source path, its versioned
// path and its size.
func Summary(w io.Writer, res *build.Result) error {
	heading := color.New(color.FgCyan, color.Bold).SprintFunc()
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
		})))
	table.Header(heading("Source"), heading("Output"), heading("Size"))
	total := 0
	for _, src := range slices.Sorted(maps.Keys(res.Manifest)) {
		out := res.Manifest[src]
		size := len(res.Files[out])
		total += size
		name := out
		if out != src {
			name = color.GreenString(out)
		}
		if err := table.Append([]string{src, name, formatSize(size)}); err != nil {
			return err
		}
	}
	table.Footer("", fmt.Sprintf("%d files", len(res.Files)), formatSize(total))
	return table.Render()
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// Graph draws the references of g as a tree rooted at its entry points.
// A node reached a second time is drawn without its references.
func Graph(w io.Writer, g *graph.UrlGraph) error {
	root := gtree.NewRoot(g.Root().URL())
	seen := make(map[string]bool)
	var walk func(parent *gtree.Node, u *graph.UrlInfo)
	walk = func(parent *gtree.Node, u *graph.UrlInfo) {
		for _, ref := range g.ReferencesToOthers(u) {
			target := g.Target(ref)
			if target == nil {
				continue
			}
			label := nodeLabel(g, ref, target)
			if seen[target.URL()] {
				parent.Add(label + " " + color.HiBlackString("(seen)"))
				continue
			}
			seen[target.URL()] = true
			walk(parent.Add(label), target)
		}
	}
	walk(root, g.Root())
	return gtree.OutputFromRoot(w, root)
}

func nodeLabel(g *graph.UrlGraph, ref *graph.Reference, target *graph.UrlInfo) string {
	name := strings.TrimPrefix(target.URL(), g.Root().URL())
	var tags []string
	if target.Type != "" {
		tags = append(tags, target.Type)
	}
	tags = append(tags, string(ref.Type))
	if ref.IsWeak {
		tags = append(tags, "weak")
	}
	return fmt.Sprintf("%s %s", name, color.HiBlackString("[%s]", strings.Join(tags, " ")))
}
