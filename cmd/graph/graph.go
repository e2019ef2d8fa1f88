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

// Package graph provides the graph command for sous.
package graph

import (
	"fmt"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/sous/build"
	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/output"
	"bennypowers.dev/sous/plugins"
)

// Cmd is the graph cobra command that prints the reference graph of a
// build without writing it.
var Cmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the reference graph of the project",
	Long: `Cook every entry point as a build would and print how the assets
reference each other. Nothing is written to the build directory.`,
	Example: `  # Draw the graph as a tree
  sous graph

  # List every node with its references as JSON
  sous graph --format json`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringP("format", "f", "tree", "Output format (tree, json)")
	Cmd.Flags().StringSlice("entry", nil, "Entry point globs (default: index.html)")
}

// Node is one entry of the json format.
type Node struct {
	URL        string      `json:"url"`
	Type       string      `json:"type,omitempty"`
	References []Reference `json:"references,omitempty"`
}

// Reference is one outgoing edge of a Node.
type Reference struct {
	Specifier string `json:"specifier"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Weak      bool   `json:"weak,omitempty"`
}

func run(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "tree" && format != "json" {
		return fmt.Errorf("invalid format %q: must be 'tree' or 'json'", format)
	}
	osfs := fs.NewOSFileSystem()
	cfg, err := config.Load(viper.GetViper(), viper.GetString("root"))
	if err != nil {
		return err
	}
	if entries, _ := cmd.Flags().GetStringSlice("entry"); len(entries) > 0 {
		cfg.EntryPoints = entries
	}
	res, err := build.Run(cmd.Context(), cfg, build.Options{
		FileSystem: osfs,
		Plugins:    plugins.Default(plugins.Options{FileSystem: osfs}),
	})
	if err != nil {
		return err
	}
	if format == "json" {
		data, err := json.MarshalIndent(Nodes(res.Graph), "", "  ")
		if err != nil {
			return err
		}
		return output.Write(osfs, string(data))
	}
	var b strings.Builder
	if err := output.Graph(&b, res.Graph); err != nil {
		return err
	}
	return output.Write(osfs, strings.TrimSuffix(b.String(), "\n"))
}

// Nodes lists the strongly reachable nodes of g sorted by URL.
func Nodes(g *graph.UrlGraph) []Node {
	infos := g.StronglyReachable()
	slices.SortFunc(infos, func(a, b *graph.UrlInfo) int { return strings.Compare(a.URL(), b.URL()) })
	nodes := make([]Node, 0, len(infos))
	for _, u := range infos {
		n := Node{URL: u.URL(), Type: u.Type}
		for _, ref := range g.ReferencesToOthers(u) {
			n.References = append(n.References, Reference{
				Specifier: ref.Specifier,
				Type:      string(ref.Type),
				URL:       ref.URL(),
				Weak:      ref.IsWeak,
			})
		}
		nodes = append(nodes, n)
	}
	return nodes
}
