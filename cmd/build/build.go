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

// Package build provides the build command for sous.
package build

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sousbuild "bennypowers.dev/sous/build"
	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/internal/output"
	"bennypowers.dev/sous/plugins"
)

// Cmd is the build cobra command that cooks every entry point and writes
// the versioned result to the build directory.
var Cmd = &cobra.Command{
	Use:   "build",
	Short: "Build the project into versioned files",
	Long: `Cook every entry point and all the assets it references, version them
by content hash and write the result to the build directory.

Configuration is read from sous.yaml, sous.json or sous.toml in the root
directory. Flags take precedence over the file.`,
	Example: `  # Build index.html into dist/
  sous build

  # Build every html page below src/
  sous build --entry "src/**/*.html"

  # Print what would be written without touching the disk
  sous build --dry-run

  # Keep file names stable and version through ?v= instead
  sous build --versioning-method search_param`,
	RunE: run,
}

func init() {
	Cmd.Flags().String("out-dir", "dist", "Build directory, relative to the root")
	Cmd.Flags().String("base", "/", "Public base path of the build")
	Cmd.Flags().StringSlice("entry", nil, "Entry point globs (default: index.html)")
	Cmd.Flags().String("sourcemaps", "none", "Sourcemaps (none, inline, file)")
	Cmd.Flags().Bool("versioning", true, "Version files by content hash")
	Cmd.Flags().String("versioning-method", "filename", "Where versions go (filename, search_param)")
	Cmd.Flags().StringSlice("conditions", nil, "Export condition priority (e.g., production,browser,import,default)")
	Cmd.Flags().Bool("dry-run", false, "Report the build without writing files")

	_ = viper.BindPFlag("buildDirectory", Cmd.Flags().Lookup("out-dir"))
	_ = viper.BindPFlag("base", Cmd.Flags().Lookup("base"))
	_ = viper.BindPFlag("entryPoints", Cmd.Flags().Lookup("entry"))
	_ = viper.BindPFlag("sourcemaps", Cmd.Flags().Lookup("sourcemaps"))
	_ = viper.BindPFlag("versioning.enabled", Cmd.Flags().Lookup("versioning"))
	_ = viper.BindPFlag("versioning.method", Cmd.Flags().Lookup("versioning-method"))
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOSFileSystem()
	cfg, err := config.Load(viper.GetViper(), viper.GetString("root"))
	if err != nil {
		return err
	}
	conditions, _ := cmd.Flags().GetStringSlice("conditions")
	res, err := sousbuild.Run(cmd.Context(), cfg, sousbuild.Options{
		FileSystem: osfs,
		Plugins:    plugins.Default(plugins.Options{FileSystem: osfs, Conditions: conditions}),
	})
	if err != nil {
		return err
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); !dryRun {
		if err := sousbuild.Write(osfs, cfg, res); err != nil {
			return fmt.Errorf("writing build: %w", err)
		}
	}
	return output.Summary(os.Stdout, res)
}
