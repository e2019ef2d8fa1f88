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

// Package mediatype maps file extensions to content types and content
// types to graph content kinds.
package mediatype

import (
	"path"
	"strings"
)

var byExtension = map[string]string{
	".html":        "text/html",
	".htm":         "text/html",
	".css":         "text/css",
	".js":          "text/javascript",
	".mjs":         "text/javascript",
	".cjs":         "text/javascript",
	".json":        "application/json",
	".map":         "application/json",
	".webmanifest": "application/manifest+json",
	".svg":         "image/svg+xml",
	".png":         "image/png",
	".jpg":         "image/jpeg",
	".jpeg":        "image/jpeg",
	".gif":         "image/gif",
	".webp":        "image/webp",
	".avif":        "image/avif",
	".ico":         "image/x-icon",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".ttf":         "font/ttf",
	".txt":         "text/plain",
	".md":          "text/markdown",
	".xml":         "application/xml",
	".wasm":        "application/wasm",
}

// ByExtension returns the content type for the extension of p, or
// application/octet-stream.
func ByExtension(p string) string {
	if ct, ok := byExtension[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Essence strips parameters such as charset from a content type.
func Essence(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// IsText reports whether content of this type can be treated as text.
func IsText(contentType string) bool {
	ct := Essence(contentType)
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case ct == "image/svg+xml", ct == "application/xml":
		return true
	case ct == "application/json", strings.HasSuffix(ct, "+json"):
		return true
	case ct == "application/javascript":
		return true
	}
	return false
}

// Kind infers a graph content kind from a content type. expected is the
// kind the referencing owner declared, which wins for ambiguous types
// such as scripts.
func Kind(contentType, expected string) string {
	ct := Essence(contentType)
	switch ct {
	case "text/html":
		return "html"
	case "text/css":
		return "css"
	case "text/javascript", "application/javascript":
		if expected == "js_classic" {
			return "js_classic"
		}
		return "js_module"
	case "application/manifest+json":
		return "webmanifest"
	case "application/json":
		if expected == "webmanifest" || expected == "sourcemap" {
			return expected
		}
		return "json"
	}
	if expected != "" {
		return expected
	}
	if IsText(ct) {
		return "text"
	}
	return "other"
}

// Extension returns a file extension suitable for content of the given
// type, used to name inline content.
func Extension(contentType string) string {
	switch Essence(contentType) {
	case "text/css":
		return ".css"
	case "text/javascript", "application/javascript":
		return ".js"
	case "application/json":
		return ".json"
	case "application/manifest+json":
		return ".webmanifest"
	case "text/html":
		return ".html"
	case "image/svg+xml":
		return ".svg"
	}
	return ".txt"
}
