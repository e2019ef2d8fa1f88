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

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("cooked", "url", "file:///app.js")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "cooked") || !strings.Contains(out, "file:///app.js") {
		t.Errorf("info line missing: %q", out)
	}
}

func TestSlogWriterTrimsNewline(t *testing.T) {
	var buf bytes.Buffer
	w := &slogWriter{logger: New(&buf, slog.LevelInfo)}
	n, err := w.Write([]byte("legacy line\n"))
	if err != nil || n != len("legacy line\n") {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if !strings.Contains(buf.String(), "legacy line") {
		t.Errorf("missing forwarded line: %q", buf.String())
	}
}
