// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
package wizard

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"github.com/mlnoga/fitsmerge/internal/align"
	"github.com/mlnoga/fitsmerge/internal/channel"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	fileName:=filepath.Join(t.TempDir(), "fitsmerge.yaml")
	if err:=os.WriteFile(fileName, []byte(text), 0644); err!=nil {
		t.Fatalf("write: %v", err)
	}
	return fileName
}

func TestLoadConfig(t *testing.T) {
	fileName:=writeConfig(t, `
method: internal
alignEnabled: false
align:
  levels: 4
weights:
  red: 0.5
  ha: 3
colors:
  h: "#ff8000"
maxThreads: 2
`)
	c, err:=LoadConfig(fileName)
	if err!=nil { t.Fatalf("load: %v", err) }
	if c.Method!=align.MethodInternal || c.AlignEnabled || c.Align.Levels!=4 || c.MaxThreads!=2 {
		t.Errorf("config=%+v; want internal, no align, 4 levels, 2 threads", c)
	}
	if c.JPEGQuality!=95 || c.Brush.Size!=32 {
		t.Errorf("defaults lost: jpegQuality=%d brush=%+v", c.JPEGQuality, c.Brush)
	}
	weights, colors, err:=c.Mix()
	if err!=nil { t.Fatalf("mix: %v", err) }
	if weights[channel.Red]!=0.5 || weights[channel.H]!=1 || weights[channel.Green]!=1 {
		t.Errorf("weights=%v; want red 0.5, h clamped to 1, green default 1", weights)
	}
	if colors[channel.H]!=(color.RGBA{255, 128, 0, 255}) {
		t.Errorf("h color=%v; want {255 128 0 255}", colors[channel.H])
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests:=[]string{
		"weights:\n  purple: 1\n",
		"colors:\n  red: notacolor\n",
		"method: hugin\n",
		"unknownKey: 1\n",
	}
	for _,text:=range tests {
		if _, err:=LoadConfig(writeConfig(t, text)); err==nil {
			t.Errorf("LoadConfig(%q) err=nil; want error", text)
		}
	}
}

func TestColorRoundTrip(t *testing.T) {
	for _,hex:=range []string{"#000000", "#ff0000", "#12ab7f"} {
		c, err:=ParseColor(hex)
		if err!=nil { t.Fatalf("parse %s: %v", hex, err) }
		if got:=FormatColor(c); got!=hex {
			t.Errorf("FormatColor(ParseColor(%s))=%s", hex, got)
		}
	}
}

func TestAsYamlRoundTrip(t *testing.T) {
	c:=NewConfig()
	c.Method=align.MethodInternal
	c.Weights["blue"]=0.25
	c.Colors["h"]="#ff8000"
	c.Output="merged.hdr"

	back, err:=LoadConfig(writeConfig(t, c.AsYaml()))
	if err!=nil { t.Fatalf("load: %v", err) }
	if back.Method!=c.Method || back.Output!=c.Output || back.Weights["blue"]!=0.25 || back.Colors["h"]!="#ff8000" {
		t.Errorf("config=%+v; want %+v", back, c)
	}
	if back.Align.Program!=align.DefaultProgram || back.Align.Levels!=align.DefaultLevels {
		t.Errorf("align=%+v; want defaults", back.Align)
	}
}
