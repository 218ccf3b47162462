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
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"github.com/mlnoga/fitsmerge/internal/align"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/composite"
)

// Brush defaults for the anti-ghosting mask
type BrushConfig struct {
	Size     int    `yaml:"size"`
	Strength int    `yaml:"strength"`
	Color    string `yaml:"color"`
}

// Session defaults, as read from a YAML file. Weights and colours are keyed by slot name
type Config struct {
	Method       align.Method        `yaml:"method"`
	AlignEnabled bool                `yaml:"alignEnabled"`
	Align        align.Config        `yaml:"align"`
	Weights      map[string]float64  `yaml:"weights"`
	Colors       map[string]string   `yaml:"colors"`
	Brush        BrushConfig         `yaml:"brush"`
	MaxThreads   int                 `yaml:"maxThreads"`
	JPEGQuality  int                 `yaml:"jpegQuality"`
	Output       string              `yaml:"output"`
}

func NewConfig() Config {
	return Config{
		Method:       align.MethodExternal,
		AlignEnabled: true,
		Align:        align.Config{Program:align.DefaultProgram, Args:[]string{"-v"}, Levels:align.DefaultLevels},
		Weights:      map[string]float64{},
		Colors:       map[string]string{},
		Brush:        BrushConfig{Size:32, Strength:255, Color:"#00ff00"},
		JPEGQuality:  95,
	}
}

// Reads the config from a YAML file, on top of the defaults
func LoadConfig(fileName string) (Config, error) {
	c:=NewConfig()
	b, err:=os.ReadFile(fileName)
	if err!=nil { return c, err }
	if err:=yaml.UnmarshalStrict(b, &c); err!=nil {
		return c, errors.Wrapf(err, "parsing %s", fileName)
	}
	m, err:=align.ParseMethod(string(c.Method))
	if err!=nil { return c, err }
	c.Method=m
	if _, _, err:=c.Mix(); err!=nil { return c, err }
	return c, nil
}

func (c Config) AsYaml() string {
	b, err:=yaml.Marshal(c)
	if err!=nil { return err.Error() }
	return string(b)
}

// Returns the configured weights and colours on top of the mix defaults
func (c Config) Mix() (composite.Weights, composite.Colors, error) {
	weights, colors:=composite.DefaultWeights(), composite.DefaultColors()
	for name, w:=range c.Weights {
		s, err:=channel.ParseSlot(name)
		if err!=nil { return weights, colors, err }
		weights[s]=composite.ClampWeight(w)
	}
	for name, hex:=range c.Colors {
		s, err:=channel.ParseSlot(name)
		if err!=nil { return weights, colors, err }
		col, err:=ParseColor(hex)
		if err!=nil { return weights, colors, err }
		colors[s]=col
	}
	return weights, colors, nil
}

// Parses an opaque colour in #rrggbb notation
func ParseColor(hex string) (color.RGBA, error) {
	c, err:=colorful.Hex(hex)
	if err!=nil { return color.RGBA{}, errors.Wrapf(err, "colour '%s'", hex) }
	r, g, b:=c.RGB255()
	return color.RGBA{r, g, b, 255}, nil
}

// Formats an opaque colour in #rrggbb notation
func FormatColor(c color.RGBA) string {
	return colorful.Color{R:float64(c.R)/255, G:float64(c.G)/255, B:float64(c.B)/255}.Hex()
}
