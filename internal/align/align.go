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


// Package align registers a list of frames onto the first one, either with
// an external alignment tool or with median threshold bitmaps in process.
package align

import (
	"context"
	"fmt"
	"io"
	"strings"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

// Receives alignment progress in percent, 0..100
type ProgressFunc func(percent int)

// Receives one line of cleaned up output from an external aligner
type OutputFunc func(line string)

// Aligns an ordered list of frames. The first frame is the reference
type Aligner interface {
	Align(ctx context.Context, frames []*fits.Image, progress ProgressFunc) ([]*fits.Image, error)
}

// Alignment strategy
type Method string

const (
	MethodExternal Method = "external"  // align_image_stack or compatible tool
	MethodInternal Method = "internal"  // median threshold bitmaps
)

func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "external", "ais", "align_image_stack": return MethodExternal, nil
	case "internal", "mtb":                      return MethodInternal, nil
	}
	return "", fmt.Errorf("unknown alignment method '%s'", s)
}

// Settings for both strategies
type Config struct {
	Program   string      `yaml:"program"`   // external tool, default align_image_stack
	Args      []string    `yaml:"args"`      // leading arguments for the external tool, default -v
	AutoCrop  bool        `yaml:"autoCrop"`  // external only
	TempDir   string      `yaml:"tempDir"`   // parent for temporary files, default OS temp dir
	Levels    int         `yaml:"levels"`    // MTB pyramid levels
	Log       io.Writer   `yaml:"-"`
	Output    OutputFunc  `yaml:"-"`
}

// Creates the aligner for the given method
func New(method Method, cfg Config) (Aligner, error) {
	if cfg.Log==nil { cfg.Log=io.Discard }
	switch method {
	case MethodExternal:
		return NewExternal(cfg), nil
	case MethodInternal:
		return NewMTB(cfg), nil
	}
	return nil, fmt.Errorf("unknown alignment method '%s'", method)
}

// Reports progress if a callback is set
func report(progress ProgressFunc, percent int) {
	if progress!=nil { progress(percent) }
}
