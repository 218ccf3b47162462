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
// Package composite mixes up to five normalized channel planes into one RGB image.
package composite

import (
	"image/color"
	"gonum.org/v1/gonum/mat"
	"github.com/mlnoga/fitsmerge/internal/channel"
)

// Slots contributing to the colour mix, in matrix column order. Luminosity only replaces lightness
var MixSlots = [4]channel.Slot{channel.Red, channel.Green, channel.Blue, channel.H}

// Per-slot weights in [0,1], indexed by channel.Slot. The luminosity entry is ignored
type Weights [channel.NumSlots]float64

// Per-slot tint colours, indexed by channel.Slot. The luminosity entry is ignored
type Colors [channel.NumSlots]color.RGBA

func DefaultWeights() Weights {
	return Weights{1, 1, 1, 1, 1}
}

func DefaultColors() Colors {
	var c Colors
	c[channel.Luminosity]=color.RGBA{255, 255, 255, 255}
	c[channel.Red]       =color.RGBA{255,   0,   0, 255}
	c[channel.Green]     =color.RGBA{  0, 255,   0, 255}
	c[channel.Blue]      =color.RGBA{  0,   0, 255, 255}
	c[channel.H]         =color.RGBA{255,   0,   0, 255}
	return c
}

// Clamps a weight to [0,1]
func ClampWeight(w float64) float64 {
	if w<0 || w!=w { return 0 }
	if w>1 { return 1 }
	return w
}

// The 3x4 colour mixing matrix. Column k holds the tint of MixSlots[k] scaled by its weight,
// so [r g b] = M x [red green blue h]
type MixMatrix struct {
	M *mat.Dense
}

// Builds the mixing matrix as tints x diag(weights)
func NewMixMatrix(weights Weights, colors Colors) MixMatrix {
	tints:=mat.NewDense(3, len(MixSlots), nil)
	diag:=make([]float64, len(MixSlots))
	for k, s:=range MixSlots {
		c:=colors[s]
		tints.Set(0, k, float64(c.R)/255)
		tints.Set(1, k, float64(c.G)/255)
		tints.Set(2, k, float64(c.B)/255)
		diag[k]=ClampWeight(weights[s])
	}
	var m mat.Dense
	m.Mul(tints, mat.NewDiagDense(len(MixSlots), diag))
	return MixMatrix{M:&m}
}

// Coefficients in row-major order, for the pixel loops
func (m MixMatrix) coefficients() (res [3][4]float32) {
	for row:=0; row<3; row++ {
		for col:=0; col<len(MixSlots); col++ {
			res[row][col]=float32(m.M.At(row, col))
		}
	}
	return res
}

// Mixes one set of samples
func (m MixMatrix) Mix(red, green, blue, h float64) (r, g, b float64) {
	var out mat.VecDense
	out.MulVec(m.M, mat.NewVecDense(4, []float64{red, green, blue, h}))
	return out.AtVec(0), out.AtVec(1), out.AtVec(2)
}
