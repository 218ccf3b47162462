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
package composite

import (
	"fmt"
	"runtime"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

// Returned when no channel plane was supplied at all
var ErrInvalidInput = errors.New("no channels to composite")

// Normalized sample planes in [0,1], indexed by channel.Slot. Nil planes are empty slots
type Channels struct {
	Width, Height int
	Planes        [channel.NumSlots][]float32
}

// Normalizes the loaded frames from their native value range to [0,1]
func ChannelsFromFrames(frames [channel.NumSlots]*fits.Image) Channels {
	var c Channels
	for s, f:=range frames {
		if f==nil { continue }
		c.Width, c.Height = f.Width(), f.Height()
		c.Planes[s]=f.Normalized()
	}
	return c
}

// Number of non-empty planes
func (c *Channels) NumLoaded() int {
	n:=0
	for _,p:=range c.Planes {
		if p!=nil { n++ }
	}
	return n
}

// Mixes the channel planes into an RGB image with [r g b] = M x [red green blue h].
// If useLuminosity is set and a luminosity plane is present, the lightness of each mixed
// colour is replaced with the luminosity sample, keeping hue and saturation.
// Runs in parallel over row batches
func Composite(samples Channels, m MixMatrix, useLuminosity bool) (*Image, error) {
	if samples.NumLoaded()==0 { return nil, ErrInvalidInput }
	n:=samples.Width*samples.Height
	if n<=0 { return nil, errors.Wrapf(ErrInvalidInput, "image size %dx%d", samples.Width, samples.Height) }
	for s, p:=range samples.Planes {
		if p!=nil && len(p)!=n {
			return nil, errors.Wrapf(ErrInvalidInput, "%s has %d samples, want %d", channel.Slot(s), len(p), n)
		}
	}

	var mix [4][]float32
	for k, s:=range MixSlots { mix[k]=samples.Planes[s] }
	var lum []float32
	if useLuminosity { lum=samples.Planes[channel.Luminosity] }

	img:=NewImage(samples.Width, samples.Height)
	coeffs:=m.coefficients()

	rowsPerBatch:=(samples.Height+8*runtime.NumCPU()-1)/(8*runtime.NumCPU())
	sem:=make(chan bool, runtime.NumCPU())
	for lower:=0; lower<samples.Height; lower+=rowsPerBatch {
		upper:=lower+rowsPerBatch
		if upper>samples.Height { upper=samples.Height }

		sem <- true
		go func(from, to int) {
			mixRows(img, mix, lum, &coeffs, from*samples.Width, to*samples.Width)
			<-sem
		}(lower, upper)
	}
	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
	return img, nil
}

// Mixes pixels [from, to) into the image
func mixRows(img *Image, mix [4][]float32, lum []float32, coeffs *[3][4]float32, from, to int) {
	for i:=from; i<to; i++ {
		var in [4]float32
		for k, p:=range mix {
			if p!=nil { in[k]=p[i] }
		}
		var rgb [3]float32
		for c:=0; c<3; c++ {
			row:=&coeffs[c]
			rgb[c]=row[0]*in[0] + row[1]*in[1] + row[2]*in[2] + row[3]*in[3]
		}
		if lum!=nil {
			rgb=substituteLightness(rgb, lum[i])
		}
		copy(img.Data[3*i:3*i+3], rgb[:])
	}
}

// Replaces the HSL lightness of the colour with l, keeping hue and saturation.
// The mix is clamped to [0,1] first
func substituteLightness(rgb [3]float32, l float32) [3]float32 {
	h, s, _:=colorful.Color{R:float64(rgb[0]), G:float64(rgb[1]), B:float64(rgb[2])}.Clamped().Hsl()
	c:=colorful.Hsl(h, s, float64(l))
	return [3]float32{float32(c.R), float32(c.G), float32(c.B)}
}

// Describes a mix for log output
func (m MixMatrix) String() string {
	c:=m.coefficients()
	return fmt.Sprintf("r=%.3v g=%.3v b=%.3v", c[0], c[1], c[2])
}
