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
	"image"
	"image/color"
	"math"
	"github.com/mdouchement/hdr/hdrcolor"
)

// A composited RGB image with unbounded float samples.
// Implements image.Image and hdr.Image
type Image struct {
	Width, Height int
	Data          []float32 // interleaved r,g,b
}

func NewImage(width, height int) *Image {
	return &Image{Width:width, Height:height, Data:make([]float32, 3*width*height)}
}

// Implement image.Image
func (img *Image) ColorModel() color.Model { return hdrcolor.RGBModel }
func (img *Image) Bounds() image.Rectangle { return image.Rect(0, 0, img.Width, img.Height) }
func (img *Image) At(x, y int) color.Color { return img.HDRAt(x, y) }

// Implement hdr.Image
func (img *Image) HDRAt(x, y int) hdrcolor.Color {
	r, g, b:=img.RGB(x, y)
	return hdrcolor.RGB{R:float64(r), G:float64(g), B:float64(b)}
}
func (img *Image) Size() int { return img.Width*img.Height }

// Raw samples at the given position
func (img *Image) RGB(x, y int) (r, g, b float32) {
	i:=3*(x+y*img.Width)
	return img.Data[i], img.Data[i+1], img.Data[i+2]
}

// Converts a sample to 8 bits, clamping to [0,1]
func to8(v float32) uint8 {
	if !(v>0) { return 0 }
	if v>=1   { return 255 }
	return uint8(math.Round(float64(v)*255))
}

// Converts a sample to 16 bits, clamping to [0,1]
func to16(v float32) uint16 {
	if !(v>0) { return 0 }
	if v>=1   { return 65535 }
	return uint16(math.Round(float64(v)*65535))
}

// Clamped 8-bit colour at the given position
func (img *Image) RGBA8(x, y int) color.RGBA {
	r, g, b:=img.RGB(x, y)
	return color.RGBA{to8(r), to8(g), to8(b), 255}
}

// Converts to an 8-bit RGBA image, clamping samples to [0,1]
func (img *Image) ToRGBA() *image.RGBA {
	res:=image.NewRGBA(img.Bounds())
	for y:=0; y<img.Height; y++ {
		for x:=0; x<img.Width; x++ {
			res.SetRGBA(x, y, img.RGBA8(x, y))
		}
	}
	return res
}

// Converts to a 16-bit RGBA image, clamping samples to [0,1]
func (img *Image) ToRGBA64() *image.RGBA64 {
	res:=image.NewRGBA64(img.Bounds())
	for y:=0; y<img.Height; y++ {
		for x:=0; x<img.Width; x++ {
			r, g, b:=img.RGB(x, y)
			res.SetRGBA64(x, y, color.RGBA64{to16(r), to16(g), to16(b), 65535})
		}
	}
	return res
}
