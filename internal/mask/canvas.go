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


// Package mask maintains an anti-ghosting mask: a per-pixel buffer marking
// which exposure to exclude from fusion at each pixel, edited with a brush.
package mask

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"github.com/fogleman/gg"
)

// Pixels whose rasterized coverage reaches this alpha belong to a stroke
const coverageThreshold = 128

// A paintable mask buffer. Never resized after creation
type Canvas struct {
	img *image.RGBA
}

// Creates a fully transparent mask of the given size
func NewCanvas(width, height int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Creates a mask from a previously saved PNG file
func LoadCanvas(fileName string) (*Canvas, error) {
	src, err:=gg.LoadPNG(fileName)
	if err!=nil { return nil, err }
	b:=src.Bounds()
	c:=NewCanvas(b.Dx(), b.Dy())
	draw.Draw(c.img, c.img.Bounds(), src, b.Min, draw.Src)
	return c, nil
}

// Paints a filled circle into the mask, in place. If additive, covered pixels are set
// to the given color without blending. Otherwise they are cleared to fully transparent,
// regardless of the color. Returns the damaged rectangle, clipped to the mask
func (c *Canvas) PaintStroke(center gg.Point, radius float64, col color.RGBA, additive bool) image.Rectangle {
	if radius<=0 || math.IsNaN(radius) || math.IsInf(radius, 0) { return image.Rectangle{} }
	damage:=image.Rect(
		int(math.Floor(center.X-radius)), int(math.Floor(center.Y-radius)),
		int(math.Ceil(center.X+radius))+1, int(math.Ceil(center.Y+radius))+1,
	).Intersect(c.img.Bounds())
	if damage.Empty() { return image.Rectangle{} }

	// rasterize the circle in a local context covering the damaged area only
	dc:=gg.NewContext(damage.Dx(), damage.Dy())
	dc.DrawEllipse(center.X-float64(damage.Min.X), center.Y-float64(damage.Min.Y), radius, radius)
	dc.SetRGBA(0, 0, 0, 1)
	dc.Fill()
	coverage:=dc.AsMask()

	if !additive { col=color.RGBA{} }
	for y:=0; y<damage.Dy(); y++ {
		for x:=0; x<damage.Dx(); x++ {
			if coverage.AlphaAt(x, y).A>=coverageThreshold {
				c.img.SetRGBA(damage.Min.X+x, damage.Min.Y+y, col)
			}
		}
	}
	return damage
}

// Draws the mask unscaled at the origin of the destination, blending over its content
func (c *Canvas) Draw(dst draw.Image) {
	draw.Draw(dst, c.img.Bounds(), c.img, image.Point{}, draw.Over)
}

// The rectangle covered by the mask, exactly the buffer size
func (c *Canvas) BoundingRect() image.Rectangle {
	return c.img.Bounds()
}

// The underlying buffer, for downstream readers
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Clears the whole mask to transparent
func (c *Canvas) Clear() {
	for i:=range c.img.Pix {
		c.img.Pix[i]=0
	}
}

// Fraction of pixels with non-zero alpha
func (c *Canvas) Coverage() float64 {
	b:=c.img.Bounds()
	if b.Empty() { return 0 }
	n:=0
	for i:=3; i<len(c.img.Pix); i+=4 {
		if c.img.Pix[i]!=0 { n++ }
	}
	return float64(n)/float64(b.Dx()*b.Dy())
}

// Saves the mask as PNG file
func (c *Canvas) SavePNG(fileName string) error {
	return gg.SavePNG(fileName, c.img)
}

// Encodes the mask as PNG
func (c *Canvas) EncodePNG(w io.Writer) error {
	return gg.NewContextForRGBA(c.img).EncodePNG(w)
}
