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


package fits

import (
	"image"
	"golang.org/x/image/draw"
)

// Converts the image to 8-bit grayscale, mapping the value range [Min, Max] linearly to [0, 255]
func (f *Image) ToGray() *image.Gray {
	w, h:=f.Width(), f.Height()
	g:=image.NewGray(image.Rect(0, 0, w, h))
	if f.Stats==nil { f.UpdateStats() }
	min, scale:=f.Stats.Min, 255/f.Stats.Range()
	for i, d:=range f.Data {
		v:=(d-min)*scale
		if v<0 { v=0 } else if v>255 { v=255 }
		g.Pix[i]=uint8(v+0.5)
	}
	return g
}

// Creates a downsampled grayscale thumbnail of exactly the given size, using bilinear resampling
func (f *Image) Thumbnail(width, height int) *image.Gray {
	thumb:=image.NewGray(image.Rect(0, 0, width, height))
	if f.Width()==0 || f.Height()==0 { return thumb }
	draw.BiLinear.Scale(thumb, thumb.Bounds(), f.ToGray(), image.Rect(0, 0, f.Width(), f.Height()), draw.Src, nil)
	return thumb
}
