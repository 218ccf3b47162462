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
)

// Rotates the image by 90 degrees clockwise. Returns a new image, width and height swap
func (img *Image) Rotate90CW() *Image {
	w, h:=img.Naxisn[0], img.Naxisn[1]
	res:=NewImageFromNaxisn([]int32{h, w}, nil)
	res.ID, res.FileName, res.Exposure = img.ID, img.FileName, img.Exposure

	// source (x,y) lands at destination (h-1-y, x)
	d, r:=img.Data, res.Data
	for y:=int32(0); y<h; y++ {
		for x:=int32(0); x<w; x++ {
			r[(h-1-y) + x*h]=d[x + y*w]
		}
	}
	res.UpdateStats()
	return res
}

// Shifts the image content by the given integer offsets. Operates in-place.
// Pixels moved in from outside the image are filled with the minimum before the shift
func (img *Image) Shift(dx, dy int) {
	w, h:=int(img.Naxisn[0]), int(img.Naxisn[1])
	if dx==0 && dy==0 { return }
	if img.Stats==nil { img.UpdateStats() }
	fill:=img.Stats.Min
	d:=img.Data
	src:=append([]float32(nil), d...)

	for row:=0; row<h; row++ {
		srcRow:=row-dy
		for col:=0; col<w; col++ {
			srcCol:=col-dx
			if srcRow<0 || srcRow>=h || srcCol<0 || srcCol>=w {
				d[col + row*w]=fill
				continue
			}
			d[col + row*w]=src[srcCol + srcRow*w]
		}
	}
	img.UpdateStats()
}

// Crops the image to the given rectangle, which is clipped to the image bounds. Returns a new image
func (img *Image) Crop(rect image.Rectangle) *Image {
	rect=rect.Intersect(image.Rect(0, 0, img.Width(), img.Height()))
	w, h:=rect.Dx(), rect.Dy()
	if w==0 || h==0 { w, h, rect = 0, 0, image.Rectangle{} }
	res:=NewImageFromNaxisn([]int32{int32(w), int32(h)}, nil)
	res.ID, res.FileName, res.Exposure = img.ID, img.FileName, img.Exposure

	origWidth:=img.Width()
	for row:=0; row<h; row++ {
		srcOffset:=rect.Min.X + (row+rect.Min.Y)*origWidth
		copy(res.Data[row*w:(row+1)*w], img.Data[srcOffset:srcOffset+w])
	}
	res.UpdateStats()
	return res
}
