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
	"golang.org/x/image/draw"
	"github.com/mlnoga/fitsmerge/internal/channel"
)

const (
	PreviewWidth  = 300
	PreviewHeight = 200
)

// Renders fixed size previews of the composite from the channel thumbnails
type Preview struct {
	Width, Height int
	planes        [channel.NumSlots][]float32
}

func NewPreview() *Preview {
	return &Preview{Width:PreviewWidth, Height:PreviewHeight}
}

// Takes the thumbnails of the loaded items as preview sources. Unloaded slots render black
func (p *Preview) SetThumbnails(items *channel.Items) {
	for s:=range items {
		p.planes[s]=nil
		if it:=&items[s]; it.Valid && it.Thumbnail!=nil {
			p.planes[s]=p.samples(it.Thumbnail)
		}
	}
}

// Converts a thumbnail to normalized samples at preview size
func (p *Preview) samples(thumb *image.Gray) []float32 {
	if thumb.Bounds().Dx()!=p.Width || thumb.Bounds().Dy()!=p.Height {
		scaled:=image.NewGray(image.Rect(0, 0, p.Width, p.Height))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), thumb, thumb.Bounds(), draw.Src, nil)
		thumb=scaled
	}
	res:=make([]float32, p.Width*p.Height)
	for y:=0; y<p.Height; y++ {
		row:=thumb.Pix[y*thumb.Stride:]
		for x:=0; x<p.Width; x++ {
			res[x+y*p.Width]=float32(row[x])/255
		}
	}
	return res
}

// Renders the preview for the given mix. Without any loaded thumbnail the preview is black
func (p *Preview) Render(weights Weights, colors Colors, useLuminosity bool) *image.RGBA {
	samples:=Channels{Width:p.Width, Height:p.Height, Planes:p.planes}
	img, err:=Composite(samples, NewMixMatrix(weights, colors), useLuminosity)
	if err!=nil {
		black:=image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
		draw.Draw(black, black.Bounds(), image.Black, image.Point{}, draw.Src)
		return black
	}
	return img.ToRGBA()
}
