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


package mask

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"github.com/fogleman/gg"
	"github.com/valyala/fastrand"
)

// Fills the canvas with random opaque-ish noise
func noisyCanvas(w, h int) *Canvas {
	c:=NewCanvas(w, h)
	rng:=fastrand.RNG{}
	for i:=range c.img.Pix {
		c.img.Pix[i]=uint8(rng.Uint32n(256))
	}
	for i:=3; i<len(c.img.Pix); i+=4 {
		c.img.Pix[i]=255
	}
	return c
}

func TestEraseIsIdempotent(t *testing.T) {
	c:=noisyCanvas(64, 48)
	center:=gg.Point{X:30, Y:20}
	damage:=c.PaintStroke(center, 10, color.RGBA{255,0,0,255}, false)
	once:=append([]uint8(nil), c.img.Pix...)
	c.PaintStroke(center, 10, color.RGBA{0,0,255,128}, false)
	if !bytes.Equal(once, c.img.Pix) {
		t.Errorf("second erase changed the mask")
	}

	// center is erased, corners untouched
	if a:=c.img.RGBAAt(30, 20); a!=(color.RGBA{}) {
		t.Errorf("center=%v; want transparent", a)
	}
	if a:=c.img.RGBAAt(0, 0).A; a!=255 {
		t.Errorf("corner alpha=%d; want 255", a)
	}
	if !damage.In(c.BoundingRect()) || damage.Empty() {
		t.Errorf("damage=%v; want non-empty rectangle inside %v", damage, c.BoundingRect())
	}
}

func TestSolidFillIsIdempotent(t *testing.T) {
	c:=noisyCanvas(40, 40)
	col:=color.RGBA{0,100,0,100}
	c.PaintStroke(gg.Point{X:20, Y:20}, 8, col, true)
	once:=append([]uint8(nil), c.img.Pix...)
	c.PaintStroke(gg.Point{X:20, Y:20}, 8, col, true)
	if !bytes.Equal(once, c.img.Pix) {
		t.Errorf("second fill changed the mask")
	}
	if got:=c.img.RGBAAt(20, 20); got!=col {
		t.Errorf("center=%v; want %v without blending", got, col)
	}
}

func TestStrokeCoverage(t *testing.T) {
	tests:=[]struct{
		radius   float64
		min, max float64
	}{
		{ 0, 0, 0 },
		{ 5, 0.7*3.14159*25/10000, 1.3*3.14159*25/10000 },
		{ 20, 0.9*3.14159*400/10000, 1.1*3.14159*400/10000 },
		{ 500, 1, 1 },
	}
	for _,test:=range tests {
		c:=NewCanvas(100, 100)
		c.PaintStroke(gg.Point{X:50, Y:50}, test.radius, color.RGBA{255,255,255,255}, true)
		if cov:=c.Coverage(); cov<test.min || cov>test.max {
			t.Errorf("radius %v: coverage=%v; want in [%v, %v]", test.radius, cov, test.min, test.max)
		}
	}
}

func TestStrokeOutsideCanvas(t *testing.T) {
	c:=NewCanvas(10, 10)
	if d:=c.PaintStroke(gg.Point{X:-100, Y:-100}, 5, color.RGBA{255,0,0,255}, true); !d.Empty() {
		t.Errorf("damage=%v; want empty", d)
	}
	if cov:=c.Coverage(); cov!=0 {
		t.Errorf("coverage=%v; want 0", cov)
	}
}

func TestBoundingRectAndDraw(t *testing.T) {
	c:=NewCanvas(7, 5)
	if r:=c.BoundingRect(); r!=image.Rect(0,0,7,5) {
		t.Errorf("bounds=%v; want (0,0)-(7,5)", r)
	}
	c.PaintStroke(gg.Point{X:3.5, Y:2.5}, 2, color.RGBA{0,0,255,255}, true)
	dst:=image.NewRGBA(image.Rect(0,0,20,20))
	c.Draw(dst)
	if got:=dst.RGBAAt(3, 2); got!=(color.RGBA{0,0,255,255}) {
		t.Errorf("dst(3,2)=%v; want blue", got)
	}
	if got:=dst.RGBAAt(10, 10); got!=(color.RGBA{}) {
		t.Errorf("dst(10,10)=%v; want untouched", got)
	}
}

func TestSaveLoadPNG(t *testing.T) {
	c:=NewCanvas(16, 12)
	c.PaintStroke(gg.Point{X:8, Y:6}, 4, color.RGBA{255,0,0,255}, true)
	fileName:=filepath.Join(t.TempDir(), "mask.png")
	if err:=c.SavePNG(fileName); err!=nil {
		t.Fatalf("save: %v", err)
	}
	l, err:=LoadCanvas(fileName)
	if err!=nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(l.img.Pix, c.img.Pix) {
		t.Errorf("loaded mask differs from saved mask")
	}
	l.Clear()
	if cov:=l.Coverage(); cov!=0 {
		t.Errorf("coverage after clear=%v; want 0", cov)
	}
}
