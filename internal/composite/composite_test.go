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
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"github.com/valyala/fastrand"
	"golang.org/x/image/tiff"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

func randomPlane(n int) []float32 {
	rng:=fastrand.RNG{}
	p:=make([]float32, n)
	for i:=range p {
		p[i]=float32(rng.Uint32n(1001))/1000
	}
	return p
}

func constPlane(n int, v float32) []float32 {
	p:=make([]float32, n)
	for i:=range p { p[i]=v }
	return p
}

func TestCompositeNoChannels(t *testing.T) {
	_, err:=Composite(Channels{Width:4, Height:4}, NewMixMatrix(DefaultWeights(), DefaultColors()), true)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err=%v; want %v", err, ErrInvalidInput)
	}
}

func TestCompositePlaneSizeMismatch(t *testing.T) {
	var c Channels
	c.Width, c.Height = 4, 4
	c.Planes[channel.Red]=make([]float32, 15)
	_, err:=Composite(c, NewMixMatrix(DefaultWeights(), DefaultColors()), false)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err=%v; want wrapped %v", err, ErrInvalidInput)
	}
}

func TestCompositePureRed(t *testing.T) {
	var c Channels
	c.Width, c.Height = 3, 2
	c.Planes[channel.Red]=constPlane(6, 1)
	c.Planes[channel.Green]=constPlane(6, 0)
	weights:=Weights{}
	weights[channel.Red]=1
	img, err:=Composite(c, NewMixMatrix(weights, DefaultColors()), false)
	if err!=nil {
		t.Fatalf("composite: %v", err)
	}
	want:=color.RGBA{255, 0, 0, 255}
	for y:=0; y<2; y++ {
		for x:=0; x<3; x++ {
			if got:=img.RGBA8(x, y); got!=want {
				t.Errorf("(%d,%d)=%v; want %v", x, y, got, want)
			}
		}
	}
}

func TestCompositeLuminositySubstitution(t *testing.T) {
	w, h:=16, 8
	var c Channels
	c.Width, c.Height = w, h
	c.Planes[channel.Red]  =randomPlane(w*h)
	c.Planes[channel.Green]=randomPlane(w*h)
	c.Planes[channel.Blue] =randomPlane(w*h)
	c.Planes[channel.Luminosity]=constPlane(w*h, 0.5)
	weights:=DefaultWeights()
	weights[channel.H]=0
	m:=NewMixMatrix(weights, DefaultColors())

	plain, err:=Composite(c, m, false)
	if err!=nil { t.Fatalf("composite: %v", err) }
	withLum, err:=Composite(c, m, true)
	if err!=nil { t.Fatalf("composite: %v", err) }

	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			r, g, b:=plain.RGB(x, y)
			h0, s0, _:=colorful.Color{R:float64(r), G:float64(g), B:float64(b)}.Hsl()
			r, g, b=withLum.RGB(x, y)
			h1, s1, l1:=colorful.Color{R:float64(r), G:float64(g), B:float64(b)}.Hsl()
			if math.Abs(l1-0.5)>1e-4 {
				t.Errorf("(%d,%d) l=%v; want 0.5", x, y, l1)
			}
			if math.Abs(s1-s0)>1e-3 {
				t.Errorf("(%d,%d) s=%v; want %v", x, y, s1, s0)
			}
			if s0>1e-3 && math.Abs(h1-h0)>1e-2 && math.Abs(math.Abs(h1-h0)-360)>1e-2 {
				t.Errorf("(%d,%d) h=%v; want %v", x, y, h1, h0)
			}
		}
	}
}

func TestCompositeIgnoresMissingLuminosity(t *testing.T) {
	var c Channels
	c.Width, c.Height = 2, 2
	c.Planes[channel.Blue]=constPlane(4, 0.25)
	m:=NewMixMatrix(DefaultWeights(), DefaultColors())
	img, err:=Composite(c, m, true)
	if err!=nil { t.Fatalf("composite: %v", err) }
	if r, g, b:=img.RGB(1, 1); r!=0 || g!=0 || b!=0.25 {
		t.Errorf("rgb=%v,%v,%v; want 0,0,0.25", r, g, b)
	}
}

func TestMixMatrix(t *testing.T) {
	weights:=Weights{0.5, 0.5, 2, -1, 0.25}
	colors:=DefaultColors()
	colors[channel.H]=color.RGBA{255, 51, 0, 255}
	m:=NewMixMatrix(weights, colors)
	tests:=[]struct {
		row, col int
		want     float64
	}{
		{0, 0, 0.5},   // red tint, weight 0.5
		{1, 1, 1},     // green weight clamped to 1
		{2, 2, 0},     // blue weight clamped to 0
		{0, 3, 0.25},  // H red component
		{1, 3, 0.05},  // H green component 0.2*0.25
		{1, 0, 0},
	}
	for _,test:=range tests {
		if got:=m.M.At(test.row, test.col); math.Abs(got-test.want)>1e-9 {
			t.Errorf("M[%d][%d]=%v; want %v", test.row, test.col, got, test.want)
		}
	}
	r, g, b:=m.Mix(1, 1, 1, 1)
	if math.Abs(r-0.75)>1e-9 || math.Abs(g-1.05)>1e-9 || b!=0 {
		t.Errorf("mix=%v,%v,%v; want 0.75,1.05,0", r, g, b)
	}
}

func TestChannelsFromFrames(t *testing.T) {
	var frames [channel.NumSlots]*fits.Image
	frames[channel.Green]=fits.NewImageFromNaxisn([]int32{2, 1}, []float32{100, 300})
	c:=ChannelsFromFrames(frames)
	if c.Width!=2 || c.Height!=1 || c.NumLoaded()!=1 {
		t.Fatalf("channels=%dx%d with %d planes; want 2x1 with 1", c.Width, c.Height, c.NumLoaded())
	}
	if p:=c.Planes[channel.Green]; math.Abs(float64(p[0]))>1e-6 || math.Abs(float64(p[1]-1))>1e-6 {
		t.Errorf("green=%v; want [0 1]", p)
	}
}

func TestWriteFile(t *testing.T) {
	var c Channels
	c.Width, c.Height = 8, 4
	c.Planes[channel.Red]=randomPlane(32)
	c.Planes[channel.Blue]=randomPlane(32)
	img, err:=Composite(c, NewMixMatrix(DefaultWeights(), DefaultColors()), false)
	if err!=nil { t.Fatalf("composite: %v", err) }

	dir:=t.TempDir()
	for _,name:=range []string{"out.hdr", "out.tif", "out.jpg", "out.fits"} {
		fileName:=filepath.Join(dir, name)
		if err:=img.WriteFile(fileName, 90); err!=nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if st, err:=os.Stat(fileName); err!=nil || st.Size()==0 {
			t.Errorf("%s: stat=%v,%v; want non-empty file", name, st, err)
		}
	}
	if err:=img.WriteFile(filepath.Join(dir, "out.bmp"), 90); err==nil {
		t.Errorf("bmp: err=nil; want unsupported format")
	}

	f, err:=os.Open(filepath.Join(dir, "out.tif"))
	if err!=nil { t.Fatalf("open: %v", err) }
	defer f.Close()
	decoded, err:=tiff.Decode(f)
	if err!=nil { t.Fatalf("decode: %v", err) }
	if decoded.Bounds()!=image.Rect(0, 0, 8, 4) {
		t.Errorf("tiff bounds=%v; want 8x4", decoded.Bounds())
	}

	red, err:=fits.NewImageFromFile(filepath.Join(dir, "out.fits"), 0, io.Discard)
	if err!=nil { t.Fatalf("read fits: %v", err) }
	for i, v:=range red.Data {
		if v!=img.Data[3*i] {
			t.Fatalf("fits red[%d]=%v; want %v", i, v, img.Data[3*i])
		}
	}
}
