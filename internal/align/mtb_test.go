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
package align

import (
	"context"
	"math"
	"testing"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/composite"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

// Smooth test pattern, sampled with an offset
func pattern(id, w, h, offX, offY int, gain float32) *fits.Image {
	data:=make([]float32, w*h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			px, py:=float64(x+offX), float64(y+offY)
			v:=math.Sin(px*0.15)+math.Cos(py*0.11)+math.Sin((px+py)*0.07)
			data[x+y*w]=gain*float32(v+3)
		}
	}
	f:=fits.NewImageFromNaxisn([]int32{int32(w), int32(h)}, data)
	f.ID=id
	return f
}

func TestMTBEstimateShift(t *testing.T) {
	tests:=[]struct {
		offX, offY int
		wantX, wantY int
	}{
		{0, 0, 0, 0},
		{-3, 2, -3, 2},
		{5, 0, 5, 0},
		{1, -4, 1, -4},
	}
	m:=NewMTB(Config{})
	ref:=m.pyramid(pattern(0, 128, 96, 0, 0, 1000))
	for _,test:=range tests {
		// frame(x,y)=ref(x+offX, y+offY), so shifting by (offX, offY) restores ref
		frame:=m.pyramid(pattern(1, 128, 96, test.offX, test.offY, 300))
		dx, dy:=estimateShift(ref, frame)
		if dx!=test.wantX || dy!=test.wantY {
			t.Errorf("offset %d,%d: shift=%d,%d; want %d,%d", test.offX, test.offY, dx, dy, test.wantX, test.wantY)
		}
	}
}

func TestMTBAlign(t *testing.T) {
	ref:=pattern(0, 64, 64, 0, 0, 100)
	frame:=pattern(1, 64, 64, 2, 1, 50)
	orig:=frame.Clone()
	var percents []int
	res, err:=NewMTB(Config{}).Align(context.Background(), []*fits.Image{ref, frame}, func(p int) { percents=append(percents, p) })
	if err!=nil {
		t.Fatalf("align: %v", err)
	}
	if len(percents)!=2 || percents[1]!=100 {
		t.Errorf("progress=%v; want [50 100]", percents)
	}
	for i:=range orig.Data {
		if frame.Data[i]!=orig.Data[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
	// interior pixels now match the reference up to gain
	for y:=8; y<56; y++ {
		for x:=8; x<56; x++ {
			got, want:=res[1].Data[x+y*64], ref.Data[x+y*64]/2
			if math.Abs(float64(got-want))>1e-3 {
				t.Fatalf("res(%d,%d)=%v; want %v", x, y, got, want)
			}
		}
	}
}

func TestMTBKeepsBackgroundBlack(t *testing.T) {
	ref:=pattern(0, 64, 64, 0, 0, 100)
	frame:=pattern(1, 64, 64, 3, 0, 100)
	for _,f:=range []*fits.Image{ref, frame} {
		f.ApplyScaleOffset(1, 1000)
	}
	res, err:=NewMTB(Config{}).Align(context.Background(), []*fits.Image{ref, frame}, nil)
	if err!=nil {
		t.Fatalf("align: %v", err)
	}
	if res[1].Stats.Min!=frame.Stats.Min || res[1].Stats.Max!=frame.Stats.Max {
		t.Errorf("aligned range=%v..%v; want %v..%v", res[1].Stats.Min, res[1].Stats.Max, frame.Stats.Min, frame.Stats.Max)
	}

	var frames [channel.NumSlots]*fits.Image
	frames[channel.Red], frames[channel.Green] = res[0], res[1]
	img, err:=composite.Composite(composite.ChannelsFromFrames(frames), composite.NewMixMatrix(composite.DefaultWeights(), composite.DefaultColors()), false)
	if err!=nil {
		t.Fatalf("composite: %v", err)
	}
	// the three columns shifted in on the left are background
	for y:=0; y<64; y++ {
		for x:=0; x<3; x++ {
			if _, g, _:=img.RGB(x, y); math.Abs(float64(g))>1e-6 {
				t.Fatalf("green(%d,%d)=%v; want 0", x, y, g)
			}
		}
	}
	_, g, _:=img.RGB(40, 32)
	want:=(frame.Data[37+32*64]-frame.Stats.Min)/frame.Stats.Range()
	if math.Abs(float64(g-want))>1e-5 {
		t.Errorf("green(40,32)=%v; want %v", g, want)
	}
}

func TestMTBSizeMismatch(t *testing.T) {
	_, err:=NewMTB(Config{}).Align(context.Background(), []*fits.Image{pattern(0, 32, 32, 0, 0, 1), pattern(1, 32, 16, 0, 0, 1)}, nil)
	if err==nil {
		t.Errorf("err=nil; want size mismatch")
	}
}

func TestMTBCancelled(t *testing.T) {
	ctx, cancel:=context.WithCancel(context.Background())
	cancel()
	_, err:=NewMTB(Config{}).Align(ctx, []*fits.Image{pattern(0, 32, 32, 0, 0, 1), pattern(1, 32, 32, 1, 0, 1)}, nil)
	if err!=context.Canceled {
		t.Errorf("err=%v; want %v", err, context.Canceled)
	}
}

func TestNewSelectsStrategy(t *testing.T) {
	a, err:=New(MethodInternal, Config{})
	if _, ok:=a.(*MTB); err!=nil || !ok {
		t.Errorf("New(internal)=%T,%v; want *MTB", a, err)
	}
	a, err=New(MethodExternal, Config{})
	if e, ok:=a.(*External); err!=nil || !ok || e.Program!=DefaultProgram {
		t.Errorf("New(external)=%T,%v; want *External running %s", a, err, DefaultProgram)
	}
}
