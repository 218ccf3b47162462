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


package channel

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/fitsmerge/internal/fits"
	"github.com/mlnoga/fitsmerge/internal/ops"
)

// Writes a random FITS frame of the given size and returns its file name
func writeFrame(t *testing.T, dir, name string, w, h int32) string {
	t.Helper()
	rng:=fastrand.RNG{}
	data:=make([]float32, w*h)
	for i:=range data {
		data[i]=float32(rng.Uint32n(4096))
	}
	fileName:=filepath.Join(dir, name)
	if err:=fits.NewImageFromNaxisn([]int32{w, h}, data).WriteFile(fileName); err!=nil {
		t.Fatalf("write %s: %v", fileName, err)
	}
	return fileName
}

func assertCleared(t *testing.T, items Items) {
	t.Helper()
	for _,s:=range Slots {
		if items[s].Identifier!="" || items[s].Frame!=nil || items[s].Valid {
			t.Errorf("%s: item=%+v; want cleared", s, items[s])
		}
	}
}

func TestLoadAllEmpty(t *testing.T) {
	l:=NewLoader(ops.NewContext(io.Discard))
	items, err:=l.Load(context.Background(), [NumSlots]string{})
	if err!=nil {
		t.Fatalf("err=%v; want nil", err)
	}
	for _,s:=range Slots {
		it:=items[s]
		if !it.Empty() || it.Valid || it.Frame!=nil {
			t.Errorf("%s: item=%+v; want placeholder", s, it)
		}
		if it.Thumbnail==nil || it.Thumbnail.Bounds().Dx()!=DefaultThumbWidth {
			t.Errorf("%s: thumbnail=%v; want black 300x200", s, it.Thumbnail)
			continue
		}
		for _,p:=range it.Thumbnail.Pix {
			if p!=0 { t.Errorf("%s: placeholder thumbnail not black", s); break }
		}
	}
	if frames, _:=items.Frames(); len(frames)!=0 {
		t.Errorf("frames=%d; want 0", len(frames))
	}
}

func TestLoadSomeChannels(t *testing.T) {
	dir:=t.TempDir()
	ids:=[NumSlots]string{
		Red:  writeFrame(t, dir, "r.fits", 20, 10),
		Blue: writeFrame(t, dir, "b.fits", 20, 10),
	}
	l:=NewLoader(ops.NewContext(io.Discard))
	items, err:=l.Load(context.Background(), ids)
	if err!=nil {
		t.Fatalf("err=%v; want nil", err)
	}
	frames, slots:=items.Frames()
	if len(frames)!=2 || slots[0]!=Red || slots[1]!=Blue {
		t.Fatalf("slots=%v; want [red blue]", slots)
	}
	if frames[0].ID!=int(Red) || frames[1].ID!=int(Blue) {
		t.Errorf("ids=%d,%d; want slot indices", frames[0].ID, frames[1].ID)
	}
	if th:=items[Red].Thumbnail; th.Bounds().Dx()!=300 || th.Bounds().Dy()!=200 {
		t.Errorf("thumbnail=%v; want 300x200", th.Bounds())
	}
	if items[Green].Valid || !items[Green].Empty() {
		t.Errorf("green=%+v; want placeholder", items[Green])
	}
}

func TestLoadDimensionMismatch(t *testing.T) {
	dir:=t.TempDir()
	ids:=[NumSlots]string{
		Luminosity: writeFrame(t, dir, "l.fits", 16, 8),
		Red:        writeFrame(t, dir, "r.fits", 16, 8),
		Green:      writeFrame(t, dir, "g.fits", 17, 8),
		Blue:       writeFrame(t, dir, "b.fits", 16, 8),
	}
	l:=NewLoader(ops.NewContext(io.Discard))
	items, err:=l.Load(context.Background(), ids)
	var dme *DimensionMismatchError
	if !errors.As(err, &dme) {
		t.Fatalf("err=%v; want DimensionMismatchError", err)
	}
	if dme.Slot!=Green || dme.Width!=17 || dme.WantWidth!=16 {
		t.Errorf("mismatch=%+v; want green 17 vs 16", dme)
	}
	assertCleared(t, items)
	assertCleared(t, *l.Items())
}

func TestLoadDecodeError(t *testing.T) {
	dir:=t.TempDir()
	bad:=filepath.Join(dir, "bad.fits")
	if err:=os.WriteFile(bad, []byte("not a fits file"), 0644); err!=nil {
		t.Fatal(err)
	}
	ids:=[NumSlots]string{
		Red:   writeFrame(t, dir, "r.fits", 8, 8),
		Green: bad,
		Blue:  filepath.Join(dir, "missing.fits"),
	}
	l:=NewLoader(ops.NewContext(io.Discard))
	items, err:=l.Load(context.Background(), ids)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v; want DecodeError", err)
	}
	if de.Slot!=Green || de.Identifier!=bad {
		t.Errorf("decode error for %s %s; want first failing slot green", de.Slot, de.Identifier)
	}
	assertCleared(t, items)
	assertCleared(t, *l.Items())
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel:=context.WithCancel(context.Background())
	cancel()
	l:=NewLoader(ops.NewContext(io.Discard))
	if _, err:=l.Load(ctx, [NumSlots]string{Red: "r.fits"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err=%v; want context.Canceled", err)
	}
}

func TestRotateSelected(t *testing.T) {
	dir:=t.TempDir()
	l:=NewLoader(ops.NewContext(io.Discard))
	if _, err:=l.Load(context.Background(), [NumSlots]string{H: writeFrame(t, dir, "h.fits", 30, 10)}); err!=nil {
		t.Fatal(err)
	}
	before:=l.Items()[H].Thumbnail
	if err:=l.RotateSelected90CW(H); err!=nil {
		t.Fatalf("rotate: %v", err)
	}
	f:=l.Items()[H].Frame
	if f.Width()!=10 || f.Height()!=30 {
		t.Errorf("dims=%s; want 10x30", f.DimensionsToString())
	}
	if l.Items()[H].Thumbnail==before {
		t.Errorf("thumbnail not refreshed")
	}
	if err:=l.RotateSelected90CW(Red); err==nil {
		t.Errorf("rotating an empty slot: err=nil; want error")
	}
}

func TestParseSlot(t *testing.T) {
	tests:=[]struct{ in string; want Slot; ok bool }{
		{"lum", Luminosity, true}, {"Red", Red, true}, {"2", Green, true},
		{"b", Blue, true}, {"h-alpha", H, true}, {"uv", 0, false},
	}
	for _,test:=range tests {
		got, err:=ParseSlot(test.in)
		if (err==nil)!=test.ok || (test.ok && got!=test.want) {
			t.Errorf("ParseSlot(%q)=%v,%v; want %v,%v", test.in, got, err, test.want, test.ok)
		}
	}
}
