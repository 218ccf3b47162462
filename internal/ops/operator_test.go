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


package ops

import (
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

func TestMaterializeAllJoinsAll(t *testing.T) {
	var running, maxRunning int32
	ins:=make([]Promise, 8)
	for i:=range ins {
		id:=i
		ins[i]=func() (*fits.Image, error) {
			n:=atomic.AddInt32(&running, 1)
			for {
				m:=atomic.LoadInt32(&maxRunning)
				if n<=m || atomic.CompareAndSwapInt32(&maxRunning, m, n) { break }
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			f:=fits.NewImageFromNaxisn([]int32{1,1}, nil)
			f.ID=id
			return f, nil
		}
	}
	outs, errs:=MaterializeAll(ins, 2)
	for i:=range ins {
		if errs[i]!=nil || outs[i]==nil || outs[i].ID!=i {
			t.Errorf("slot %d: out=%v err=%v; want image with id %d", i, outs[i], errs[i], i)
		}
	}
	if maxRunning>2 {
		t.Errorf("max concurrency=%d; want <=2", maxRunning)
	}
	if running!=0 {
		t.Errorf("running=%d after join; want 0", running)
	}
}

func TestMaterializeAllPerSlotErrors(t *testing.T) {
	boom:=errors.New("boom")
	ins:=[]Promise{
		nil,
		func() (*fits.Image, error) { return fits.NewImageFromNaxisn([]int32{1,1}, nil), nil },
		func() (*fits.Image, error) { return fits.NewImage(), boom },
		func() (*fits.Image, error) { panic("decoder exploded") },
	}
	outs, errs:=MaterializeAll(ins, 4)
	if outs[0]!=nil || errs[0]!=nil {
		t.Errorf("nil promise: out=%v err=%v; want nil, nil", outs[0], errs[0])
	}
	if outs[1]==nil || errs[1]!=nil {
		t.Errorf("good promise: out=%v err=%v; want image, nil", outs[1], errs[1])
	}
	if outs[2]!=nil || !errors.Is(errs[2], boom) {
		t.Errorf("failing promise: out=%v err=%v; want nil, boom", outs[2], errs[2])
	}
	var pe *PanicError
	if outs[3]!=nil || !errors.As(errs[3], &pe) || pe.Value!="decoder exploded" {
		t.Errorf("panicking promise: out=%v err=%v; want nil, PanicError", outs[3], errs[3])
	}
}

func TestOpLoad(t *testing.T) {
	fileName:=filepath.Join(t.TempDir(), "l.fits")
	img:=fits.NewImageFromNaxisn([]int32{4,3}, []float32{0,1,2,3,4,5,6,7,8,9,10,11})
	if err:=img.WriteFile(fileName); err!=nil {
		t.Fatalf("write: %v", err)
	}
	c:=NewContext(io.Discard)
	p, err:=NewOpLoad(2, fileName).MakePromise(c)
	if err!=nil || p==nil {
		t.Fatalf("promise=%v err=%v; want promise", p, err)
	}
	f, err:=p()
	if err!=nil {
		t.Fatalf("load: %v", err)
	}
	if f.ID!=2 || f.Width()!=4 || f.Height()!=3 {
		t.Errorf("id,dims=%d,%s; want 2,4x3", f.ID, f.DimensionsToString())
	}

	c.RestrictPaths=true
	if _, err=NewOpLoad(2, fileName).MakePromise(c); err==nil {
		t.Errorf("absolute path with restricted paths: err=nil; want error")
	}
	if p, err=NewOpLoad(0, "").MakePromise(c); p!=nil || err!=nil {
		t.Errorf("empty file name: promise=%v err=%v; want nil, nil", p, err)
	}
}

func TestIsPathAllowed(t *testing.T) {
	tests:=[]struct{ path string; want bool }{
		{"a.fits", true}, {"sub/a.fits", true}, {"/etc/passwd", false}, {"../a.fits", false},
	}
	for _,test:=range tests {
		if got:=IsPathAllowed(test.path); got!=test.want {
			t.Errorf("IsPathAllowed(%q)=%v; want %v", test.path, got, test.want)
		}
	}
}
