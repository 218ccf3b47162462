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
	"os"
	"runtime"
	"testing"
	"time"
	"github.com/pkg/errors"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

// Copies each input file to its aligned output name, then reports completion
const copyScript=`prefix=$2; shift 2
if [ "$1" = "-C" ]; then shift; fi
i=0
for f in "$@"; do cp "$f" "$(printf '%s%04d.tif' "$prefix" $i)"; i=$((i+1)); done
printf 'Optimizing\r\033[1Astack: remapping 100\n'`

func randomFrame(id int, w, h int32) *fits.Image {
	rng:=fastrand.RNG{}
	data:=make([]float32, w*h)
	for i:=range data {
		data[i]=float32(rng.Uint32n(4096))
	}
	f:=fits.NewImageFromNaxisn([]int32{w, h}, data)
	f.ID=id
	return f
}

func shellAligner(t *testing.T, script string, removals *int) *External {
	if runtime.GOOS=="windows" {
		t.Skip("requires /bin/sh")
	}
	e:=NewExternal(Config{Program:"/bin/sh", Args:[]string{"-c", script, "ais"}, TempDir:t.TempDir()})
	e.removeTemp=func(dir string) error {
		(*removals)++
		return os.RemoveAll(dir)
	}
	return e
}

func TestExternalFailure(t *testing.T) {
	removals:=0
	e:=shellAligner(t, "echo failing; exit 7", &removals)
	var lines []string
	e.Output=func(line string) { lines=append(lines, line) }

	frames:=[]*fits.Image{randomFrame(0, 16, 8), randomFrame(1, 16, 8)}
	orig:=frames[1].Clone()
	res, err:=e.Align(context.Background(), frames, nil)

	var failed *FailedError
	if !errors.As(err, &failed) || failed.Code!=7 {
		t.Fatalf("err=%v; want FailedError with code 7", err)
	}
	if res!=nil {
		t.Errorf("res=%v; want nil", res)
	}
	if removals!=1 {
		t.Errorf("removals=%d; want 1", removals)
	}
	if len(lines)!=1 || lines[0]!="failing" {
		t.Errorf("output=%v; want [failing]", lines)
	}
	for i:=range orig.Data {
		if frames[1].Data[i]!=orig.Data[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
}

func TestExternalSuccess(t *testing.T) {
	removals:=0
	e:=shellAligner(t, copyScript, &removals)
	e.AutoCrop=true
	var percents []int
	frames:=[]*fits.Image{randomFrame(0, 16, 8), randomFrame(1, 16, 8), randomFrame(2, 16, 8)}
	res, err:=e.Align(context.Background(), frames, func(p int) { percents=append(percents, p) })
	if err!=nil {
		t.Fatalf("align: %v", err)
	}
	if removals!=1 {
		t.Errorf("removals=%d; want 1", removals)
	}
	if len(percents)==0 || percents[len(percents)-1]!=100 {
		t.Errorf("progress=%v; want ending in 100", percents)
	}
	if len(res)!=len(frames) {
		t.Fatalf("len(res)=%d; want %d", len(res), len(frames))
	}
	for i, f:=range frames {
		if res[i]==f {
			t.Errorf("res[%d] is the input frame; want a new frame", i)
		}
		if res[i].ID!=f.ID || !res[i].SameSize(f) {
			t.Errorf("res[%d] id,dims=%d,%s; want %d,%s", i, res[i].ID, res[i].DimensionsToString(), f.ID, f.DimensionsToString())
		}
		tol:=2*float64(f.Stats.Max-f.Stats.Min)/65535+0.01
		for j:=range f.Data {
			if math.Abs(float64(res[i].Data[j]-f.Data[j]))>tol {
				t.Fatalf("res[%d].Data[%d]=%v; want %v", i, j, res[i].Data[j], f.Data[j])
			}
		}
	}
}

func TestExternalLaunchError(t *testing.T) {
	e:=NewExternal(Config{Program:"/nonexistent/align_image_stack", TempDir:t.TempDir()})
	_, err:=e.Align(context.Background(), []*fits.Image{randomFrame(0, 4, 4)}, nil)
	var launch *LaunchError
	if !errors.As(err, &launch) {
		t.Errorf("err=%v; want LaunchError", err)
	}
}

func TestExternalInterrupted(t *testing.T) {
	removals:=0
	e:=shellAligner(t, "sleep 3; exit 0", &removals)
	e.waitDelay=200*time.Millisecond
	ctx, cancel:=context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start:=time.Now()
	_, err:=e.Align(ctx, []*fits.Image{randomFrame(0, 8, 8), randomFrame(1, 8, 8)}, nil)
	var failed *FailedError
	if !errors.Is(err, context.DeadlineExceeded) || errors.As(err, &failed) {
		t.Errorf("err=%v; want deadline exceeded", err)
	}
	if d:=time.Since(start); d>2*time.Second {
		t.Errorf("returned after %v; want well before the tool finishes", d)
	}
	if removals!=1 {
		t.Errorf("removals=%d; want 1", removals)
	}
}

func TestExternalChildKeepsOutputOpen(t *testing.T) {
	removals:=0
	e:=shellAligner(t, copyScript+"\nsleep 3 &", &removals)
	e.waitDelay=200*time.Millisecond

	start:=time.Now()
	res, err:=e.Align(context.Background(), []*fits.Image{randomFrame(0, 8, 8), randomFrame(1, 8, 8)}, nil)
	if err!=nil || len(res)!=2 {
		t.Fatalf("res,err=%d,%v; want 2 frames", len(res), err)
	}
	if d:=time.Since(start); d>2*time.Second {
		t.Errorf("returned after %v; want the exit of the tool itself", d)
	}
}

func TestCropToCommonSize(t *testing.T) {
	frames:=[]*fits.Image{randomFrame(0, 10, 8), randomFrame(1, 9, 9), randomFrame(2, 10, 9)}
	res:=cropToCommonSize(frames)
	for i, f:=range res {
		if f.Width()!=9 || f.Height()!=8 {
			t.Errorf("res[%d]=%s; want 9x8", i, f.DimensionsToString())
		}
	}
}

func TestParseMethod(t *testing.T) {
	tests:=[]struct {
		in   string
		want Method
		ok   bool
	}{
		{"external", MethodExternal, true},
		{"AIS", MethodExternal, true},
		{" mtb ", MethodInternal, true},
		{"internal", MethodInternal, true},
		{"hugin", "", false},
	}
	for _,test:=range tests {
		m, err:=ParseMethod(test.in)
		if (err==nil)!=test.ok || m!=test.want {
			t.Errorf("ParseMethod(%q)=%q,%v; want %q,%v", test.in, m, err, test.want, test.ok)
		}
	}
}
