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
	"fmt"
	"io"
	"github.com/mlnoga/fitsmerge/internal/fits"
	"github.com/mlnoga/fitsmerge/internal/stats"
)

const DefaultLevels = 6
const minLevelSize  = 8             // smallest pyramid level, in pixels per axis
const medianSamples = 1<<16
const noiseFraction = float32(4)/256 // exclusion band around the median, as fraction of the value range

// Aligns frames in process by integer translation, using median threshold bitmaps
// on an image pyramid. Handles exposure differences between channels, not rotation
type MTB struct {
	Levels int
	Log    io.Writer
}

func NewMTB(cfg Config) *MTB {
	m:=&MTB{Levels:cfg.Levels, Log:cfg.Log}
	if m.Levels<=0 { m.Levels=DefaultLevels }
	if m.Log==nil  { m.Log=io.Discard }
	return m
}

// Returns shifted copies of the frames, registered onto the first one. Inputs are not modified
func (m *MTB) Align(ctx context.Context, frames []*fits.Image, progress ProgressFunc) ([]*fits.Image, error) {
	if len(frames)==0 { return nil, nil }
	ref:=frames[0]
	for _,f:=range frames[1:] {
		if !f.SameSize(ref) {
			return nil, fmt.Errorf("%d: size %s differs from reference %s", f.ID, f.DimensionsToString(), ref.DimensionsToString())
		}
	}

	refPyr:=m.pyramid(ref)
	res:=make([]*fits.Image, len(frames))
	res[0]=ref.Clone()
	report(progress, 100/len(frames))
	for i:=1; i<len(frames); i++ {
		if err:=ctx.Err(); err!=nil { return nil, err }
		dx, dy:=estimateShift(refPyr, m.pyramid(frames[i]))
		fmt.Fprintf(m.Log, "%d: shift %d,%d\n", frames[i].ID, dx, dy)
		res[i]=frames[i].Clone()
		res[i].Shift(dx, dy)
		// normalize from the native range, even if the extremes were shifted out
		if st:=frames[i].Stats; st!=nil {
			res[i].Stats.Min, res[i].Stats.Max = st.Min, st.Max
		}
		report(progress, 100*(i+1)/len(frames))
	}
	return res, nil
}

// One pyramid level, with threshold and exclusion bitmaps
type level struct {
	width, height int
	threshold     []bool  // pixel above median
	exclusion     []bool  // pixel far enough from median to count
}

// Builds the pyramid for a frame, finest level first
func (m *MTB) pyramid(f *fits.Image) []level {
	w, h:=f.Width(), f.Height()
	data:=f.Data
	levels:=[]level{newLevel(data, w, h)}
	for len(levels)<m.Levels && w/2>=minLevelSize && h/2>=minLevelSize {
		data, w, h = downsample(data, w, h)
		levels=append(levels, newLevel(data, w, h))
	}
	return levels
}

func newLevel(data []float32, w, h int) level {
	median:=stats.MedianUpTo(data, medianSamples)
	st:=stats.NewStats(data, int32(w))
	tol:=noiseFraction*(st.Max-st.Min)
	l:=level{width:w, height:h, threshold:make([]bool, len(data)), exclusion:make([]bool, len(data))}
	for i, d:=range data {
		l.threshold[i]=d>median
		l.exclusion[i]=d>median+tol || d<median-tol
	}
	return l
}

// Halves both dimensions with a 2x2 box filter
func downsample(data []float32, w, h int) (res []float32, w2, h2 int) {
	w2, h2 = w/2, h/2
	res=make([]float32, w2*h2)
	for y:=0; y<h2; y++ {
		for x:=0; x<w2; x++ {
			i:=2*x + 2*y*w
			res[x+y*w2]=0.25*(data[i]+data[i+1]+data[i+w]+data[i+w+1])
		}
	}
	return res, w2, h2
}

// Searches the shift which registers frame onto ref, from the coarsest level to the finest
func estimateShift(ref, frame []level) (dx, dy int) {
	n:=len(ref)
	if len(frame)<n { n=len(frame) }
	for lvl:=n-1; lvl>=0; lvl-- {
		dx, dy = 2*dx, 2*dy
		bestX, bestY:=dx, dy
		bestErr:=shiftError(ref[lvl], frame[lvl], dx, dy)
		for oy:=-1; oy<=1; oy++ {
			for ox:=-1; ox<=1; ox++ {
				if ox==0 && oy==0 { continue }
				e:=shiftError(ref[lvl], frame[lvl], dx+ox, dy+oy)
				if e<bestErr { bestErr, bestX, bestY = e, dx+ox, dy+oy }
			}
		}
		dx, dy = bestX, bestY
	}
	return dx, dy
}

// Returns the fraction of overlapping pixels where ref and the shifted frame disagree.
// Pixels within the noise band of either image count as agreeing
func shiftError(ref, frame level, dx, dy int) float64 {
	w, h:=ref.width, ref.height
	count, overlap:=0, 0
	for y:=0; y<h; y++ {
		sy:=y-dy
		if sy<0 || sy>=h { continue }
		for x:=0; x<w; x++ {
			sx:=x-dx
			if sx<0 || sx>=w { continue }
			i, j:=x+y*w, sx+sy*w
			overlap++
			if ref.threshold[i]!=frame.threshold[j] && ref.exclusion[i] && frame.exclusion[j] {
				count++
			}
		}
	}
	if overlap==0 { return 1 }
	return float64(count)/float64(overlap)
}
