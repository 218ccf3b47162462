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


package stats

import (
	"fmt"
	"math"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/fitsmerge/internal/qsort"
)

// Basic statistics on a channel of image data
type Stats struct {
	Width  int32    // Width of the underlying image, for row-wise access
	Min    float32  // Minimum
	Max    float32  // Maximum
	Mean   float32  // Mean (average)
	StdDev float32  // Standard deviation (norm 2, sigma). Lazily calculated, -1 if not yet known
}

// Pretty print basic stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g", s.Min, s.Max, s.Mean, s.StdDev)
}

// Range of the data, i.e. Max-Min. Returns 1 for constant data, so callers can safely divide by it
func (s *Stats) Range() float32 {
	if r:=s.Max-s.Min; r>0 {
		return r
	}
	return 1
}

// Calculates basic statistics for a data array
func NewStats(data []float32, width int32) *Stats {
	if len(data)==0 {
		return &Stats{Width:width, StdDev:-1}
	}
	min, mean, max:=calcMinMeanMax(data)
	return NewStatsWithMMM(data, width, min, max, mean)
}

// Creates statistics from precomputed minimum, maximum and mean, e.g. from a file reader.
// Calculates the standard deviation from the data
func NewStatsWithMMM(data []float32, width int32, min, max, mean float32) *Stats {
	s:=&Stats{Width:width, Min:min, Max:max, Mean:mean}
	s.StdDev=float32(math.Sqrt(calcVariance(data, mean)))
	return s
}

// Calculate minimum, mean and maximum of given data
func calcMinMeanMax(data []float32) (min, mean, max float32) {
	mmin, mmean, mmax:=data[0], float64(0), data[0]
	for _,v := range data {
		if v<mmin { mmin=v }
		if v>mmax { mmax=v }
		mmean+=float64(v)
	}
	return mmin, float32(mmean/float64(len(data))), mmax
}

// Calculate variance of given data from provided mean
func calcVariance(data []float32, mean float32) (result float64) {
	if len(data)==0 { return 0 }
	variance:=float64(0)
	for _,v :=range data {
		diff:=float64(v-mean)
		variance+=diff*diff
	}
	return variance/float64(len(data))
}

func sampledMedian(rng *fastrand.RNG, data []float32, samples []float32) float32 {
	max:=uint32(len(data))
	for i:=range samples {
		index:=rng.Uint32n(max)
		samples[i]=data[index]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Returns the exact median of the data. Does not change the data
func Median(data []float32) float32 {
	tmp:=make([]float32, len(data))
	copy(tmp, data)
	return qsort.QSelectMedianFloat32(tmp)
}

// Returns the median of the data, exact if it holds no more than the given number of samples,
// and a sampled approximation otherwise. Sampling is seeded from the data length, so
// repeated calls on the same data return the same value
func MedianUpTo(data []float32, numSamples int) float32 {
	if len(data)<=numSamples {
		return Median(data)
	}
	rng:=fastrand.RNG{}
	rng.Seed(uint32(len(data)))
	return sampledMedian(&rng, data, make([]float32, numSamples))
}
