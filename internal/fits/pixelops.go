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
	"runtime"
)


// A pixel function. Operates in-place. For parallelization across CPUs.
type PixelFunction func(data []float32, params interface{})


// Apply given pixel function to the data. Uses thead parallelism across all available CPUs. Operates in-place.
func ApplyPixelFunction(data []float32, pf PixelFunction, args interface{}) {
	// split into 8*NumCPU() work packages, limit parallelism to NumCPUS()
	numBatches:=8*runtime.NumCPU()
	batchSize :=(len(data)+numBatches-1)/(numBatches)
	sem       :=make(chan bool, runtime.NumCPU())
	for lower:=0; lower<len(data); lower+=batchSize {
		upper:=lower+batchSize
		if upper>len(data) { upper=len(data) }

		sem <- true
		go func(data []float32) {
			pf(data, args)
			<-sem
		}(data[lower:upper])
	}

	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}


// Arguments for pfScaleOffset
type pfScaleOffsetArgs struct {
	Scale, Offset float32
}

// Pixel function to apply a scale and an offset. 2nd parameter must be a pfScaleOffsetArgs. Operates in-place.
func pfScaleOffset(data []float32, params interface{}) {
	scale, offset :=params.(pfScaleOffsetArgs).Scale, params.(pfScaleOffsetArgs).Offset
	for i, d:=range data {
		data[i]=d*scale+offset
	}
}

// Applies given scale factor and offset to image. Operates in-place.
func (f* Image) ApplyScaleOffset(scale, offset float32) {
	ApplyPixelFunction(f.Data, pfScaleOffset, pfScaleOffsetArgs{scale, offset})
	f.UpdateStats()
}

// Maps the value range [fromMin, fromMax] to [toMin, toMax]. Operates in-place.
func (f* Image) Rescale(fromMin, fromMax, toMin, toMax float32) {
	if fromMax<=fromMin { return }
	scale:=(toMax-toMin)/(fromMax-fromMin)
	f.ApplyScaleOffset(scale, toMin-fromMin*scale)
}

// Returns a copy of the image data, normalized to [0..1] based on basic stats.
// Constant images normalize to all zeros
func (f* Image) Normalized() []float32 {
	res:=append([]float32(nil), f.Data...)
	scale:=1/f.Stats.Range()
	ApplyPixelFunction(res, pfScaleOffset, pfScaleOffsetArgs{scale, -f.Stats.Min*scale})
	return res
}
