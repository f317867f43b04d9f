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
	"math"

	"github.com/mlnoga/scopealign/internal/imgseq"
)

// A growable online mean reference image: running per-voxel sums and counts of
// finite samples, plus the offset of the current array origin from the
// original allocation. The mean reference at any instant is Sums/Counts, NaN
// wherever no frame has contributed yet. Grows by zero-padding whenever a
// displaced frame falls outside the current extent; the channel axis never
// grows. Sums and Counts always have identical dimensions
type Accumulator struct {
	Sums   *imgseq.Volume
	Counts *imgseq.Volume
	Offset [3]int
}

func NewAccumulator(shape [4]int) *Accumulator {
	return &Accumulator{
		Sums:   imgseq.NewVolume(shape),
		Counts: imgseq.NewVolume(shape),
	}
}

// Adds the image into the running sums at the given (plane, row, col)
// displacement, growing the backing arrays as needed. Finite voxels add their
// value to Sums and one to Counts; non-finite voxels contribute nothing.
// Values accumulate additively, earlier contributions are never overwritten
func (a *Accumulator) Update(d [3]int, img *imgseq.Volume) {
	var insert [3]int
	for i:=0; i<3; i++ { insert[i]=d[i]+a.Offset[i] }
	a.grow(insert, img.Dims)

	// the offset only ever grows, to keep all historical insertion points valid
	for i:=0; i<3; i++ {
		if -d[i]>a.Offset[i] { a.Offset[i]=-d[i] }
		insert[i]=d[i]+a.Offset[i]
	}

	sums, counts:=a.Sums, a.Counts
	for p:=0; p<img.Dims[0]; p++ {
		for r:=0; r<img.Dims[1]; r++ {
			src:=img.Index(p, r, 0, 0)
			dst:=sums.Index(insert[0]+p, insert[1]+r, insert[2], 0)
			rowLen:=img.Dims[2]*img.Dims[3]
			for i:=0; i<rowLen; i++ {
				v:=img.Data[src+i]
				if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
					sums.Data[dst+i]+=v
					counts.Data[dst+i]+=1
				}
			}
		}
	}
}

// Zero-pads sums and counts so that an image of the given dimensions fits at
// the given insertion point. Pads low where the insertion point is negative,
// high where it reaches past the current extent
func (a *Accumulator) grow(insert [3]int, imgDims [4]int) {
	var padLo, padHi [3]int
	needed:=false
	cur:=a.Sums.Dims
	for i:=0; i<3; i++ {
		if insert[i]<0 { padLo[i]=-insert[i]; needed=true }
		if over:=insert[i]+imgDims[i]-cur[i]; over>0 { padHi[i]=over; needed=true }
	}
	if !needed { return }

	newDims:=[4]int{cur[0]+padLo[0]+padHi[0], cur[1]+padLo[1]+padHi[1], cur[2]+padLo[2]+padHi[2], cur[3]}
	a.Sums  =padVolume(a.Sums,   newDims, padLo)
	a.Counts=padVolume(a.Counts, newDims, padLo)
}

func padVolume(v *imgseq.Volume, dims [4]int, lo [3]int) *imgseq.Volume {
	out:=imgseq.NewVolume(dims)
	rowLen:=v.Dims[2]*v.Dims[3]
	for p:=0; p<v.Dims[0]; p++ {
		for r:=0; r<v.Dims[1]; r++ {
			src:=v.Index(p, r, 0, 0)
			dst:=out.Index(lo[0]+p, lo[1]+r, lo[2], 0)
			copy(out.Data[dst:dst+rowLen], v.Data[src:src+rowLen])
		}
	}
	return out
}

// Reports whether any frame has contributed to the given plane yet
func (a *Accumulator) PlaneSeeded(p int) bool {
	plane:=a.Counts.Plane(p)
	for _,c:=range plane.Data {
		if c!=0 { return true }
	}
	return false
}

// Current mean reference for the given plane, as a fresh single-plane volume.
// Voxels without contributions are NaN
func (a *Accumulator) MeanPlane(p int) *imgseq.Volume {
	sums, counts:=a.Sums.Plane(p), a.Counts.Plane(p)
	out:=imgseq.NewVolume(sums.Dims)
	for i,s:=range sums.Data {
		out.Data[i]=s/counts.Data[i]  // 0/0 yields the expected NaN
	}
	return out
}

// Current mean reference across all planes, as a fresh volume
func (a *Accumulator) Mean() *imgseq.Volume {
	out:=imgseq.NewVolume(a.Sums.Dims)
	for i,s:=range a.Sums.Data {
		out.Data[i]=s/a.Counts.Data[i]
	}
	return out
}
