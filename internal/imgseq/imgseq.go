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


package imgseq

import (
	"errors"
	"fmt"
	"math"
)

// A dense image volume with axes (planes, rows, cols, channels).
// Data is stored row-major with the channel axis varying fastest.
// Voxel values are float32; NaN marks missing or invalid samples.
type Volume struct {
	Dims [4]int     // planes, rows, cols, channels
	Data []float32  // the voxel data, len=product of Dims
}

// Creates a volume of the given dimensions, initialized to zero
func NewVolume(dims [4]int) *Volume {
	numVoxels:=1
	for _,d:=range dims {
		numVoxels*=d
	}
	return &Volume{
		Dims: dims,
		Data: make([]float32, numVoxels),
	}
}

// Creates a volume from given dimensions and data. Data is not copied, allocated if nil
func NewVolumeFromData(dims [4]int, data []float32) *Volume {
	numVoxels:=1
	for _,d:=range dims {
		numVoxels*=d
	}
	if data==nil {
		data=make([]float32, numVoxels)
	}
	return &Volume{Dims: dims, Data: data}
}

// Number of voxels in the volume. Product of Dims
func (v *Volume) Voxels() int {
	return v.Dims[0]*v.Dims[1]*v.Dims[2]*v.Dims[3]
}

// Linear index of voxel (plane, row, col, channel)
func (v *Volume) Index(p, r, c, ch int) int {
	return ((p*v.Dims[1]+r)*v.Dims[2]+c)*v.Dims[3]+ch
}

// Value of voxel (plane, row, col, channel)
func (v *Volume) At(p, r, c, ch int) float32 {
	return v.Data[v.Index(p,r,c,ch)]
}

// Sets voxel (plane, row, col, channel) to the given value
func (v *Volume) Set(p, r, c, ch int, value float32) {
	v.Data[v.Index(p,r,c,ch)]=value
}

// Returns plane p as a single-plane volume sharing the underlying data
func (v *Volume) Plane(p int) *Volume {
	stride:=v.Dims[1]*v.Dims[2]*v.Dims[3]
	return &Volume{
		Dims: [4]int{1, v.Dims[1], v.Dims[2], v.Dims[3]},
		Data: v.Data[p*stride : (p+1)*stride],
	}
}

// Creates a deep copy of the volume
func (v *Volume) Clone() *Volume {
	data:=make([]float32, len(v.Data))
	copy(data, v.Data)
	return &Volume{Dims: v.Dims, Data: data}
}

// Sets every voxel to NaN
func (v *Volume) FillNaN() {
	nan:=float32(math.NaN())
	for i:=range v.Data {
		v.Data[i]=nan
	}
}

// Copies the volume translated by the given (plane, row, col) displacement.
// Voxels shifted outside the extent are dropped, uncovered voxels become NaN
func ApplyShift(v *Volume, d [3]int) *Volume {
	out:=NewVolume(v.Dims)
	out.FillNaN()
	for p:=0; p<v.Dims[0]; p++ {
		tp:=p+d[0]
		if tp<0 || tp>=v.Dims[0] { continue }
		for r:=0; r<v.Dims[1]; r++ {
			tr:=r+d[1]
			if tr<0 || tr>=v.Dims[1] { continue }
			for c:=0; c<v.Dims[2]; c++ {
				tc:=c+d[2]
				if tc<0 || tc>=v.Dims[2] { continue }
				src, dst:=v.Index(p,r,c,0), out.Index(tp,tr,tc,0)
				for ch:=0; ch<v.Dims[3]; ch++ {
					out.Data[dst+ch]=v.Data[src+ch]
				}
			}
		}
	}
	return out
}

// A dataset supplies an ordered sequence of cycles, each an ordered sequence
// of frames acquired over time. Iteration order is temporally significant.
// Implementations must tolerate concurrent Frame() reads
type Dataset interface {
	Cycles() int                            // number of cycles
	Frames(cycle int) int                   // number of frames in the given cycle
	Frame(cycle, frame int) (*Volume, error) // the given frame volume
	FrameShape() [4]int                     // (planes, rows, cols, channels) of every frame
}

// An in-memory dataset holding all frame volumes
type Sequence struct {
	Shape [4]int
	Vols  [][]*Volume  // indexed by cycle, then frame
}

// Creates an in-memory dataset from the given cycles of frames.
// All frames must share the same dimensions
func NewSequence(cycles [][]*Volume) (*Sequence, error) {
	if len(cycles)==0 || len(cycles[0])==0 { return nil, errors.New("sequence with no frames") }
	shape:=cycles[0][0].Dims
	for ci, cycle:=range cycles {
		for fi, frame:=range cycle {
			if frame.Dims!=shape {
				return nil, fmt.Errorf("cycle %d frame %d has dimensions %v, want %v", ci, fi, frame.Dims, shape)
			}
		}
	}
	return &Sequence{Shape: shape, Vols: cycles}, nil
}

func (s *Sequence) Cycles() int           { return len(s.Vols) }
func (s *Sequence) Frames(cycle int) int  { return len(s.Vols[cycle]) }
func (s *Sequence) FrameShape() [4]int    { return s.Shape }

func (s *Sequence) Frame(cycle, frame int) (*Volume, error) {
	if cycle<0 || cycle>=len(s.Vols) || frame<0 || frame>=len(s.Vols[cycle]) {
		return nil, fmt.Errorf("no frame %d in cycle %d", frame, cycle)
	}
	return s.Vols[cycle][frame], nil
}
