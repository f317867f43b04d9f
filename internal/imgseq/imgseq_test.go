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
	"math"
	"testing"
)


func TestVolumeIndexing(t *testing.T) {
	v:=NewVolume([4]int{2,3,4,2})
	if v.Voxels()!=48 || len(v.Data)!=48 {
		t.Errorf("got %d voxels, expect 48", v.Voxels())
	}
	v.Set(1,2,3,1, 42)
	if v.At(1,2,3,1)!=42 {
		t.Errorf("got %f at (1,2,3,1), expect 42", v.At(1,2,3,1))
	}
	if v.Index(1,2,3,1)!=47 {
		t.Errorf("got index %d for last voxel, expect 47", v.Index(1,2,3,1))
	}
}

func TestPlaneSharesData(t *testing.T) {
	v:=NewVolume([4]int{3,4,5,1})
	p:=v.Plane(1)
	if p.Dims!=[4]int{1,4,5,1} {
		t.Errorf("got plane dims %v, expect [1 4 5 1]", p.Dims)
	}
	p.Set(0,2,3,0, 7)
	if v.At(1,2,3,0)!=7 {
		t.Errorf("write through plane view not visible in volume, got %f", v.At(1,2,3,0))
	}
}

func TestApplyShift(t *testing.T) {
	v:=NewVolume([4]int{1,4,4,1})
	for i:=range v.Data {
		v.Data[i]=float32(i)
	}
	out:=ApplyShift(v, [3]int{0,1,-1})
	if out.At(0,1,0,0)!=v.At(0,0,1,0) {
		t.Errorf("got %f at shifted position, expect %f", out.At(0,1,0,0), v.At(0,0,1,0))
	}
	// the first row and last column are uncovered and must be NaN
	if !math.IsNaN(float64(out.At(0,0,0,0))) || !math.IsNaN(float64(out.At(0,2,3,0))) {
		t.Errorf("uncovered voxels not NaN: %f %f", out.At(0,0,0,0), out.At(0,2,3,0))
	}
}

func TestNewSequenceRejectsMixedDims(t *testing.T) {
	a:=NewVolume([4]int{1,4,4,1})
	b:=NewVolume([4]int{1,4,5,1})
	if _, err:=NewSequence([][]*Volume{{a,b}}); err==nil {
		t.Errorf("expect error for mixed frame dimensions")
	}
	if _, err:=NewSequence(nil); err==nil {
		t.Errorf("expect error for empty sequence")
	}
}

func TestSyntheticSequence(t *testing.T) {
	shape:=[4]int{2,16,16,1}
	seq:=NewSyntheticSequence(shape, [][2]int{{0,0},{2,-1}}, 0, 123)
	if seq.Cycles()!=1 || seq.Frames(0)!=2 || seq.FrameShape()!=shape {
		t.Fatalf("got %d cycles of %d frames shape %v", seq.Cycles(), seq.Frames(0), seq.FrameShape())
	}
	f0, _:=seq.Frame(0,0)
	f1, _:=seq.Frame(0,1)
	// frame 1 is the scene cropped 2 rows down and 1 col left of frame 0,
	// so f1(r,c) must equal f0(r+2, c-1) on the common region
	for r:=0; r<shape[1]-2; r++ {
		for c:=1; c<shape[2]; c++ {
			if f1.At(0,r,c,0)!=f0.At(0,r+2,c-1,0) {
				t.Fatalf("shift mismatch at (%d,%d): %f vs %f", r, c, f1.At(0,r,c,0), f0.At(0,r+2,c-1,0))
			}
		}
	}
	if _, err:=seq.Frame(0, 5); err==nil {
		t.Errorf("expect error for out of range frame")
	}
}
