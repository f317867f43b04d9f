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
	"testing"

	"github.com/mlnoga/scopealign/internal/imgseq"
)

func seqVolume(dims [4]int) *imgseq.Volume {
	v:=imgseq.NewVolume(dims)
	for i:=range v.Data {
		v.Data[i]=float32(i+1)
	}
	return v
}

func TestAccumulatorSeed(t *testing.T) {
	img:=seqVolume([4]int{1,4,4,1})
	acc:=NewAccumulator(img.Dims)
	if acc.PlaneSeeded(0) {
		t.Errorf("fresh accumulator reports plane seeded")
	}
	acc.Update([3]int{0,0,0}, img)
	if !acc.PlaneSeeded(0) {
		t.Errorf("plane not seeded after update")
	}
	mean:=acc.MeanPlane(0)
	for i:=range mean.Data {
		if mean.Data[i]!=img.Data[i] {
			t.Fatalf("mean differs from single contribution at %d: %f vs %f", i, mean.Data[i], img.Data[i])
		}
	}
}

func TestAccumulatorGrowth(t *testing.T) {
	img:=seqVolume([4]int{1,4,4,1})
	acc:=NewAccumulator(img.Dims)
	acc.Update([3]int{0,0,0}, img)
	acc.Update([3]int{0,-1,2}, img)

	// growing one row low and two cols high, offset tracks the origin move
	if acc.Sums.Dims!=[4]int{1,5,6,1} {
		t.Fatalf("got grown dims %v, expect [1 5 6 1]", acc.Sums.Dims)
	}
	if acc.Offset!=[3]int{0,1,0} {
		t.Errorf("got offset %v, expect [0 1 0]", acc.Offset)
	}

	mean:=acc.MeanPlane(0)
	// the first image now sits one row down; its top-left voxel is untouched
	// by the second update and must keep its exact value
	if mean.At(0,1,0,0)!=img.At(0,0,0,0) {
		t.Errorf("got %f at relocated origin, expect %f", mean.At(0,1,0,0), img.At(0,0,0,0))
	}
	// the second image sits at rows 0..3, cols 2..5; its last col is its own
	if mean.At(0,3,5,0)!=img.At(0,3,3,0) {
		t.Errorf("got %f at second image corner, expect %f", mean.At(0,3,5,0), img.At(0,3,3,0))
	}
	// where both contribute, the mean of both values
	want:=0.5*(img.At(0,1,2,0)+img.At(0,2,0,0))
	if mean.At(0,2,2,0)!=want {
		t.Errorf("got %f in overlap, expect %f", mean.At(0,2,2,0), want)
	}
	// corners covered by neither remain NaN
	if !math.IsNaN(float64(mean.At(0,0,0,0))) || !math.IsNaN(float64(mean.At(0,4,5,0))) {
		t.Errorf("uncovered voxels not NaN: %f %f", mean.At(0,0,0,0), mean.At(0,4,5,0))
	}
}

func TestAccumulatorSkipsNonFinite(t *testing.T) {
	img:=seqVolume([4]int{1,2,2,1})
	acc:=NewAccumulator(img.Dims)
	acc.Update([3]int{0,0,0}, img)

	holed:=img.Clone()
	holed.Set(0,0,0,0, float32(math.NaN()))
	holed.Set(0,1,1,0, float32(99))
	acc.Update([3]int{0,0,0}, holed)

	mean:=acc.MeanPlane(0)
	if mean.At(0,0,0,0)!=img.At(0,0,0,0) {
		t.Errorf("NaN contribution altered the mean: got %f, expect %f", mean.At(0,0,0,0), img.At(0,0,0,0))
	}
	want:=0.5*(img.At(0,1,1,0)+99)
	if mean.At(0,1,1,0)!=want {
		t.Errorf("got %f, expect %f", mean.At(0,1,1,0), want)
	}
}

func TestAccumulatorPlanesIndependent(t *testing.T) {
	img:=seqVolume([4]int{2,3,3,1})
	acc:=NewAccumulator(img.Dims)
	acc.Update([3]int{1,0,0}, img.Plane(0))
	if acc.PlaneSeeded(0) {
		t.Errorf("plane 0 reported seeded after updating plane 1 only")
	}
	if !acc.PlaneSeeded(1) {
		t.Errorf("plane 1 not seeded")
	}
	mean:=acc.Mean()
	if !math.IsNaN(float64(mean.At(0,0,0,0))) {
		t.Errorf("plane 0 mean not NaN: %f", mean.At(0,0,0,0))
	}
	if mean.At(1,0,0,0)!=img.At(0,0,0,0) {
		t.Errorf("got %f on plane 1, expect %f", mean.At(1,0,0,0), img.At(0,0,0,0))
	}
}
