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

	"gonum.org/v1/gonum/stat"
)

// Removes constant inter-plane drift from the shift records, in place.
// Independent per-plane searches can settle on references that differ by a
// constant bias; this computes the mean shift of every plane across all cycles
// and frames and subtracts each plane's integer-rounded bias relative to plane
// zero. Relative motion within a plane's own sequence is preserved. Applying
// the correction twice is a no-op, as the residual bias rounds to zero
func CorrectPlaneDrift(shifts Displacements) {
	if len(shifts)==0 || len(shifts[0])==0 || len(shifts[0][0])==0 { return }
	planes:=len(shifts[0][0])
	dims:=len(shifts[0][0][0])

	// mean shift per plane over all (cycle, frame) pairs
	means:=make([][]float64, planes)
	for p:=0; p<planes; p++ {
		means[p]=make([]float64, dims)
		for d:=0; d<dims; d++ {
			var vals []float64
			for _,cycle:=range shifts {
				for _,frame:=range cycle {
					vals=append(vals, float64(frame[p][d]))
				}
			}
			means[p][d]=stat.Mean(vals, nil)
		}
	}

	for p:=0; p<planes; p++ {
		for d:=0; d<dims; d++ {
			alteration:=int(math.RoundToEven(means[p][d]-means[0][d]))
			if alteration==0 { continue }
			for _,cycle:=range shifts {
				for _,frame:=range cycle {
					frame[p][d]-=alteration
				}
			}
		}
	}
}
