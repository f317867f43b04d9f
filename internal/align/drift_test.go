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
	"testing"
)

func biasedShifts(bias [2]int) Displacements {
	// two cycles of three frames, two planes; plane 1 carries a constant bias
	perFrame:=[][2]int{{0,0},{2,-1},{-1,1}}
	shifts:=make(Displacements, 2)
	for c:=range shifts {
		shifts[c]=make([][][]int, len(perFrame))
		for f,s:=range perFrame {
			shifts[c][f]=[][]int{
				{s[0], s[1]},
				{s[0]+bias[0], s[1]+bias[1]},
			}
		}
	}
	return shifts
}

func TestCorrectPlaneDriftRemovesBias(t *testing.T) {
	shifts:=biasedShifts([2]int{3,-2})
	CorrectPlaneDrift(shifts)
	for c:=range shifts {
		for f:=range shifts[c] {
			p0, p1:=shifts[c][f][0], shifts[c][f][1]
			if p1[0]!=p0[0] || p1[1]!=p0[1] {
				t.Errorf("cycle %d frame %d: plane 1 shift %v still differs from plane 0 %v", c, f, p1, p0)
			}
		}
	}
}

func TestCorrectPlaneDriftPreservesPlaneZero(t *testing.T) {
	shifts:=biasedShifts([2]int{3,-2})
	CorrectPlaneDrift(shifts)
	perFrame:=[][2]int{{0,0},{2,-1},{-1,1}}
	for c:=range shifts {
		for f,want:=range perFrame {
			got:=shifts[c][f][0]
			if got[0]!=want[0] || got[1]!=want[1] {
				t.Errorf("cycle %d frame %d: plane 0 shift %v altered, expect %v", c, f, got, want)
			}
		}
	}
}

func TestCorrectPlaneDriftIdempotent(t *testing.T) {
	shifts:=biasedShifts([2]int{1,4})
	CorrectPlaneDrift(shifts)
	want:=make([][]int, 0)
	for c:=range shifts {
		for f:=range shifts[c] {
			for p:=range shifts[c][f] {
				want=append(want, []int{shifts[c][f][p][0], shifts[c][f][p][1]})
			}
		}
	}
	CorrectPlaneDrift(shifts)
	i:=0
	for c:=range shifts {
		for f:=range shifts[c] {
			for p:=range shifts[c][f] {
				if shifts[c][f][p][0]!=want[i][0] || shifts[c][f][p][1]!=want[i][1] {
					t.Errorf("cycle %d frame %d plane %d changed on second pass: %v vs %v",
						c, f, p, shifts[c][f][p], want[i])
				}
				i++
			}
		}
	}
	CorrectPlaneDrift(Displacements{})  // empty input must not panic
}

func TestCorrectPlaneDriftFractionalBias(t *testing.T) {
	// plane 1 mean differs by 0.5 per dim; round-to-even keeps the alteration at zero
	shifts:=Displacements{{
		{{0,0},{0,1}},
		{{0,0},{1,0}},
	}}
	CorrectPlaneDrift(shifts)
	if shifts[0][0][1][1]!=1 || shifts[0][1][1][0]!=1 {
		t.Errorf("half-integer bias altered shifts: %v", shifts)
	}
}
