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

// Inclusive per-axis displacement bounds on (plane, row, col).
// A nil *Bounds is unconstrained
type Bounds struct {
	Lo, Hi [3]int
}

// Reports whether the displacement satisfies the bounds. nil bounds admit all
func (b *Bounds) Contains(d [3]int) bool {
	if b==nil { return true }
	for i:=0; i<3; i++ {
		if d[i]<b.Lo[i] || d[i]>b.Hi[i] { return false }
	}
	return true
}

// Reports whether the bounds are well-formed, i.e. Lo <= Hi on every axis
func (b *Bounds) valid() bool {
	if b==nil { return true }
	for i:=0; i<3; i++ {
		if b.Lo[i]>b.Hi[i] { return false }
	}
	return true
}

// Scales the bounds down one pyramid level. On downsampled axes the lower
// bound is floor-halved and the upper bound ceil-halved, so every displacement
// admissible at this level remains representable one level down; other axes
// keep their exact bounds
func (b *Bounds) halve(axes [3]bool) *Bounds {
	if b==nil { return nil }
	out:=&Bounds{}
	for i:=0; i<3; i++ {
		if axes[i] {
			out.Lo[i]=floorDiv2(b.Lo[i])
			out.Hi[i]=ceilDiv2(b.Hi[i])
		} else {
			out.Lo[i]=b.Lo[i]
			out.Hi[i]=b.Hi[i]
		}
	}
	return out
}

func floorDiv2(x int) int {
	if x<0 { return (x-1)/2 }
	return x/2
}

func ceilDiv2(x int) int {
	if x>0 { return (x+1)/2 }
	return x/2
}
