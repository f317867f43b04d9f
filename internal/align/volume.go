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
	"fmt"

	"github.com/mlnoga/scopealign/internal/imgseq"
)

// Estimates one rigid 3D (plane, row, col) translation per frame, treating the
// whole volume as a unit. Frames are processed strictly sequentially in
// acquisition order, each aligned against the running mean of all previously
// committed frames. Suited to datasets where the planes move together, for
// example axial drift of the whole stack
type VolumeTranslation struct {
	MaxDisplacement []int       // max allowed (plane, row, col) displacement magnitudes; nil=unconstrained
	Method          string      // "correlation"; "ECC" is declared but unimplemented
	MinShape        int         // pyramid termination extent; 0=DefaultMinShape
	Base            BaseAligner // coarsest-level aligner; nil=NewCorrAligner()
}

func NewVolumeTranslation(maxDisplacement []int) *VolumeTranslation {
	return &VolumeTranslation{MaxDisplacement: maxDisplacement, Method: MethodCorrelation}
}

func (s *VolumeTranslation) Estimate(ds imgseq.Dataset, c *Context) (Displacements, error) {
	shifts, _, err:=s.EstimateWithCorrelations(ds, c)
	return shifts, err
}

// Estimates displacements and also returns the achieved per-frame correlations,
// reported under a single pseudo-plane per frame
func (s *VolumeTranslation) EstimateWithCorrelations(ds imgseq.Dataset, c *Context) (Displacements, [][][]float32, error) {
	if err:=checkMethod(s.Method); err!=nil { return nil, nil, err }
	if s.MaxDisplacement!=nil && len(s.MaxDisplacement)!=3 {
		return nil, nil, fmt.Errorf("max displacement %v must have three components (plane, row, col)", s.MaxDisplacement)
	}
	var maxDisp *[3]int
	if s.MaxDisplacement!=nil && s.MaxDisplacement[0]>=0 && s.MaxDisplacement[1]>=0 && s.MaxDisplacement[2]>=0 {
		maxDisp=&[3]int{s.MaxDisplacement[0], s.MaxDisplacement[1], s.MaxDisplacement[2]}
	}
	minShape:=s.MinShape
	if minShape<=0 { minShape=DefaultMinShape }
	base:=s.Base
	if base==nil { base=NewCorrAligner() }

	acc:=NewAccumulator(ds.FrameShape())
	var ref *imgseq.Volume
	var minShift, maxShift [3]int

	out  :=make(Displacements, ds.Cycles())
	corrs:=make([][][]float32, ds.Cycles())
	for cycle:=0; cycle<ds.Cycles(); cycle++ {
		numFrames:=ds.Frames(cycle)
		fmt.Fprintf(c.Log, "Cycle %d: aligning %d volumes of %v sequentially\n", cycle, numFrames, ds.FrameShape())
		out[cycle]  =make([][][]int, numFrames)
		corrs[cycle]=make([][]float32, numFrames)

		for fi:=0; fi<numFrames; fi++ {
			frame, err:=ds.Frame(cycle, fi)
			if err!=nil { return nil, nil, err }
			if ref==nil { ref=frame }  // the very first frame also aligns, against itself

			var bounds *Bounds
			if maxDisp!=nil {
				bounds=&Bounds{}
				for i:=0; i<3; i++ {
					lo:=minShift[i]
					if v:=maxShift[i]-maxDisp[i]; v<lo { lo=v }
					hi:=maxShift[i]
					if v:=minShift[i]+maxDisp[i]; v>hi { hi=v }
					bounds.Lo[i]=acc.Offset[i]+lo
					bounds.Hi[i]=acc.Offset[i]+hi
				}
			}

			d, corr, err:=PyramidAlign(ref, frame, minShape, -1, bounds, base)
			if err!=nil {
				return nil, nil, fmt.Errorf("cycle %d frame %d: %s", cycle, fi, err.Error())
			}
			if !bounds.Contains(d) {
				return nil, nil, fmt.Errorf("cycle %d frame %d: displacement %v escaped bounds %v..%v", cycle, fi, d, bounds.Lo, bounds.Hi)
			}
			var rel [3]int
			for i:=0; i<3; i++ { rel[i]=d[i]-acc.Offset[i] }
			if maxDisp!=nil {
				for i:=0; i<3; i++ {
					if rel[i]>maxDisp[i] || -rel[i]>maxDisp[i] {
						return nil, nil, fmt.Errorf("cycle %d frame %d: displacement %v exceeds maximum %v from offset %v", cycle, fi, d, *maxDisp, acc.Offset)
					}
				}
			}

			for i:=0; i<3; i++ {
				if rel[i]<minShift[i] { minShift[i]=rel[i] }
				if rel[i]>maxShift[i] { maxShift[i]=rel[i] }
			}
			acc.Update(rel, frame)
			ref=acc.Mean()

			out[cycle][fi]  =[][]int{{rel[0], rel[1], rel[2]}}
			corrs[cycle][fi]=[]float32{corr}
		}
	}

	logCorrelationSummary(c.Log, corrs)
	return out, corrs, nil
}
