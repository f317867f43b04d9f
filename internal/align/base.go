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

	"gonum.org/v1/gonum/floats"
	"github.com/mlnoga/scopealign/internal/imgseq"
)

// Whole-image cross-correlation alignment by exhaustive displacement search.
// With bounds given, every displacement in the bounded box is scored; without
// bounds the search window spans half the smaller extent per axis. Candidates
// whose overlap cannot be scored (empty, or degenerate all-zero) are skipped
type CorrAligner struct {
	MaxRange int  // cap on the unbounded per-axis search radius; 0=no cap
}

func NewCorrAligner() *CorrAligner { return &CorrAligner{} }

func (a *CorrAligner) Align(ref, tgt *imgseq.Volume, bounds *Bounds) (d [3]int, corr float32, err error) {
	var lo, hi [3]int
	for i:=0; i<3; i++ {
		if bounds!=nil {
			lo[i], hi[i]=bounds.Lo[i], bounds.Hi[i]
		} else {
			r:=ref.Dims[i]
			if tgt.Dims[i]<r { r=tgt.Dims[i] }
			r/=2
			if a.MaxRange>0 && r>a.MaxRange { r=a.MaxRange }
			lo[i], hi[i]=-r, r
		}
	}

	var cands [][3]int
	var scores []float64
	for d0:=lo[0]; d0<=hi[0]; d0++ {
		for d1:=lo[1]; d1<=hi[1]; d1++ {
			for d2:=lo[2]; d2<=hi[2]; d2++ {
				cand:=[3]int{d0, d1, d2}
				c, err:=shiftedCorr(ref, tgt, cand)
				if err!=nil { continue }
				cands=append(cands, cand)
				scores=append(scores, float64(c))
			}
		}
	}
	if len(cands)==0 {
		return d, 0, fmt.Errorf("no scorable displacement in search window %v..%v", lo, hi)
	}
	best:=floats.MaxIdx(scores)
	return cands[best], float32(scores[best]), nil
}
