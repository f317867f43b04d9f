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
	"math"

	"github.com/mlnoga/scopealign/internal/imgseq"
)

// Scores a candidate integer displacement of target against reference with
// normalized cross-correlation over their overlap. Both volumes are clipped to
// the common overlap after applying the shift; each channel is centered on the
// mean of its finite voxels, non-finite voxels then count as zero. Per-channel
// Pearson correlations are averaged across channels. A non-finite result, or an
// empty overlap, signals a degenerate pairing and returns an error
func shiftedCorr(ref, tgt *imgseq.Volume, d [3]int) (float32, error) {
	if ref.Dims[3]!=tgt.Dims[3] {
		return 0, fmt.Errorf("correlation of %d-channel reference with %d-channel target", ref.Dims[3], tgt.Dims[3])
	}
	var refStart, tgtStart, size [3]int
	for i:=0; i<3; i++ {
		if d[i]>0 { refStart[i]=d[i]  } else { tgtStart[i]=-d[i] }
		size[i]=ref.Dims[i]-refStart[i]
		if s:=tgt.Dims[i]-tgtStart[i]; s<size[i] { size[i]=s }
		if size[i]<=0 {
			return 0, fmt.Errorf("displacement %v leaves no overlap between %v and %v", d, ref.Dims[:3], tgt.Dims[:3])
		}
	}

	channels:=ref.Dims[3]
	corrSum:=0.0
	for ch:=0; ch<channels; ch++ {
		// means over the finite voxels of each overlap
		refSum, tgtSum:=0.0, 0.0
		refCnt, tgtCnt:=0, 0
		for p:=0; p<size[0]; p++ {
			for r:=0; r<size[1]; r++ {
				ri:=ref.Index(refStart[0]+p, refStart[1]+r, refStart[2],   ch)
				ti:=tgt.Index(tgtStart[0]+p, tgtStart[1]+r, tgtStart[2],   ch)
				for c:=0; c<size[2]; c++ {
					rv:=float64(ref.Data[ri])
					if !math.IsNaN(rv) && !math.IsInf(rv,0) { refSum+=rv; refCnt++ }
					tv:=float64(tgt.Data[ti])
					if !math.IsNaN(tv) && !math.IsInf(tv,0) { tgtSum+=tv; tgtCnt++ }
					ri+=channels
					ti+=channels
				}
			}
		}
		refMean, tgtMean:=0.0, 0.0
		if refCnt>0 { refMean=refSum/float64(refCnt) }
		if tgtCnt>0 { tgtMean=tgtSum/float64(tgtCnt) }

		// centered cross and auto products, non-finite voxels as zero
		sir, sii, srr:=0.0, 0.0, 0.0
		for p:=0; p<size[0]; p++ {
			for r:=0; r<size[1]; r++ {
				ri:=ref.Index(refStart[0]+p, refStart[1]+r, refStart[2],   ch)
				ti:=tgt.Index(tgtStart[0]+p, tgtStart[1]+r, tgtStart[2],   ch)
				for c:=0; c<size[2]; c++ {
					rv, tv:=float64(ref.Data[ri]), float64(tgt.Data[ti])
					if math.IsNaN(rv) || math.IsInf(rv,0) { rv=0 } else { rv-=refMean }
					if math.IsNaN(tv) || math.IsInf(tv,0) { tv=0 } else { tv-=tgtMean }
					sir+=tv*rv
					sii+=tv*tv
					srr+=rv*rv
					ri+=channels
					ti+=channels
				}
			}
		}
		corr:=sir/math.Sqrt(sii*srr)
		if math.IsNaN(corr) || math.IsInf(corr,0) {
			return 0, fmt.Errorf("non-finite correlation for displacement %v, channel %d", d, ch)
		}
		corrSum+=corr
	}
	return float32(corrSum/float64(channels)), nil
}
