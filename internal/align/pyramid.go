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

// Default minimum spatial extent below which an axis is no longer downsampled
const DefaultMinShape = 32

// Gaussian smoothing width used when building pyramid levels
const pyrSigma = 1.05

// A base aligner estimates the single best integer displacement between two
// volumes under optional bounds, by whole-image cross-correlation. It is
// invoked at the coarsest pyramid level only
type BaseAligner interface {
	Align(ref, tgt *imgseq.Volume, bounds *Bounds) (d [3]int, corr float32, err error)
}

// Estimates the integer displacement aligning target to reference by recursive
// coarse-to-fine search. Axes on which both volumes measure at least 2*minShape
// are Gaussian-smoothed and subsampled by two; the displacement found one level
// down (or by the base aligner once no axis qualifies, or maxLevels reaches
// zero) is doubled on downsampled axes and refined by trying all +-1
// adjustments on those axes at the current resolution, scored with normalized
// cross-correlation. A negative maxLevels means no level limit.
// Returns the winning displacement and its correlation score
func PyramidAlign(ref, tgt *imgseq.Volume, minShape, maxLevels int, bounds *Bounds, base BaseAligner) (d [3]int, corr float32, err error) {
	if !bounds.valid() {
		return d, 0, fmt.Errorf("invalid displacement bounds %v..%v", bounds.Lo, bounds.Hi)
	}
	axes, any:=downsampleAxes(ref, tgt, minShape)
	if maxLevels==0 || !any {
		return base.Align(ref, tgt, bounds)
	}

	coarse, _, err:=PyramidAlign(pyrDown(ref, axes), pyrDown(tgt, axes), minShape, maxLevels-1, bounds.halve(axes), base)
	if err!=nil { return d, 0, err }

	// upscale the coarse estimate to the current resolution
	for i:=0; i<3; i++ {
		if axes[i] { coarse[i]*=2 }
	}

	// local refinement: all +-1 adjustments on downsampled axes
	var adjLo, adjHi [3]int
	for i:=0; i<3; i++ {
		if axes[i] { adjLo[i], adjHi[i]=-1, 1 }
	}
	best, bestCorr, found:=[3]int{}, float32(math.Inf(-1)), false
	for a0:=adjLo[0]; a0<=adjHi[0]; a0++ {
		for a1:=adjLo[1]; a1<=adjHi[1]; a1++ {
			for a2:=adjLo[2]; a2<=adjHi[2]; a2++ {
				cand:=[3]int{coarse[0]+a0, coarse[1]+a1, coarse[2]+a2}
				if !bounds.Contains(cand) { continue }
				c, err:=shiftedCorr(ref, tgt, cand)
				if err!=nil { return d, 0, err }
				if c>bestCorr {
					best, bestCorr, found=cand, c, true
				}
			}
		}
	}
	if !found {
		return d, 0, fmt.Errorf("no refinement of coarse displacement %v lies within bounds %v..%v", coarse, bounds.Lo, bounds.Hi)
	}
	return best, bestCorr, nil
}

// Determines which spatial axes still qualify for downsampling, i.e. measure
// at least 2*minShape voxels in both volumes
func downsampleAxes(ref, tgt *imgseq.Volume, minShape int) (axes [3]bool, any bool) {
	for i:=0; i<3; i++ {
		smallest:=ref.Dims[i]
		if tgt.Dims[i]<smallest { smallest=tgt.Dims[i] }
		if smallest>=2*minShape {
			axes[i]=true
			any=true
		}
	}
	return axes, any
}

// Downsamples the volume by two along the given spatial axes: Gaussian
// smoothing with sigma 1.05 along those axes, then stride-2 subsampling.
// Other axes and the channel axis pass through unchanged. NaN voxels smear
// over the kernel support, which downstream correlation scoring tolerates
func pyrDown(v *imgseq.Volume, axes [3]bool) *imgseq.Volume {
	kernel:=gaussKernel(pyrSigma)
	smoothed:=v
	for axis:=0; axis<3; axis++ {
		if axes[axis] {
			smoothed=smoothAlongAxis(smoothed, axis, kernel)
		}
	}

	var dims [4]int
	dims[3]=v.Dims[3]
	for i:=0; i<3; i++ {
		if axes[i] { dims[i]=(v.Dims[i]+1)/2 } else { dims[i]=v.Dims[i] }
	}
	out:=imgseq.NewVolume(dims)
	var step [3]int
	for i:=0; i<3; i++ {
		if axes[i] { step[i]=2 } else { step[i]=1 }
	}
	for p:=0; p<dims[0]; p++ {
		for r:=0; r<dims[1]; r++ {
			for c:=0; c<dims[2]; c++ {
				src:=smoothed.Index(p*step[0], r*step[1], c*step[2], 0)
				dst:=out.Index(p, r, c, 0)
				for ch:=0; ch<dims[3]; ch++ {
					out.Data[dst+ch]=smoothed.Data[src+ch]
				}
			}
		}
	}
	return out
}

// Normalized 1D Gaussian kernel, truncated at four standard deviations
func gaussKernel(sigma float64) []float64 {
	radius:=int(4*sigma+0.5)
	kernel:=make([]float64, 2*radius+1)
	sum:=0.0
	for i:=-radius; i<=radius; i++ {
		w:=math.Exp(-float64(i*i)/(2*sigma*sigma))
		kernel[i+radius]=w
		sum+=w
	}
	for i:=range kernel {
		kernel[i]/=sum
	}
	return kernel
}

// Convolves the volume with the given kernel along one spatial axis,
// reflecting at the boundaries
func smoothAlongAxis(v *imgseq.Volume, axis int, kernel []float64) *imgseq.Volume {
	out:=imgseq.NewVolume(v.Dims)
	radius:=len(kernel)/2
	n:=v.Dims[axis]
	for p:=0; p<v.Dims[0]; p++ {
		for r:=0; r<v.Dims[1]; r++ {
			for c:=0; c<v.Dims[2]; c++ {
				for ch:=0; ch<v.Dims[3]; ch++ {
					pos:=[3]int{p, r, c}
					sum:=0.0
					for k:=-radius; k<=radius; k++ {
						q:=pos
						q[axis]=reflect(pos[axis]+k, n)
						sum+=kernel[k+radius]*float64(v.At(q[0], q[1], q[2], ch))
					}
					out.Set(p, r, c, ch, float32(sum))
				}
			}
		}
	}
	return out
}

// Mirrors an index into [0,n): ...dcba|abcd|dcba...
func reflect(i, n int) int {
	for i<0 || i>=n {
		if i<0 { i=-i-1 }
		if i>=n { i=2*n-i-1 }
	}
	return i
}
