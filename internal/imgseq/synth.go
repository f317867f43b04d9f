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
	"github.com/valyala/fastrand"
)

// Generates a synthetic single-cycle test sequence with known whole-frame motion.
// A broadband textured pattern is rendered per plane and channel on an enlarged
// canvas; frame k is the crop at margin+frameShifts[k], so a shift of (dy,dx)
// moves the scene content such that aligning frame k back to frame 0 requires
// exactly the displacement (dy,dx). Uniform noise of the given amplitude is added
// independently per frame.
// The texture is white noise smoothed by a 3x3 box filter: it decorrelates
// within a few pixels, so the correlation peak stays sharp at every pyramid
// level instead of degenerating into a broad ridge
func NewSyntheticSequence(shape [4]int, frameShifts [][2]int, noise float32, seed uint32) *Sequence {
	planes, rows, cols, channels:=shape[0], shape[1], shape[2], shape[3]

	margin:=4
	for _,s:=range frameShifts {
		for _,d:=range s {
			if d> margin { margin=d  }
			if -d>margin { margin=-d }
		}
	}
	margin+=4
	canvasRows, canvasCols:=rows+2*margin, cols+2*margin

	// render the textured scene pattern per plane and channel
	rng:=fastrand.RNG{}
	rng.Seed(seed|1)
	canvas:=make([]float32, planes*canvasRows*canvasCols*channels)
	field :=make([]float32, canvasRows*canvasCols)
	tmp   :=make([]float32, canvasRows*canvasCols)
	for p:=0; p<planes; p++ {
		for ch:=0; ch<channels; ch++ {
			for i:=range field {
				field[i]=float32(rng.Uint32n(2048))/1024.0-1.0
			}
			boxSmooth(field, tmp, canvasRows, canvasCols)
			for y:=0; y<canvasRows; y++ {
				for x:=0; x<canvasCols; x++ {
					idx:=((p*canvasRows+y)*canvasCols+x)*channels+ch
					canvas[idx]=field[y*canvasCols+x]
				}
			}
		}
	}

	// crop one frame per shift and add independent noise
	frames:=make([]*Volume, len(frameShifts))
	for fi, s:=range frameShifts {
		f:=NewVolume(shape)
		oy, ox:=margin+s[0], margin+s[1]
		for p:=0; p<planes; p++ {
			for r:=0; r<rows; r++ {
				for c:=0; c<cols; c++ {
					src:=((p*canvasRows+(r+oy))*canvasCols+(c+ox))*channels
					dst:=f.Index(p,r,c,0)
					for ch:=0; ch<channels; ch++ {
						n:=noise*(float32(rng.Uint32n(2048))/1024.0-1.0)
						f.Data[dst+ch]=canvas[src+ch]+n
					}
				}
			}
		}
		frames[fi]=f
	}

	return &Sequence{Shape: shape, Vols: [][]*Volume{frames}}
}

// Smooths the field in place with a separable 3x3 box filter, truncating the
// kernel at the borders. tmp must have the same length as field
func boxSmooth(field, tmp []float32, rows, cols int) {
	for y:=0; y<rows; y++ {
		for x:=0; x<cols; x++ {
			sum, n:=float32(0), 0
			for k:=-1; k<=1; k++ {
				if xx:=x+k; xx>=0 && xx<cols { sum+=field[y*cols+xx]; n++ }
			}
			tmp[y*cols+x]=sum/float32(n)
		}
	}
	for y:=0; y<rows; y++ {
		for x:=0; x<cols; x++ {
			sum, n:=float32(0), 0
			for k:=-1; k<=1; k++ {
				if yy:=y+k; yy>=0 && yy<rows { sum+=tmp[yy*cols+x]; n++ }
			}
			field[y*cols+x]=sum/float32(n)
		}
	}
}
