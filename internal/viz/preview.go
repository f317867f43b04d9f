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


package viz

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/mlnoga/scopealign/internal/align"
	"github.com/mlnoga/scopealign/internal/imgseq"
)

const plotSize   = 512
const plotMargin = 32

// Renders the estimated motion path as a PNG scatter plot, (col, row) shifts
// on the image axes. Each plane gets its own palette color; points fade from
// light to full saturation in temporal order, so drift direction is visible
func WriteShiftPlot(fileName string, shifts align.Displacements) error {
	if len(shifts)==0 || len(shifts[0])==0 || len(shifts[0][0])==0 {
		return errors.New("no shifts to plot")
	}
	planes:=len(shifts[0][0])

	// scale to the largest (row, col) excursion; 3D records use their last two components
	maxAbs:=1
	total:=0
	for _,cycle:=range shifts {
		for _,frame:=range cycle {
			total++
			for _,s:=range frame {
				dy, dx:=s[len(s)-2], s[len(s)-1]
				if dy>maxAbs { maxAbs=dy }
				if -dy>maxAbs { maxAbs=-dy }
				if dx>maxAbs { maxAbs=dx }
				if -dx>maxAbs { maxAbs=-dx }
			}
		}
	}
	scale:=float64(plotSize/2-plotMargin)/float64(maxAbs)

	img:=image.NewRGBA(image.Rect(0,0,plotSize,plotSize))
	for i:=0; i<len(img.Pix); i++ { img.Pix[i]=255 }
	axis:=color.RGBA{208,208,208,255}
	for i:=plotMargin; i<plotSize-plotMargin; i++ {
		img.Set(i, plotSize/2, axis)
		img.Set(plotSize/2, i, axis)
	}

	palette:=colorful.FastHappyPalette(planes)
	white:=colorful.Color{R:1, G:1, B:1}
	for p:=0; p<planes; p++ {
		var prev [2]float64
		havePrev:=false
		i:=0
		for _,cycle:=range shifts {
			for _,frame:=range cycle {
				s:=frame[p]
				dy, dx:=s[len(s)-2], s[len(s)-1]
				x:=float64(plotSize)/2+float64(dx)*scale
				y:=float64(plotSize)/2+float64(dy)*scale
				shade:=1.0
				if total>1 { shade=0.35+0.65*float64(i)/float64(total-1) }
				col:=white.BlendLab(palette[p], shade)
				if havePrev {
					drawLine(img, prev, [2]float64{x,y}, col)
				}
				drawDot(img, x, y, col)
				prev, havePrev=[2]float64{x,y}, true
				i++
			}
		}
	}
	return writePNG(fileName, img)
}

// Renders one plane of a volume as a false-color PNG, blue for low values
// through red for high ones. NaN voxels render black. Multi-channel volumes
// use channel 0
func WriteMeanPreview(fileName string, vol *imgseq.Volume, plane int) error {
	if plane<0 || plane>=vol.Dims[0] {
		return errors.New("plane out of range")
	}
	lo, hi:=math.Inf(1), math.Inf(-1)
	for r:=0; r<vol.Dims[1]; r++ {
		for c:=0; c<vol.Dims[2]; c++ {
			v:=float64(vol.At(plane, r, c, 0))
			if math.IsNaN(v) || math.IsInf(v,0) { continue }
			if v<lo { lo=v }
			if v>hi { hi=v }
		}
	}
	if !(lo<hi) { lo, hi=0, 1 }

	img:=image.NewRGBA(image.Rect(0, 0, vol.Dims[2], vol.Dims[1]))
	for r:=0; r<vol.Dims[1]; r++ {
		for c:=0; c<vol.Dims[2]; c++ {
			v:=float64(vol.At(plane, r, c, 0))
			if math.IsNaN(v) || math.IsInf(v,0) {
				img.Set(c, r, color.RGBA{0,0,0,255})
				continue
			}
			t:=(v-lo)/(hi-lo)
			cr, cg, cb:=colorful.Hsv(240*(1-t), 0.85, 0.2+0.8*t).RGB255()
			img.Set(c, r, color.RGBA{cr,cg,cb,255})
		}
	}
	return writePNG(fileName, img)
}

func drawDot(img *image.RGBA, x, y float64, col colorful.Color) {
	cr, cg, cb:=col.RGB255()
	c:=color.RGBA{cr,cg,cb,255}
	xi, yi:=int(x+0.5), int(y+0.5)
	for dy:=-1; dy<=1; dy++ {
		for dx:=-1; dx<=1; dx++ {
			img.Set(xi+dx, yi+dy, c)
		}
	}
}

func drawLine(img *image.RGBA, from, to [2]float64, col colorful.Color) {
	cr, cg, cb:=col.RGB255()
	c:=color.RGBA{cr,cg,cb,255}
	steps:=int(math.Abs(to[0]-from[0])+math.Abs(to[1]-from[1]))+1
	for i:=0; i<=steps; i++ {
		t:=float64(i)/float64(steps)
		img.Set(int(from[0]+(to[0]-from[0])*t+0.5), int(from[1]+(to[1]-from[1])*t+0.5), c)
	}
}

func writePNG(fileName string, img image.Image) error {
	f, err:=os.Create(fileName)
	if err!=nil { return err }
	defer f.Close()
	return png.Encode(f, img)
}
