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
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"
	"github.com/mlnoga/scopealign/internal/imgseq"
)

// Alignment method selectors accepted by the strategies
const (
	MethodCorrelation = "correlation"
	MethodECC         = "ECC"
)

var (
	// A configuration error: the method selector is not a known value
	ErrUnknownMethod = errors.New("unrecognized alignment method")
	// The ECC method is a valid selector, but not implemented
	ErrECCUnsupported = errors.New("ECC alignment method is not implemented")
)

// Validates a method selector. The empty string defaults to correlation
func checkMethod(method string) error {
	switch method {
	case "", MethodCorrelation:
		return nil
	case MethodECC:
		return ErrECCUnsupported
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// Estimated shifts indexed by cycle, frame and plane. The innermost slice
// holds (row, col) for plane-wise strategies and (plane, row, col) for volume
// strategies, which report a single pseudo-plane per frame
type Displacements [][][][]int

// A motion estimation strategy maps a dataset to the final, drift-corrected
// integer shift of every frame and plane
type Strategy interface {
	Estimate(ds imgseq.Dataset, c *Context) (Displacements, error)
}

// Builds the motion-corrected mean image of a dataset from estimated shifts,
// by accumulating every frame at its committed displacement
func ExportAligned(ds imgseq.Dataset, shifts Displacements) (*imgseq.Volume, error) {
	acc:=NewAccumulator(ds.FrameShape())
	for cycle:=0; cycle<ds.Cycles(); cycle++ {
		for fi:=0; fi<ds.Frames(cycle); fi++ {
			frame, err:=ds.Frame(cycle, fi)
			if err!=nil { return nil, err }
			for p, s:=range shifts[cycle][fi] {
				switch len(s) {
				case 2:
					acc.Update([3]int{p, s[0], s[1]}, frame.Plane(p))
				case 3:
					acc.Update([3]int{s[0], s[1], s[2]}, frame)
				default:
					return nil, fmt.Errorf("shift with %d components", len(s))
				}
			}
		}
	}
	return acc.Mean(), nil
}

// Produces a motion-corrected copy of one frame from its committed shifts,
// translating content into reference coordinates. Uncovered voxels become NaN.
// A single three-component shift translates the whole volume; otherwise one
// (row, col) shift per plane is expected
func ShiftFrame(frame *imgseq.Volume, shifts [][]int) (*imgseq.Volume, error) {
	if len(shifts)==1 && len(shifts[0])==3 {
		s:=shifts[0]
		return imgseq.ApplyShift(frame, [3]int{s[0], s[1], s[2]}), nil
	}
	if len(shifts)!=frame.Dims[0] {
		return nil, fmt.Errorf("%d shifts for a frame of %d planes", len(shifts), frame.Dims[0])
	}
	out:=imgseq.NewVolume(frame.Dims)
	for p, s:=range shifts {
		if len(s)!=2 { return nil, fmt.Errorf("shift with %d components", len(s)) }
		shifted:=imgseq.ApplyShift(frame.Plane(p), [3]int{0, s[0], s[1]})
		copy(out.Plane(p).Data, shifted.Data)
	}
	return out, nil
}

// Logs mean and standard deviation of the achieved correlations
func logCorrelationSummary(log io.Writer, corrs [][][]float32) {
	var vals []float64
	for _,cycle:=range corrs {
		for _,frame:=range cycle {
			for _,c:=range frame {
				vals=append(vals, float64(c))
			}
		}
	}
	if len(vals)==0 { return }
	mean, std:=stat.MeanStdDev(vals, nil)
	fmt.Fprintf(log, "Aligned %d frame planes with correlation %.4f +- %.4f\n", len(vals), mean, std)
}
