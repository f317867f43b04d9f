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
	"sync"

	"github.com/mlnoga/scopealign/internal/imgseq"
)

// Estimates 2D (row, col) translations for each imaging plane of every frame,
// aligning against an online mean reference that is refined as frames commit.
// Cycles are processed strictly in order; within a cycle, frames are dispatched
// to a worker pool and complete in arbitrary order. The expensive pyramid
// search runs outside the lock; all shared state access is serialized
type PlaneTranslation struct {
	MaxDisplacement []int       // max allowed (row, col) displacement magnitudes; nil=unconstrained
	Method          string      // "correlation"; "ECC" is declared but unimplemented
	NProcesses      int         // worker count; 0=half the hardware threads, min 1
	Partitions      []int       // reserved for spatial partitioning; accepted, not consumed
	MinShape        int         // pyramid termination extent; 0=DefaultMinShape
	Base            BaseAligner // coarsest-level aligner; nil=NewCorrAligner()
}

func NewPlaneTranslation(maxDisplacement []int, nProcesses int) *PlaneTranslation {
	return &PlaneTranslation{
		MaxDisplacement: maxDisplacement,
		Method:          MethodCorrelation,
		NProcesses:      nProcesses,
	}
}

// Mutable state shared by the alignment workers of one run: the reference
// accumulator plus the per-(cycle, frame, plane) shift and correlation
// records. Created at run start, discarded at run end. Every access happens
// under the single mutex; the seed decision and the seed write form one
// critical section, as do shift commit and accumulator update, closing the
// check-then-act window a coarser split would leave open
type planeRunState struct {
	mutex  sync.Mutex
	acc    *Accumulator
	shifts [][][][3]int
	corrs  [][][]float32
}

func newPlaneRunState(ds imgseq.Dataset) *planeRunState {
	planes:=ds.FrameShape()[0]
	st:=&planeRunState{acc: NewAccumulator(ds.FrameShape())}
	st.shifts=make([][][][3]int, ds.Cycles())
	st.corrs =make([][][]float32, ds.Cycles())
	for c:=0; c<ds.Cycles(); c++ {
		st.shifts[c]=make([][][3]int, ds.Frames(c))
		st.corrs[c] =make([][]float32, ds.Frames(c))
		for f:=0; f<ds.Frames(c); f++ {
			st.shifts[c][f]=make([][3]int, planes)
			st.corrs[c][f] =make([]float32, planes)
		}
	}
	return st
}

// Seeds the plane with this image if no frame has contributed to it yet.
// Decision and write are atomic; reports whether seeding happened
func (st *planeRunState) trySeed(cycle, frame, plane int, img *imgseq.Volume) bool {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	if st.acc.PlaneSeeded(plane) { return false }
	st.shifts[cycle][frame][plane]=[3]int{}
	st.corrs[cycle][frame][plane]=1
	st.acc.Update([3]int{plane, 0, 0}, img)
	return true
}

// Takes a consistent snapshot for an unlocked search: the current mean
// reference of the plane, the accumulator offset it was observed under, and
// the componentwise extremes of the committed shift history (zero-initialized
// slots of pending frames included, anchoring the bounds at zero)
func (st *planeRunState) snapshotPlane(plane int) (ref *imgseq.Volume, offset, minShift, maxShift [3]int) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	ref=st.acc.MeanPlane(plane)
	offset=st.acc.Offset
	for _,cycle:=range st.shifts {
		for _,frame:=range cycle {
			for _,s:=range frame {
				for i:=0; i<3; i++ {
					if s[i]<minShift[i] { minShift[i]=s[i] }
					if s[i]>maxShift[i] { maxShift[i]=s[i] }
				}
			}
		}
	}
	return ref, offset, minShift, maxShift
}

// Commits the shift and correlation for one (cycle, frame, plane) and applies
// the plane to the accumulator, in a single critical section. The relative
// shift is in scene coordinates, so the insertion point is re-derived from the
// offset current at commit time, not at snapshot time
func (st *planeRunState) commit(cycle, frame, plane int, rel [3]int, corr float32, img *imgseq.Volume) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.shifts[cycle][frame][plane]=rel
	st.corrs[cycle][frame][plane]=corr
	latest:=st.shifts[cycle][frame][plane]
	st.acc.Update([3]int{plane, latest[1], latest[2]}, img)
}

func (s *PlaneTranslation) Estimate(ds imgseq.Dataset, c *Context) (Displacements, error) {
	shifts, _, err:=s.EstimateWithCorrelations(ds, c)
	return shifts, err
}

// Estimates displacements and also returns the achieved per-plane correlations
func (s *PlaneTranslation) EstimateWithCorrelations(ds imgseq.Dataset, c *Context) (Displacements, [][][]float32, error) {
	if err:=checkMethod(s.Method); err!=nil { return nil, nil, err }
	if s.MaxDisplacement!=nil && len(s.MaxDisplacement)!=2 {
		return nil, nil, fmt.Errorf("max displacement %v must have two components (row, col)", s.MaxDisplacement)
	}
	var maxDisp *[3]int
	if s.MaxDisplacement!=nil && s.MaxDisplacement[0]>=0 && s.MaxDisplacement[1]>=0 {
		maxDisp=&[3]int{0, s.MaxDisplacement[0], s.MaxDisplacement[1]}
	}
	minShape:=s.MinShape
	if minShape<=0 { minShape=DefaultMinShape }
	base:=s.Base
	if base==nil { base=NewCorrAligner() }

	st:=newPlaneRunState(ds)
	nWorkers:=c.numWorkers(s.NProcesses)

	for cycle:=0; cycle<ds.Cycles(); cycle++ {
		numFrames:=ds.Frames(cycle)
		fmt.Fprintf(c.Log, "Cycle %d: aligning %d frames of %v on %d workers\n", cycle, numFrames, ds.FrameShape(), nWorkers)

		sem :=make(chan bool, nWorkers)
		errs:=make(chan error, numFrames)
		for fi:=0; fi<numFrames; fi++ {
			sem <- true
			go func(fi int) {
				defer func() { <-sem }()
				frame, err:=ds.Frame(cycle, fi)
				if err!=nil { errs <- err; return }
				errs <- s.alignFrame(st, frame, cycle, fi, maxDisp, minShape, base)
			}(fi)
		}
		for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
			sem <- true
		}
		var err error
		for i:=0; i<numFrames; i++ {  // collect errors; all of a cycle's tasks drain before the next cycle starts
			if e:=<-errs; e!=nil && err==nil { err=e }
		}
		if err!=nil { return nil, nil, err }
	}

	// drop the plane component from the records, then reconcile inter-plane drift
	out:=make(Displacements, len(st.shifts))
	for ci,cycle:=range st.shifts {
		out[ci]=make([][][]int, len(cycle))
		for fi,frame:=range cycle {
			out[ci][fi]=make([][]int, len(frame))
			for p,sh:=range frame {
				out[ci][fi][p]=[]int{sh[1], sh[2]}
			}
		}
	}
	CorrectPlaneDrift(out)
	logCorrelationSummary(c.Log, st.corrs)
	return out, st.corrs, nil
}

// Aligns all planes of one frame. Seed planes commit the identity shift
// without searching; otherwise the pyramid search runs on a locked snapshot,
// unlocked, and the result is validated against its bounds before committing
func (s *PlaneTranslation) alignFrame(st *planeRunState, frame *imgseq.Volume, cycle, fi int, maxDisp *[3]int, minShape int, base BaseAligner) error {
	for p:=0; p<frame.Dims[0]; p++ {
		plane:=frame.Plane(p)
		if st.trySeed(cycle, fi, p, plane) { continue }

		ref, offset, minShift, maxShift:=st.snapshotPlane(p)
		var bounds *Bounds
		if maxDisp!=nil {
			bounds=&Bounds{}
			for i:=0; i<3; i++ {
				lo:=minShift[i]
				if v:=maxShift[i]-maxDisp[i]; v<lo { lo=v }
				hi:=maxShift[i]
				if v:=minShift[i]+maxDisp[i]; v>hi { hi=v }
				bounds.Lo[i]=offset[i]+lo
				bounds.Hi[i]=offset[i]+hi
			}
		}

		d, corr, err:=PyramidAlign(ref, plane, minShape, -1, bounds, base)
		if err!=nil {
			return fmt.Errorf("cycle %d frame %d plane %d: %s", cycle, fi, p, err.Error())
		}
		if !bounds.Contains(d) {
			return fmt.Errorf("cycle %d frame %d plane %d: displacement %v escaped bounds %v..%v", cycle, fi, p, d, bounds.Lo, bounds.Hi)
		}
		if maxDisp!=nil {
			for i:=0; i<3; i++ {
				rel:=d[i]-offset[i]
				if rel>maxDisp[i] || -rel>maxDisp[i] {
					return fmt.Errorf("cycle %d frame %d plane %d: displacement %v exceeds maximum %v from offset %v", cycle, fi, p, d, *maxDisp, offset)
				}
			}
		}
		st.commit(cycle, fi, p, [3]int{d[0]-offset[0], d[1]-offset[1], d[2]-offset[2]}, corr, plane)
	}
	return nil
}
