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
	"io"
	"sync"
	"testing"

	"github.com/mlnoga/scopealign/internal/imgseq"
)

func testContext() *Context {
	return &Context{Log: io.Discard, MemoryMB: 1024, MaxThreads: 4}
}

// wraps a base aligner and counts invocations
type countingAligner struct {
	inner BaseAligner
	mutex sync.Mutex
	calls int
}

func (a *countingAligner) Align(ref, tgt *imgseq.Volume, bounds *Bounds) ([3]int, float32, error) {
	a.mutex.Lock()
	a.calls++
	a.mutex.Unlock()
	return a.inner.Align(ref, tgt, bounds)
}

func TestPlaneTranslationStatic(t *testing.T) {
	seq:=imgseq.NewSyntheticSequence([4]int{2,48,48,1}, [][2]int{{0,0},{0,0},{0,0}}, 0, 5)
	counter:=&countingAligner{inner: NewCorrAligner()}
	s:=NewPlaneTranslation([]int{3,3}, 1)
	s.Base=counter

	shifts, corrs, err:=s.EstimateWithCorrelations(seq, testContext())
	if err!=nil { t.Fatalf("unexpected error %s", err.Error()) }

	for fi:=0; fi<3; fi++ {
		for p:=0; p<2; p++ {
			sh:=shifts[0][fi][p]
			if sh[0]!=0 || sh[1]!=0 {
				t.Errorf("frame %d plane %d: got shift %v, expect [0 0]", fi, p, sh)
			}
			if corrs[0][fi][p]<0.9999 {
				t.Errorf("frame %d plane %d: got correlation %f, expect 1", fi, p, corrs[0][fi][p])
			}
		}
	}
	// frame 0 seeds both planes without searching; 2 planes of 2 later frames align
	if counter.calls!=4 {
		t.Errorf("got %d base aligner calls, expect 4", counter.calls)
	}
}

func TestPlaneTranslationKnownShifts(t *testing.T) {
	frameShifts:=[][2]int{{0,0},{2,-1},{-1,2},{1,1},{0,-2}}
	seq:=imgseq.NewSyntheticSequence([4]int{1,64,64,1}, frameShifts, 0.01, 7)
	s:=NewPlaneTranslation([]int{4,4}, 1)

	shifts, corrs, err:=s.EstimateWithCorrelations(seq, testContext())
	if err!=nil { t.Fatalf("unexpected error %s", err.Error()) }

	// with one worker, frame 0 seeds the reference, so the estimates equal
	// the generating shifts directly
	for fi, want:=range frameShifts {
		got:=shifts[0][fi][0]
		if got[0]!=want[0] || got[1]!=want[1] {
			t.Errorf("frame %d: got shift %v, expect %v", fi, got, want)
		}
		if corrs[0][fi][0]<0.9 {
			t.Errorf("frame %d: got correlation %f, expect above 0.9", fi, corrs[0][fi][0])
		}
	}
}

func TestPlaneTranslationConcurrent(t *testing.T) {
	frameShifts:=[][2]int{{0,0},{2,-1},{-1,2},{1,1},{0,-2},{-2,0}}
	seq:=imgseq.NewSyntheticSequence([4]int{2,64,64,1}, frameShifts, 0.01, 11)
	s:=NewPlaneTranslation([]int{4,4}, 2)

	shifts, corrs, err:=s.EstimateWithCorrelations(seq, testContext())
	if err!=nil { t.Fatalf("unexpected error %s", err.Error()) }

	// whichever frame seeds first, shift differences between frames must match
	// the generating motion, and drift correction must reconcile the planes
	for fi:=range frameShifts {
		for p:=0; p<2; p++ {
			if corrs[0][fi][p]<0.9 {
				t.Errorf("frame %d plane %d: got correlation %f, expect above 0.9", fi, p, corrs[0][fi][p])
			}
			if shifts[0][fi][p][0]!=shifts[0][fi][0][0] || shifts[0][fi][p][1]!=shifts[0][fi][0][1] {
				t.Errorf("frame %d: plane %d shift %v differs from plane 0 shift %v after drift correction",
					fi, p, shifts[0][fi][p], shifts[0][fi][0])
			}
		}
		wantDy:=frameShifts[fi][0]-frameShifts[0][0]
		wantDx:=frameShifts[fi][1]-frameShifts[0][1]
		gotDy:=shifts[0][fi][0][0]-shifts[0][0][0][0]
		gotDx:=shifts[0][fi][0][1]-shifts[0][0][0][1]
		if gotDy!=wantDy || gotDx!=wantDx {
			t.Errorf("frame %d: got relative shift (%d,%d), expect (%d,%d)", fi, gotDy, gotDx, wantDy, wantDx)
		}
	}
}

func TestPlaneTranslationMethodErrors(t *testing.T) {
	seq:=imgseq.NewSyntheticSequence([4]int{1,16,16,1}, [][2]int{{0,0}}, 0, 3)

	s:=NewPlaneTranslation(nil, 1)
	s.Method=MethodECC
	if _, err:=s.Estimate(seq, testContext()); err!=ErrECCUnsupported {
		t.Errorf("got %v for ECC method, expect ErrECCUnsupported", err)
	}

	s=NewPlaneTranslation(nil, 1)
	s.Method="warp"
	_, err:=s.Estimate(seq, testContext())
	if err==nil {
		t.Fatalf("expect error for unknown method")
	}

	s=NewPlaneTranslation([]int{1,2,3}, 1)
	if _, err:=s.Estimate(seq, testContext()); err==nil {
		t.Errorf("expect error for three-component max displacement")
	}
}

func TestPlaneTranslationPropagatesFrameErrors(t *testing.T) {
	seq:=imgseq.NewSyntheticSequence([4]int{1,32,32,1}, [][2]int{{0,0},{1,1}}, 0, 13)
	ds:=&failingDataset{Sequence: seq, failCycle: 0, failFrame: 1}
	s:=NewPlaneTranslation(nil, 1)
	if _, err:=s.Estimate(ds, testContext()); err==nil {
		t.Errorf("expect dataset read error to abort the run")
	}
}

// a dataset that fails to deliver one specific frame
type failingDataset struct {
	*imgseq.Sequence
	failCycle, failFrame int
}

func (d *failingDataset) Frame(cycle, frame int) (*imgseq.Volume, error) {
	if cycle==d.failCycle && frame==d.failFrame {
		return nil, io.ErrUnexpectedEOF
	}
	return d.Sequence.Frame(cycle, frame)
}
