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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mlnoga/scopealign/internal/align"
	"github.com/mlnoga/scopealign/internal/imgseq"
	"github.com/mlnoga/scopealign/internal/rest"
	"github.com/mlnoga/scopealign/internal/viz"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out  = flag.String("out", "shifts.json", "save estimated shifts as JSON to `file`")
var log  = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var plot = flag.String("plot", "", "save motion path plot as PNG to `file`")
var mean = flag.String("mean", "", "save aligned mean image preview as PNG to `file`")
var aligned = flag.String("aligned", "", "save motion-corrected frames as PNG with given filename pattern, e.g. `aligned%04d.png`")

var planes    = flag.Int64("planes", 1, "number of consecutive input files forming one multi-plane frame")
var maxShift  = flag.Int64("maxShift", -1, "maximum allowed row/col displacement in pixels, -1=unconstrained")
var maxShiftP = flag.Int64("maxShiftP", 0, "maximum allowed plane-axis displacement for volume alignment")
var method    = flag.String("method", "correlation", "alignment method, one of correlation, ECC")
var nproc     = flag.Int64("nproc", 0, "number of concurrent alignment workers, 0=half the hardware threads")
var minShape  = flag.Int64("minShape", int64(align.DefaultMinShape), "minimum extent below which pyramid downsampling stops")
var volume    = flag.Int64("volume", 0, "1=rigid whole-volume translation, 0=independent per-plane translation")

var job = flag.String("job", "", "load job settings from YAML `file`, overriding flags")

var addr   = flag.String("addr", ":8080", "listen address for the alignment server")
var chroot = flag.String("chroot", "", "restrict the alignment server to this directory (requires root)")
var setuid = flag.Int("setuid", -1, "drop alignment server privileges to this user id, -1=keep")

// Job settings loadable from a YAML file; absent settings leave the
// corresponding flag untouched. MaxShift is a pointer so an explicit zero,
// which pins the displacement search, remains expressible
type jobFile struct {
	Out      string   `yaml:"out"`
	Plot     string   `yaml:"plot"`
	Mean     string   `yaml:"mean"`
	Aligned  string   `yaml:"aligned"`
	Planes   int64    `yaml:"planes"`
	MaxShift *int64   `yaml:"maxShift"`
	Method   string   `yaml:"method"`
	NProc    int64    `yaml:"nproc"`
	MinShape int64    `yaml:"minShape"`
	Volume   bool     `yaml:"volume"`
	Files    []string `yaml:"files"`
}

// Applies job file settings over the current flag values and returns the
// job's input files
func applyJob(j *jobFile) []string {
	if j.Out!=""       { *out=j.Out }
	if j.Plot!=""      { *plot=j.Plot }
	if j.Mean!=""      { *mean=j.Mean }
	if j.Aligned!=""   { *aligned=j.Aligned }
	if j.Planes>0      { *planes=j.Planes }
	if j.MaxShift!=nil { *maxShift=*j.MaxShift }
	if j.Method!=""    { *method=j.Method }
	if j.NProc>0       { *nproc=j.NProc }
	if j.MinShape>0    { *minShape=j.MinShape }
	if j.Volume        { *volume=1 }
	return j.Files
}

func main() {
	logWriter:=io.Writer(os.Stdout)
	start:=time.Now()
	flag.Usage=func(){
		fmt.Fprintf(logWriter, `Scopealign Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (align|serve|selftest|legal|version) (img0.tif ... imgn.tif)

Commands:
  align    Estimate motion of the input frames and write shifts
  serve    Run alignment as a REST server
  selftest Align a synthetic sequence with known motion and verify the result
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args:=flag.Args()
	fileArgs:=[]string{}
	if len(args)>1 { fileArgs=args[1:] }

	// job file settings override flags
	if *job!="" {
		j, err:=loadJob(*job)
		if err!=nil {
			fmt.Fprintf(logWriter, "Error loading job file: %s\n", err.Error())
			os.Exit(-1)
		}
		fileArgs=append(fileArgs, applyJob(j)...)
	}

	// log to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" {
			*log=strings.TrimSuffix(*out, filepath.Ext(*out))+".log"
		} else {
			*log=""
		}
	}
	if *log!="" {
		f, err:=os.Create(*log)
		if err!=nil {
			fmt.Fprintf(logWriter, "Unable to open logfile '%s'\n", *log)
			os.Exit(-1)
		}
		defer f.Close()
		logWriter=io.MultiWriter(os.Stdout, f)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(logWriter, "Could not create CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(logWriter, "Could not start CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer pprof.StopCPUProfile()
	}

	if len(args)<1 {
		flag.Usage()
		return
	}

	var err error
	switch args[0] {
	case "align":
		err=cmdAlign(fileArgs, logWriter)

	case "serve":
		rest.Serve(*addr, *chroot, *setuid)

	case "selftest":
		err=cmdSelftest(logWriter)

	case "legal":
		fmt.Fprintf(logWriter, "%s\n", legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(logWriter, "Could not create memory profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
			fmt.Fprintf(logWriter, "Could not write allocation profile: %s\n", err.Error())
			os.Exit(-1)
		}
	}

	if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
}

// Estimates motion for the given input files and writes shifts, plus the
// optional plot and mean preview outputs
func cmdAlign(patterns []string, logWriter io.Writer) error {
	fileNames, err:=globPatterns(patterns)
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "Loading %d files as frames of %d planes\n", len(fileNames), *planes)
	seq, err:=imgseq.LoadTIFFSequence(fileNames, int(*planes))
	if err!=nil { return err }

	shifts, corrs, err:=runStrategy(seq, logWriter)
	if err!=nil { return err }

	if *out!="" {
		m, err:=json.MarshalIndent(struct{
			Shifts       align.Displacements `json:"shifts"`
			Correlations [][][]float32       `json:"correlations"`
		}{shifts, corrs}, "", "  ")
		if err!=nil { return err }
		if err:=os.WriteFile(*out, m, 0644); err!=nil { return err }
		fmt.Fprintf(logWriter, "Saved shifts to %s\n", *out)
	}
	if *plot!="" {
		if err:=viz.WriteShiftPlot(*plot, shifts); err!=nil { return err }
		fmt.Fprintf(logWriter, "Saved motion plot to %s\n", *plot)
	}
	if *mean!="" {
		meanVol, err:=align.ExportAligned(seq, shifts)
		if err!=nil { return err }
		if err:=viz.WriteMeanPreview(*mean, meanVol, 0); err!=nil { return err }
		fmt.Fprintf(logWriter, "Saved mean preview to %s\n", *mean)
	}
	if *aligned!="" {
		idx:=0
		for cycle:=0; cycle<seq.Cycles(); cycle++ {
			for fi:=0; fi<seq.Frames(cycle); fi++ {
				frame, err:=seq.Frame(cycle, fi)
				if err!=nil { return err }
				corrected, err:=align.ShiftFrame(frame, shifts[cycle][fi])
				if err!=nil { return err }
				if err:=viz.WriteMeanPreview(fmt.Sprintf(*aligned, idx), corrected, 0); err!=nil { return err }
				idx++
			}
		}
		fmt.Fprintf(logWriter, "Saved %d motion-corrected frames\n", idx)
	}
	return nil
}

func runStrategy(seq imgseq.Dataset, logWriter io.Writer) (align.Displacements, [][][]float32, error) {
	ctx:=align.NewContext(logWriter)
	if *volume!=0 {
		var maxDisp []int
		if *maxShift>=0 { maxDisp=[]int{int(*maxShiftP), int(*maxShift), int(*maxShift)} }
		s:=align.NewVolumeTranslation(maxDisp)
		s.Method, s.MinShape=*method, int(*minShape)
		return s.EstimateWithCorrelations(seq, ctx)
	}
	var maxDisp []int
	if *maxShift>=0 { maxDisp=[]int{int(*maxShift), int(*maxShift)} }
	s:=align.NewPlaneTranslation(maxDisp, int(*nproc))
	s.Method, s.MinShape=*method, int(*minShape)
	return s.EstimateWithCorrelations(seq, ctx)
}

// Aligns a synthetic sequence with known motion and verifies the estimates
func cmdSelftest(logWriter io.Writer) error {
	frameShifts:=[][2]int{{0,0},{2,-1},{-1,2},{1,1},{0,-2}}
	seq:=imgseq.NewSyntheticSequence([4]int{2,64,64,1}, frameShifts, 0.01, 31)

	s:=align.NewPlaneTranslation([]int{4,4}, int(*nproc))
	shifts, corrs, err:=s.EstimateWithCorrelations(seq, align.NewContext(logWriter))
	if err!=nil { return err }

	failures:=0
	for fi, want:=range frameShifts {
		for p:=0; p<2; p++ {
			got:=shifts[0][fi][p]
			rel:=[2]int{got[0]-shifts[0][0][p][0], got[1]-shifts[0][0][p][1]}
			if rel[0]!=want[0] || rel[1]!=want[1] {
				fmt.Fprintf(logWriter, "FAIL frame %d plane %d: got relative shift %v, expect %v\n", fi, p, rel, want)
				failures++
			}
			if corrs[0][fi][p]<0.9 {
				fmt.Fprintf(logWriter, "FAIL frame %d plane %d: correlation %.4f below 0.9\n", fi, p, corrs[0][fi][p])
				failures++
			}
		}
	}
	if failures>0 {
		return fmt.Errorf("selftest failed %d checks", failures)
	}
	fmt.Fprintf(logWriter, "Selftest passed\n")
	return nil
}

func loadJob(fileName string) (*jobFile, error) {
	data, err:=os.ReadFile(fileName)
	if err!=nil { return nil, err }
	var j jobFile
	if err:=yaml.Unmarshal(data, &j); err!=nil {
		return nil, fmt.Errorf("%s: %s", fileName, err.Error())
	}
	return &j, nil
}

// Expands file patterns into a sorted list of file names, which determines
// temporal frame order
func globPatterns(patterns []string) ([]string, error) {
	var names []string
	for _,p:=range patterns {
		matches, err:=filepath.Glob(p)
		if err!=nil { return nil, err }
		if len(matches)==0 { return nil, fmt.Errorf("pattern %s matches no files", p) }
		names=append(names, matches...)
	}
	if len(names)==0 { return nil, fmt.Errorf("no input files given") }
	sort.Strings(names)
	return names, nil
}
