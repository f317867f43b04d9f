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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/scopealign/internal/align"
	"github.com/mlnoga/scopealign/internal/imgseq"
)


func Serve(addr, chroot string, setuid int) {
	MakeSandbox(chroot, setuid)
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping",  getPing)
			v1.POST("/align", postAlign)
		}
	}
	r.Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postAlignArgs struct {
	FilePatterns    []string `json:"filePatterns"`
	PlanesPerFrame  int      `json:"planesPerFrame"`
	MaxDisplacement []int    `json:"maxDisplacement"`
	Method          string   `json:"method"`
	NProcesses      int      `json:"nProcesses"`
	MinShape        int      `json:"minShape"`
	Volume          bool     `json:"volume"`
}

type alignResult struct {
	Shifts       align.Displacements `json:"shifts"`
	Correlations [][][]float32       `json:"correlations"`
}

// Runs an alignment job on TIFF files matching the given patterns, streaming
// the progress log as plain text and appending the estimated shifts as JSON
func postAlign(c *gin.Context) {
	logWriter := c.Writer
	var args postAlignArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	fileNames, err:=globPatterns(args.FilePatterns)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error globbing filenames: %s\n", err.Error())
		return
	}
	planes:=args.PlanesPerFrame
	if planes<1 { planes=1 }
	seq, err:=imgseq.LoadTIFFSequence(fileNames, planes)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error loading frames: %s\n", err.Error())
		return
	}

	ctx:=align.NewContext(logWriter)
	var shifts align.Displacements
	var corrs [][][]float32
	if args.Volume {
		s:=align.NewVolumeTranslation(args.MaxDisplacement)
		s.Method, s.MinShape=args.Method, args.MinShape
		shifts, corrs, err=s.EstimateWithCorrelations(seq, ctx)
	} else {
		s:=align.NewPlaneTranslation(args.MaxDisplacement, args.NProcesses)
		s.Method, s.MinShape=args.Method, args.MinShape
		shifts, corrs, err=s.EstimateWithCorrelations(seq, ctx)
	}
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		logWriter.(http.Flusher).Flush()
		return
	}

	if err:=printArgs(logWriter, "Result:\n", "\n", alignResult{shifts, corrs}); err!=nil {
		fmt.Fprintf(logWriter, "Error printing result: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
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
	sort.Strings(names)
	return names, nil
}
