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
	"os"
	"path/filepath"
	"testing"
)

func TestJobFileZeroMaxShift(t *testing.T) {
	name:=filepath.Join(t.TempDir(), "job.yaml")
	data:=[]byte("maxShift: 0\nplanes: 2\nfiles:\n  - a.tif\n  - b.tif\n")
	if err:=os.WriteFile(name, data, 0644); err!=nil {
		t.Fatalf("write job file: %s", err.Error())
	}
	oldMaxShift, oldPlanes:=*maxShift, *planes
	defer func(){ *maxShift, *planes=oldMaxShift, oldPlanes }()

	j, err:=loadJob(name)
	if err!=nil { t.Fatalf("unexpected error %s", err.Error()) }
	files:=applyJob(j)

	// an explicit zero must reach the flag; it pins the displacement search
	if *maxShift!=0 {
		t.Errorf("got maxShift %d, expect 0 from job file", *maxShift)
	}
	if *planes!=2 {
		t.Errorf("got planes %d, expect 2 from job file", *planes)
	}
	if len(files)!=2 || files[0]!="a.tif" || files[1]!="b.tif" {
		t.Errorf("got files %v, expect [a.tif b.tif]", files)
	}
}

func TestJobFileLeavesAbsentSettings(t *testing.T) {
	oldMaxShift, oldMethod:=*maxShift, *method
	defer func(){ *maxShift, *method=oldMaxShift, oldMethod }()
	*maxShift=7

	applyJob(&jobFile{})
	if *maxShift!=7 {
		t.Errorf("absent maxShift overwrote flag: got %d, expect 7", *maxShift)
	}
	if *method!=oldMethod {
		t.Errorf("absent method overwrote flag: got %s", *method)
	}
}
