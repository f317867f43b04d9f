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
	"runtime"

	"github.com/pbnjay/memory"
)

// An execution context for alignment runs
type Context struct {
	Log        io.Writer
	MemoryMB   int  // memory.TotalMemory()/1024/1024
	MaxThreads int
}

func NewContext(log io.Writer) *Context {
	memoryMB:=int(memory.TotalMemory()/1024/1024)
	return &Context{
		Log:        log,
		MemoryMB:   memoryMB,
		MaxThreads: runtime.GOMAXPROCS(0),
	}
}

// Resolves the worker pool size for a run: an explicit positive setting wins,
// otherwise half the available hardware threads, but no fewer than one
func (c *Context) numWorkers(nProcesses int) int {
	if nProcesses>0 { return nProcesses }
	n:=c.MaxThreads/2
	if n<1 { n=1 }
	return n
}
