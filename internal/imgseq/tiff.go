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
	"bufio"
	"fmt"
	"image"
	"os"

	"golang.org/x/image/tiff"
)

// Loads a single-cycle dataset from a list of TIFF files, planesPerFrame
// consecutive files forming one frame. Pixels are converted to grayscale
// float32 in [0,1]; all files must share the same dimensions
func LoadTIFFSequence(fileNames []string, planesPerFrame int) (*Sequence, error) {
	if planesPerFrame<1 { planesPerFrame=1 }
	if len(fileNames)==0 { return nil, fmt.Errorf("no TIFF files to load") }
	if len(fileNames)%planesPerFrame!=0 {
		return nil, fmt.Errorf("%d TIFF files do not divide into frames of %d planes", len(fileNames), planesPerFrame)
	}

	var frames []*Volume
	var frame *Volume
	var rows, cols int
	for i, fileName:=range fileNames {
		img, err:=loadTIFF(fileName)
		if err!=nil { return nil, err }
		b:=img.Bounds()
		if frame==nil && i%planesPerFrame==0 {
			if rows==0 { rows, cols=b.Dy(), b.Dx() }
			frame=NewVolume([4]int{planesPerFrame, rows, cols, 1})
		}
		if b.Dy()!=rows || b.Dx()!=cols {
			return nil, fmt.Errorf("%s: dimensions %dx%d differ from first file %dx%d", fileName, b.Dx(), b.Dy(), cols, rows)
		}
		p:=i%planesPerFrame
		for y:=0; y<rows; y++ {
			for x:=0; x<cols; x++ {
				r, _, _, _:=img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				frame.Set(p, y, x, 0, float32(r)/65535.0)
			}
		}
		if p==planesPerFrame-1 {
			frames=append(frames, frame)
			frame=nil
		}
	}
	return NewSequence([][]*Volume{frames})
}

func loadTIFF(fileName string) (image.Image, error) {
	file, err:=os.Open(fileName)
	if err!=nil { return nil, err }
	defer file.Close()

	img, err:=tiff.Decode(bufio.NewReader(file))
	if err!=nil { return nil, fmt.Errorf("%s: %s", fileName, err.Error()) }
	return img, nil
}
