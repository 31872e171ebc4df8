package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/coreman2200/funtimes-voxelcube/internal/ingest"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

// encodeFrame returns the start byte followed by g in wire order.
func encodeFrame(g *voxel.Grid) []byte {
	return append([]byte{ingest.Start}, g.Bytes()...)
}

// readHexFrames parses frames of 64 hex bytes each. Whitespace, "0x"
// prefixes and '#' comments are ignored; a frame may span lines.
func readHexFrames(r io.Reader) ([]voxel.Grid, error) {
	var digits strings.Builder
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		for _, f := range strings.Fields(line) {
			f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
			digits.WriteString(strings.TrimSuffix(f, ","))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(digits.String())
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	if len(raw) == 0 || len(raw)%voxel.Rows != 0 {
		return nil, fmt.Errorf("hex: %d bytes is not a whole number of %d-byte frames", len(raw), voxel.Rows)
	}
	frames := make([]voxel.Grid, len(raw)/voxel.Rows)
	for i := range frames {
		if err := frames[i].Load(raw[i*voxel.Rows : (i+1)*voxel.Rows]); err != nil {
			return nil, err
		}
	}
	return frames, nil
}
