package render

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// volatileChunks carry timestamps or renderer banners that differ between runs.
var volatileChunks = map[string]bool{
	"tIME": true,
	"tEXt": true,
	"zTXt": true,
	"iTXt": true,
}

// StripMetadata removes text and time chunks so identical renders are byte identical.
func StripMetadata(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("not a png")
	}

	out := bytes.NewBuffer(make([]byte, 0, len(data)))
	out.Write(pngSignature)

	rest := data[len(pngSignature):]
	for len(rest) > 0 {
		if len(rest) < 12 {
			return nil, fmt.Errorf("truncated png chunk")
		}
		length := binary.BigEndian.Uint32(rest[:4])
		size := 12 + int(length)
		if length > uint32(len(rest)) || size > len(rest) {
			return nil, fmt.Errorf("png chunk length %d exceeds data", length)
		}
		kind := string(rest[4:8])
		if !volatileChunks[kind] {
			out.Write(rest[:size])
		}
		rest = rest[size:]
		if kind == "IEND" {
			break
		}
	}
	return out.Bytes(), nil
}
