package rasterizer

import (
	"bytes"
)

// stripXMLDecl drops a leading <?xml ...?> declaration, which is invalid inside HTML.
func stripXMLDecl(doc []byte) []byte {
	trimmed := bytes.TrimLeft(doc, " \t\r\n\ufeff")
	if !bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return doc
	}
	end := bytes.Index(trimmed, []byte("?>"))
	if end < 0 {
		return doc
	}
	return trimmed[end+2:]
}
