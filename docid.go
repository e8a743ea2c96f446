package uhdrbake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadOriginalDocumentID scans the first XMPScanLimitBytes of a file for the XMP
// OriginalDocumentID value without parsing the container.
func ReadOriginalDocumentID(path string) (string, bool, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", false, fmt.Errorf("open %s for OriginalDocumentID scan: %w", path, err)
	}
	defer f.Close()

	id, ok, err := scanOriginalDocumentID(f)
	if err != nil {
		return "", false, fmt.Errorf("scan %s for OriginalDocumentID: %w", path, err)
	}
	return id, ok, nil
}

func scanOriginalDocumentID(r io.ReaderAt) (string, bool, error) {
	marker := []byte(originalDocIDMarker)
	buf := make([]byte, XMPChunkSize+len(marker))
	for off := 0; off < XMPScanLimitBytes; off += XMPChunkSize {
		n, err := readAtMost(r, buf[:min(len(buf), XMPScanLimitBytes-off)], int64(off))
		if err != nil {
			return "", false, err
		}
		if n == 0 {
			break
		}
		pos := bytes.Index(buf[:n], marker)
		if pos < 0 {
			continue
		}
		tail := make([]byte, XMPExtraTailChunk*XMPExtraTailReads)
		m, err := readAtMost(r, tail, int64(off+pos+len(marker)))
		if err != nil {
			return "", false, err
		}
		id, ok := parseOriginalDocumentID(tail[:m])
		return id, ok, nil
	}
	return "", false, nil
}

// readAtMost reads into buf, short reads at EOF are not an error.
func readAtMost(r io.ReaderAt, buf []byte, off int64) (int, error) {
	n, err := r.ReadAt(buf, off)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// ExtractOriginalDocumentID finds the OriginalDocumentID value in an in-memory window.
func ExtractOriginalDocumentID(window []byte) (string, bool) {
	if len(window) > XMPScanLimitBytes {
		window = window[:XMPScanLimitBytes]
	}
	pos := bytes.Index(window, []byte(originalDocIDMarker))
	if pos < 0 {
		return "", false
	}
	after := window[pos+len(originalDocIDMarker):]
	if limit := XMPExtraTailChunk * XMPExtraTailReads; len(after) > limit {
		after = after[:limit]
	}
	return parseOriginalDocumentID(after)
}

// parseOriginalDocumentID reads the value following the marker, in element form
// (>value</...) first and attribute form (="value") second.
func parseOriginalDocumentID(after []byte) (string, bool) {
	rest := bytes.TrimLeft(after, " \t\r\n")
	if len(rest) > 0 && rest[0] == '>' {
		if end := bytes.IndexByte(rest[1:], '<'); end >= 0 {
			if v := bytes.TrimSpace(rest[1 : 1+end]); len(v) > 0 {
				return string(v), true
			}
		}
	}

	eq := bytes.IndexByte(after, '=')
	if eq < 0 {
		return "", false
	}
	q1 := bytes.IndexByte(after[eq+1:], '"')
	if q1 < 0 {
		return "", false
	}
	val := after[eq+1+q1+1:]
	q2 := bytes.IndexByte(val, '"')
	if q2 < 0 {
		return "", false
	}
	if v := bytes.TrimSpace(val[:q2]); len(v) > 0 {
		return string(v), true
	}
	return "", false
}
