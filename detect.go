package uhdrbake

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var hdrgmNamespace = []byte("http://ns.adobe.com/hdr-gain-map/1.0/")

// xmpSniffLimit bounds how much of a secondary image XMP packet is read while looking for hdrgm.
const xmpSniffLimit = 64 * 1024

// IsUltraHDR reports whether r holds a JPEG followed by a gain map image.
// The primary image is skipped without buffering, then APP1 and APP2 segments of the
// second image are checked for an ISO 21496-1 block or hdrgm XMP. A stream that ends
// early is not UltraHDR.
func IsUltraHDR(r io.Reader) (bool, error) {
	sr := segmentReader{br: bufio.NewReader(r)}
	ok, err := sr.detectGainmap()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return false, nil
	}
	return ok, err
}

// carriesGainmapMetadata reports an ISO 21496-1 block or an XMP packet in the hdrgm namespace.
func (s *JPEGSegment) carriesGainmapMetadata() bool {
	switch s.Marker {
	case APP2:
		return s.HasPrefix(isoSig)
	case APP1:
		return s.HasPrefix(xmpSig) && bytes.Contains(s.Contents, hdrgmNamespace)
	}
	return false
}

// segmentReader walks JPEG markers of a stream.
type segmentReader struct {
	br *bufio.Reader
}

func (r *segmentReader) detectGainmap() (bool, error) {
	if err := r.seekSOI(); err != nil {
		return false, err
	}
	if err := r.skipImage(); err != nil {
		return false, err
	}
	if err := r.seekSOI(); err != nil {
		return false, err
	}
	for {
		m, err := r.marker()
		if err != nil {
			return false, err
		}
		switch {
		case m == SOS, m == EOI:
			return false, nil
		case m == SOI, m.standalone():
		case m == APP1, m == APP2:
			seg, err := r.segment(m, xmpSniffLimit)
			if err != nil {
				return false, err
			}
			if seg.carriesGainmapMetadata() {
				return true, nil
			}
		default:
			if err := r.skipSegment(); err != nil {
				return false, err
			}
		}
	}
}

// marker advances to the next marker, stray bytes and 0xFF fill are skipped.
func (r *segmentReader) marker() (Marker, error) {
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != markerStart {
			continue
		}
		for b == markerStart {
			if b, err = r.br.ReadByte(); err != nil {
				return 0, err
			}
		}
		return Marker(b), nil
	}
}

func (r *segmentReader) seekSOI() error {
	for {
		m, err := r.marker()
		if err != nil {
			return err
		}
		if m == SOI {
			return nil
		}
	}
}

// skipImage consumes marker segments up to SOS, then scan data up to EOI.
func (r *segmentReader) skipImage() error {
	for {
		m, err := r.marker()
		if err != nil {
			return err
		}
		switch {
		case m == EOI:
			return nil
		case m == SOI, m.standalone():
		case m == SOS:
			if err := r.skipSegment(); err != nil {
				return err
			}
			return r.skipScan()
		default:
			if err := r.skipSegment(); err != nil {
				return err
			}
		}
	}
}

// skipScan discards entropy-coded data and any later scans up to EOI.
// Stuffed zero bytes read as marker 0x00.
func (r *segmentReader) skipScan() error {
	for {
		m, err := r.marker()
		if err != nil {
			return err
		}
		if m == EOI {
			return nil
		}
	}
}

func (r *segmentReader) contentLen() (int, error) {
	var field [2]byte
	if _, err := io.ReadFull(r.br, field[:]); err != nil {
		return 0, err
	}
	n := int(binary.BigEndian.Uint16(field[:]))
	if n < 2 {
		return 0, malformedf("invalid segment length %d", n)
	}
	return n - 2, nil
}

func (r *segmentReader) skipSegment() error {
	n, err := r.contentLen()
	if err != nil {
		return err
	}
	_, err = r.br.Discard(n)
	return err
}

// segment reads the current segment keeping at most limit bytes of its contents.
func (r *segmentReader) segment(m Marker, limit int) (JPEGSegment, error) {
	n, err := r.contentLen()
	if err != nil {
		return JPEGSegment{}, err
	}
	contents := make([]byte, min(n, limit))
	if _, err := io.ReadFull(r.br, contents); err != nil {
		return JPEGSegment{}, err
	}
	if _, err := r.br.Discard(n - len(contents)); err != nil {
		return JPEGSegment{}, err
	}
	return NewSegment(m, contents), nil
}
