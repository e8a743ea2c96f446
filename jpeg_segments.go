package uhdrbake

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Marker is the second byte of a JPEG marker.
type Marker byte

// JPEG markers. SOFn = SOF0+n excluding DHT, JPG and DAC; RSTn = RST0+n; APPn = APP0+n.
const (
	TEM  Marker = 0x01
	SOF0 Marker = 0xC0
	DHT  Marker = 0xC4
	JPG  Marker = 0xC8
	DAC  Marker = 0xCC
	RST0 Marker = 0xD0
	SOI  Marker = 0xD8
	EOI  Marker = 0xD9
	SOS  Marker = 0xDA
	DQT  Marker = 0xDB
	DNL  Marker = 0xDC
	DRI  Marker = 0xDD
	APP0 Marker = 0xE0
	APP1 Marker = 0xE1
	APP2 Marker = 0xE2
	COM  Marker = 0xFE
)

const (
	markerStart        = 0xFF
	maxSegmentContents = 0xFFFF - 2
)

var errSegmentTooLong = errors.New("jpeg segment too long")

// String returns the conventional marker name.
func (m Marker) String() string {
	switch {
	case m == TEM:
		return "TEM"
	case m == DHT:
		return "DHT"
	case m == JPG:
		return "JPG"
	case m == DAC:
		return "DAC"
	case m >= SOF0 && m <= SOF0+0xF:
		return fmt.Sprintf("SOF%d", m-SOF0)
	case m >= RST0 && m <= RST0+7:
		return fmt.Sprintf("RST%d", m-RST0)
	case m == SOI:
		return "SOI"
	case m == EOI:
		return "EOI"
	case m == SOS:
		return "SOS"
	case m == DQT:
		return "DQT"
	case m == DNL:
		return "DNL"
	case m == DRI:
		return "DRI"
	case m >= APP0 && m <= APP0+0xF:
		return fmt.Sprintf("APP%d", m-APP0)
	case m == COM:
		return "COM"
	default:
		return fmt.Sprintf("0x%02X", byte(m))
	}
}

// standalone markers carry no length field.
func (m Marker) standalone() bool {
	return m == TEM || (m >= RST0 && m <= RST0+7) || m == EOI
}

// JPEGSegment is a marker with its content bytes (without the length field).
// Contents are never modified in place.
type JPEGSegment struct {
	Marker   Marker
	Contents []byte
	// fill counts 0xFF fill bytes found before the marker.
	fill int
}

// NewSegment creates a segment from a marker and its contents.
func NewSegment(marker Marker, contents []byte) JPEGSegment {
	return JPEGSegment{Marker: marker, Contents: contents}
}

func (s *JPEGSegment) encodedLen() int {
	n := s.fill + 2
	if !s.Marker.standalone() {
		n += 2 + len(s.Contents)
	}
	return n
}

// HasPrefix reports whether the segment contents start with prefix.
func (s *JPEGSegment) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(s.Contents, prefix)
}

// JPEGDocument is an ordered sequence of segments from after SOI up to and including SOS,
// followed by the opaque remainder of the stream.
type JPEGDocument struct {
	segments []JPEGSegment
	// tail holds everything after the SOS header: entropy-coded data, later markers,
	// EOI and any trailing bytes.
	tail []byte
}

// ParseJPEG splits data into segments. The document aliases data.
func ParseJPEG(data []byte) (*JPEGDocument, error) {
	if len(data) < 2 || data[0] != markerStart || Marker(data[1]) != SOI {
		return nil, malformedf("jpeg missing SOI")
	}
	doc := &JPEGDocument{}
	pos := 2
	for {
		if pos >= len(data) {
			return nil, malformedf("jpeg truncated before SOS")
		}
		if data[pos] != markerStart {
			return nil, malformedf("jpeg marker expected at offset %d", pos)
		}
		p := pos + 1
		fill := 0
		for p < len(data) && data[p] == markerStart {
			p++
			fill++
		}
		if p >= len(data) {
			return nil, malformedf("jpeg truncated marker at offset %d", pos)
		}
		m := Marker(data[p])
		p++
		switch m {
		case 0x00:
			return nil, malformedf("jpeg invalid marker 0 at offset %d", pos)
		case SOI:
			return nil, malformedf("jpeg unexpected SOI at offset %d", pos)
		}
		seg := JPEGSegment{Marker: m, fill: fill}
		if m.standalone() {
			doc.segments = append(doc.segments, seg)
			pos = p
			if m == EOI {
				doc.tail = data[pos:]
				return doc, nil
			}
			continue
		}
		if p+2 > len(data) {
			return nil, malformedf("jpeg truncated %s length at offset %d", m, p)
		}
		segLen := int(binary.BigEndian.Uint16(data[p:]))
		if segLen < 2 {
			return nil, malformedf("jpeg invalid %s length %d", m, segLen)
		}
		contents, ok := span(data, p+2, segLen-2)
		if !ok {
			return nil, malformedf("jpeg %s segment exceeds input (offset %d, length %d)", m, p, segLen)
		}
		seg.Contents = contents
		doc.segments = append(doc.segments, seg)
		pos = p + segLen
		if m == SOS {
			doc.tail = data[pos:]
			return doc, nil
		}
	}
}

// Segments returns the segment sequence. The slice must not be modified.
func (d *JPEGDocument) Segments() []JPEGSegment {
	return d.segments
}

// Segment returns segment i.
func (d *JPEGDocument) Segment(i int) JPEGSegment {
	return d.segments[i]
}

// Tail returns the bytes following the SOS header.
func (d *JPEGDocument) Tail() []byte {
	return d.tail
}

// TruncateTail keeps only the first n tail bytes.
func (d *JPEGDocument) TruncateTail(n int) {
	if n >= 0 && n < len(d.tail) {
		d.tail = d.tail[:n]
	}
}

// Find returns indexes of segments with the marker whose contents start with prefix.
func (d *JPEGDocument) Find(marker Marker, prefix []byte) []int {
	var idx []int
	for i := range d.segments {
		if d.segments[i].Marker == marker && d.segments[i].HasPrefix(prefix) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Remove deletes all segments matching marker and prefix. It returns a copy of the first
// match's contents after the prefix.
func (d *JPEGDocument) Remove(marker Marker, prefix []byte) ([]byte, bool) {
	var (
		first []byte
		found bool
	)
	kept := d.segments[:0:0]
	for _, s := range d.segments {
		if s.Marker == marker && s.HasPrefix(prefix) {
			if !found {
				first = append([]byte(nil), s.Contents[len(prefix):]...)
				found = true
			}
			continue
		}
		kept = append(kept, s)
	}
	d.segments = kept
	return first, found
}

// Insert places seg before the first segment that is neither APP0 nor APP1, so metadata
// clusters right after JFIF/EXIF headers. It returns the index of the inserted segment.
func (d *JPEGDocument) Insert(seg JPEGSegment) int {
	at := len(d.segments)
	for i, s := range d.segments {
		if s.Marker != APP0 && s.Marker != APP1 {
			at = i
			break
		}
	}
	d.insertAt(at, seg)
	return at
}

func (d *JPEGDocument) insertAt(at int, seg JPEGSegment) {
	d.segments = append(d.segments, JPEGSegment{})
	copy(d.segments[at+1:], d.segments[at:])
	d.segments[at] = seg
}

// removeFunc drops segments for which drop returns true.
func (d *JPEGDocument) removeFunc(drop func(s *JPEGSegment) bool) {
	kept := d.segments[:0:0]
	for i := range d.segments {
		if !drop(&d.segments[i]) {
			kept = append(kept, d.segments[i])
		}
	}
	d.segments = kept
}

// Replace swaps the contents of segment i, keeping its marker and position.
func (d *JPEGDocument) Replace(i int, contents []byte) error {
	if i < 0 || i >= len(d.segments) {
		return fmt.Errorf("segment index %d out of range", i)
	}
	if d.segments[i].Marker.standalone() {
		return fmt.Errorf("segment %s has no contents", d.segments[i].Marker)
	}
	d.segments[i].Contents = contents
	return nil
}

// Clone returns a document with its own segment sequence. Contents and tail are shared.
func (d *JPEGDocument) Clone() *JPEGDocument {
	return &JPEGDocument{
		segments: append([]JPEGSegment(nil), d.segments...),
		tail:     d.tail,
	}
}

// EncodedLen is the length of Encode output.
func (d *JPEGDocument) EncodedLen() int {
	n := 2
	for i := range d.segments {
		n += d.segments[i].encodedLen()
	}
	return n + len(d.tail)
}

// ContentsOffset returns the absolute offset of segment i contents in the encoded stream.
func (d *JPEGDocument) ContentsOffset(i int) int {
	off := 2
	for j := 0; j < i; j++ {
		off += d.segments[j].encodedLen()
	}
	off += d.segments[i].fill + 2
	if !d.segments[i].Marker.standalone() {
		off += 2
	}
	return off
}

// Encode serializes the document. An unmodified document encodes to its input bytes.
func (d *JPEGDocument) Encode() ([]byte, error) {
	out := make([]byte, 0, d.EncodedLen())
	out = append(out, markerStart, byte(SOI))
	for i := range d.segments {
		s := &d.segments[i]
		for f := 0; f < s.fill; f++ {
			out = append(out, markerStart)
		}
		out = append(out, markerStart, byte(s.Marker))
		if s.Marker.standalone() {
			continue
		}
		if len(s.Contents) > maxSegmentContents {
			return nil, fmt.Errorf("%w: %s contents %d bytes, max %d",
				errSegmentTooLong, s.Marker, len(s.Contents), maxSegmentContents)
		}
		out = binary.BigEndian.AppendUint16(out, uint16(len(s.Contents)+2))
		out = append(out, s.Contents...)
	}
	return append(out, d.tail...), nil
}
