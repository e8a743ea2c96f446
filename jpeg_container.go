package uhdrbake

import (
	"encoding/binary"
	"errors"
	"sort"
)

const (
	xmpNamespace = "http://ns.adobe.com/xap/1.0/"
	isoNamespace = "urn:iso:std:iso:ts:21496:-1"
)

var (
	exifSig   = []byte{'E', 'x', 'i', 'f', 0, 0}
	iccSig    = []byte{'I', 'C', 'C', '_', 'P', 'R', 'O', 'F', 'I', 'L', 'E', 0}
	xmpSig    = append([]byte(xmpNamespace), 0)
	isoSig    = append([]byte(isoNamespace), 0)
	errNoJPEG = errors.New("no JPEG images found")
)

// imageRange is a [start, end) byte range of an embedded JPEG.
type imageRange [2]int

// scanJPEGs locates the primary and secondary images, using MPF when the primary carries one
// and falling back to a linear SOI/EOI walk.
func scanJPEGs(data []byte) ([]imageRange, error) {
	if ranges, ok := scanJPEGsByMPF(data); ok {
		return ranges, nil
	}
	var ranges []imageRange
	i := 0
	for i+1 < len(data) {
		if data[i] == markerStart && Marker(data[i+1]) == SOI {
			end, err := findJPEGEnd(data, i)
			if err != nil {
				if len(ranges) > 0 {
					break
				}
				return nil, err
			}
			ranges = append(ranges, imageRange{i, end})
			i = end
			continue
		}
		i++
	}
	if len(ranges) == 0 {
		return nil, errNoJPEG
	}
	return ranges, nil
}

func scanJPEGsByMPF(data []byte) ([]imageRange, bool) {
	ranges, found, err := mpfImageRanges(data)
	return ranges, found && err == nil
}

// mpfImageRanges resolves the primary and secondary images through the first MPF segment
// of data. found is false when data does not parse or carries no MPF segment, err is set
// when the segment is present but unusable.
func mpfImageRanges(data []byte) (ranges []imageRange, found bool, err error) {
	doc, err := ParseJPEG(data)
	if err != nil {
		return nil, false, nil
	}
	idx := doc.Find(APP2, mpfSig)
	if len(idx) == 0 {
		return nil, false, nil
	}
	first := doc.Segment(idx[0])
	info, err := ParseMPF(first.Contents)
	if err != nil {
		return nil, true, err
	}
	tiffBase := doc.ContentsOffset(idx[0]) + len(mpfSig)

	primaryEnd := int(info.PrimarySize())
	secondaryStart, ok := checkedAdd(tiffBase, int(info.SecondaryOffset()))
	if !ok {
		return nil, true, malformedf("mpf secondary offset overflows")
	}
	secondaryEnd, ok := checkedAdd(secondaryStart, int(info.SecondarySize()))
	switch {
	case !ok:
		return nil, true, malformedf("mpf secondary size overflows")
	case primaryEnd <= 0 || primaryEnd > len(data):
		return nil, true, malformedf("mpf primary size %d out of range (%d bytes)", primaryEnd, len(data))
	case secondaryEnd > len(data) || secondaryEnd < secondaryStart+2:
		return nil, true, malformedf("mpf secondary image [%d, %d) out of range (%d bytes)", secondaryStart, secondaryEnd, len(data))
	case data[secondaryStart] != markerStart || Marker(data[secondaryStart+1]) != SOI:
		return nil, true, malformedf("mpf secondary offset %d is not an SOI", secondaryStart)
	}
	return []imageRange{{0, primaryEnd}, {secondaryStart, secondaryEnd}}, true, nil
}

// mpfLocation ties a parsed MPF segment to its position in the document.
type mpfLocation struct {
	index int
	info  *MPFInfo
	// tiffBase is the absolute offset of the MPF TIFF header, the origin of entry offsets.
	tiffBase int
}

// locateMPF finds the first well-formed MPF APP2 segment.
func locateMPF(doc *JPEGDocument) (mpfLocation, bool) {
	for _, i := range doc.Find(APP2, mpfSig) {
		info, err := ParseMPF(doc.Segment(i).Contents)
		if err != nil {
			continue
		}
		return mpfLocation{index: i, info: info, tiffBase: doc.ContentsOffset(i) + len(mpfSig)}, true
	}
	return mpfLocation{}, false
}

// findJPEGEnd returns the offset just past the EOI of the JPEG starting at start.
func findJPEGEnd(data []byte, start int) (int, error) {
	if start+1 >= len(data) || data[start] != markerStart || Marker(data[start+1]) != SOI {
		return 0, errors.New("not a JPEG SOI")
	}
	pos := start + 2
	inScan := false
	for pos+1 < len(data) {
		if !inScan {
			if data[pos] != markerStart {
				pos++
				continue
			}
			for pos < len(data) && data[pos] == markerStart {
				pos++
			}
			if pos >= len(data) {
				break
			}
			m := Marker(data[pos])
			pos++
			switch {
			case m == SOI, m.standalone() && m != EOI:
				continue
			case m == EOI:
				return pos, nil
			}
			if pos+1 >= len(data) {
				return 0, errors.New("truncated marker segment")
			}
			segLen := int(binary.BigEndian.Uint16(data[pos:]))
			if segLen < 2 {
				return 0, errors.New("invalid marker length")
			}
			pos += segLen
			inScan = m == SOS
			continue
		}

		if data[pos] != markerStart {
			pos++
			continue
		}
		next := Marker(data[pos+1])
		switch {
		case next == 0x00, next == markerStart:
			pos++
		case next.standalone() && next != EOI:
			pos += 2
		case next == EOI:
			return pos + 2, nil
		default:
			// Marker segment between scans (progressive DHT, SOS).
			inScan = false
		}
	}
	return 0, errors.New("no EOI found")
}

type iccChunk struct {
	seq  int
	data []byte
}

// collectICCChunks returns ICC APP2 payloads ordered by sequence number.
func collectICCChunks(doc *JPEGDocument) [][]byte {
	var chunks []iccChunk
	for _, i := range doc.Find(APP2, iccSig) {
		seg := doc.Segment(i).Contents
		if len(seg) < len(iccSig)+2 {
			continue
		}
		chunks = append(chunks, iccChunk{seq: int(seg[len(iccSig)]), data: seg})
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })
	out := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.data)
	}
	return out
}

// extractICCProfile reassembles the embedded ICC profile, nil if absent.
func extractICCProfile(doc *JPEGDocument) []byte {
	var icc []byte
	for _, c := range collectICCChunks(doc) {
		icc = append(icc, c[len(iccSig)+2:]...)
	}
	return icc
}

// extractExifAndIcc returns the EXIF APP1 payload (if present) and ICC APP2 payloads.
func extractExifAndIcc(doc *JPEGDocument) ([]byte, [][]byte) {
	var exif []byte
	if idx := doc.Find(APP1, exifSig); len(idx) > 0 {
		exif = doc.Segment(idx[0]).Contents
	}
	return exif, collectICCChunks(doc)
}

// findAppPayload returns the contents after sig of the first APPn segment starting with sig.
func findAppPayload(doc *JPEGDocument, marker Marker, sig []byte) []byte {
	if idx := doc.Find(marker, sig); len(idx) > 0 {
		return doc.Segment(idx[0]).Contents[len(sig):]
	}
	return nil
}
