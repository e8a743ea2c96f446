package uhdrbake

import (
	"errors"
	"fmt"
)

// assembleContainer joins a base JPEG and a gain map JPEG into an UltraHDR container.
// The base image entropy-coded data is copied as is. Primary header follows libvips
// ordering: EXIF, ISO version block, MPF, ICC.
func assembleContainer(primaryJPEG, gainmapJPEG []byte, meta *GainMapMetadata) ([]byte, error) {
	if meta == nil {
		return nil, errors.New("gainmap metadata missing")
	}
	end, err := findJPEGEnd(primaryJPEG, 0)
	if err != nil {
		return nil, fmt.Errorf("base image: %w", err)
	}
	primary, err := ParseJPEG(primaryJPEG[:end])
	if err != nil {
		return nil, fmt.Errorf("base image: %w", err)
	}
	gainmap, err := ParseJPEG(gainmapJPEG)
	if err != nil {
		return nil, fmt.Errorf("gainmap image: %w", err)
	}

	exif, icc := extractExifAndIcc(primary)
	stripAppSegments(primary)
	stripAppSegments(gainmap)

	iso, err := buildISOPayload(meta)
	if err != nil {
		return nil, err
	}
	gainmap.insertAt(0, NewSegment(APP2, iso))
	gainmapData, err := gainmap.Encode()
	if err != nil {
		return nil, fmt.Errorf("gainmap image: %w", err)
	}

	header := make([]JPEGSegment, 0, 3+len(icc))
	if len(exif) > 0 {
		header = append(header, NewSegment(APP1, exif))
	}
	header = append(header, NewSegment(APP2, buildISOVersionOnly()))
	mpfIdx := len(header)
	header = append(header, NewSegment(APP2, BuildMPF(0, 0, 0)))
	for _, c := range icc {
		header = append(header, NewSegment(APP2, c))
	}
	for i, s := range header {
		primary.insertAt(i, s)
	}

	if err := patchMPF(primary, mpfIdx, len(gainmapData)); err != nil {
		return nil, err
	}
	out, err := primary.Encode()
	if err != nil {
		return nil, err
	}
	return append(out, gainmapData...), nil
}

// patchMPF rewrites the MPF segment at mpfIdx so that it describes the document followed
// by a secondary image of secondarySize bytes. MPF size is fixed, so lengths do not move.
func patchMPF(doc *JPEGDocument, mpfIdx, secondarySize int) error {
	primaryLen := doc.EncodedLen()
	tiffBase := doc.ContentsOffset(mpfIdx) + len(mpfSig)
	secondaryOffset, ok := checkedSub(primaryLen, tiffBase)
	if !ok || secondaryOffset < 0 || !fitsU32(primaryLen) || !fitsU32(secondarySize) {
		return malformedf("mpf offsets out of range (primary %d, tiff base %d, secondary %d)",
			primaryLen, tiffBase, secondarySize)
	}
	return doc.Replace(mpfIdx, BuildMPF(uint32(primaryLen), uint32(secondarySize), uint32(secondaryOffset)))
}

// stripAppSegments removes APP0-APP15 and COM segments.
func stripAppSegments(doc *JPEGDocument) {
	doc.removeFunc(func(s *JPEGSegment) bool {
		return s.Marker == COM || (s.Marker >= APP0 && s.Marker <= APP0+0xF)
	})
}
