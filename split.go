package uhdrbake

import "errors"

var (
	errNoGainmapImage = errors.New("gainmap image not found")
	errNoGainmapMeta  = errors.New("no gainmap metadata found")
)

// SplitResult holds the images of an UltraHDR container.
type SplitResult struct {
	PrimaryJPEG []byte
	GainmapJPEG []byte
	Meta        *GainMapMetadata
}

// Split extracts the primary and gain map JPEG images and gain map metadata.
// Image slices alias data.
func Split(data []byte) (*SplitResult, error) {
	ranges, err := scanJPEGs(data)
	if err != nil {
		return nil, err
	}
	if len(ranges) < 2 {
		return nil, errNoGainmapImage
	}
	res := &SplitResult{
		PrimaryJPEG: data[ranges[0][0]:ranges[0][1]],
		GainmapJPEG: data[ranges[1][0]:ranges[1][1]],
	}
	res.Meta, err = gainmapMetadata(res.GainmapJPEG)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// gainmapMetadata reads the ISO 21496-1 block of a gain map image, then hdrgm XMP.
func gainmapMetadata(gainmapJPEG []byte) (*GainMapMetadata, error) {
	doc, err := ParseJPEG(gainmapJPEG)
	if err != nil {
		return nil, err
	}
	if iso := findAppPayload(doc, APP2, isoSig); iso != nil {
		return DecodeISOGainMap(iso)
	}
	if idx := doc.Find(APP1, xmpSig); len(idx) > 0 {
		return parseHdrgmXMP(doc.Segment(idx[0]).Contents)
	}
	return nil, errNoGainmapMeta
}
