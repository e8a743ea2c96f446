package uhdrbake

import (
	"errors"
	"math"
)

// stdLumaQuant is the Annex K luminance table in zig-zag order, the IJG quality 50 table.
var stdLumaQuant = [64]uint16{
	16, 11, 12, 14, 12, 10, 16, 14,
	13, 14, 18, 17, 16, 19, 24, 40,
	26, 24, 22, 22, 24, 49, 35, 37,
	29, 40, 58, 51, 61, 60, 57, 51,
	56, 55, 64, 72, 92, 78, 64, 68,
	87, 69, 55, 56, 80, 109, 81, 87,
	95, 98, 103, 104, 103, 62, 77, 113,
	121, 112, 100, 120, 92, 101, 103, 99,
}

// lumaQuantTable returns quant table 0 from the DQT segments of doc.
func lumaQuantTable(doc *JPEGDocument) ([64]uint16, error) {
	var table [64]uint16
	for _, i := range doc.Find(DQT, nil) {
		seg := doc.Segment(i).Contents
		pos := 0
		for pos < len(seg) {
			pq := seg[pos] >> 4
			tq := seg[pos] & 0x0F
			pos++
			n := 64
			if pq != 0 {
				n = 128
			}
			if pos+n > len(seg) {
				return table, errors.New("truncated dqt table")
			}
			if tq == 0 {
				for k := 0; k < 64; k++ {
					if pq == 0 {
						table[k] = uint16(seg[pos+k])
					} else {
						table[k] = uint16(seg[pos+2*k])<<8 | uint16(seg[pos+2*k+1])
					}
				}
				return table, nil
			}
			pos += n
		}
	}
	return table, errors.New("no luminance quant table")
}

// EstimateJPEGQuality inverts IJG quality scaling of the luminance quant table.
// It is an estimate for logging, encoders with custom tables map to a nearby value.
func EstimateJPEGQuality(jpeg []byte) (int, bool) {
	end, err := findJPEGEnd(jpeg, 0)
	if err != nil {
		return 0, false
	}
	doc, err := ParseJPEG(jpeg[:end])
	if err != nil {
		return 0, false
	}
	table, err := lumaQuantTable(doc)
	if err != nil {
		return 0, false
	}

	var sum float64
	for k, q := range table {
		sum += float64(q) * 100 / float64(stdLumaQuant[k])
	}
	scale := sum / 64

	var q float64
	switch {
	case scale <= 0:
		return 0, false
	case scale <= 100:
		q = (200 - scale) / 2
	default:
		q = 5000 / scale
	}
	return int(math.Round(math.Max(1, math.Min(100, q)))), true
}
