package uhdrbake

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

const (
	iccTagCountOffset = 128
	iccTagTableOffset = 132
	iccTagEntrySize   = 12

	float32Epsilon = 1.1920929e-7
	// s15Fixed16Step is the resolution of ICC XYZ numbers.
	s15Fixed16Step = 1.0 / 65536
)

type primaries [3][2]float32

var (
	primariesBT709     = primaries{{0.6400, 0.3300}, {0.3000, 0.6000}, {0.1500, 0.0600}}
	primariesDisplayP3 = primaries{{0.6800, 0.3200}, {0.2650, 0.6900}, {0.1500, 0.0600}}
	primariesBT2100    = primaries{{0.7080, 0.2920}, {0.1700, 0.7970}, {0.1310, 0.0460}}
)

// gamutReferences is ordered by match priority: wider gamuts first, BT.709 last
// so it never shadows the others.
var gamutReferences = []struct {
	gamut ColorGamut
	ref   primaries
}{
	{GamutDisplayP3, primariesDisplayP3},
	{GamutBT2100, primariesBT2100},
	{GamutBT709, primariesBT709},
}

// DetectICCColorGamut classifies the ICC profile embedded in a JPEG by its colorant primaries,
// falling back to the profile description text. It returns false when nothing matched.
func DetectICCColorGamut(jpeg []byte) (ColorGamut, bool) {
	doc, err := ParseJPEG(jpeg)
	if err != nil {
		return GamutUnspecified, false
	}
	return detectICCProfileGamut(extractICCProfile(doc))
}

func detectICCProfileGamut(icc []byte) (ColorGamut, bool) {
	if len(icc) == 0 {
		return GamutUnspecified, false
	}
	if p, ok := iccPrimaries(icc); ok {
		if g, ok := matchPrimaries(p); ok {
			return g, true
		}
	}
	if desc, ok := iccDescription(icc); ok {
		return matchDescription(desc)
	}
	return GamutUnspecified, false
}

// GamutLabel is a human readable gamut name for diagnostics.
func GamutLabel(g ColorGamut) string {
	switch g {
	case GamutBT709:
		return "BT.709 / sRGB"
	case GamutDisplayP3:
		return "Display P3"
	case GamutBT2100:
		return "BT.2100 / Rec.2020"
	default:
		return "unspecified"
	}
}

func matchPrimaries(p primaries) (ColorGamut, bool) {
	for _, r := range gamutReferences {
		if primariesClose(p, r.ref) {
			return r.gamut, true
		}
	}
	return GamutUnspecified, false
}

// primariesClose compares xy coordinates with GamutMatchTolerance inclusive.
// Colorants are decoded from s15Fixed16 numbers, so one step of slack keeps a
// profile written exactly at the tolerance inside it.
func primariesClose(a, b primaries) bool {
	limit := GamutMatchTolerance + s15Fixed16Step
	for i := range a {
		if abs32(a[i][0]-b[i][0]) > limit || abs32(a[i][1]-b[i][1]) > limit {
			return false
		}
	}
	return true
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func matchDescription(desc string) (ColorGamut, bool) {
	lower := strings.ToLower(desc)
	switch {
	case strings.Contains(lower, "p3"):
		return GamutDisplayP3, true
	case strings.Contains(lower, "2020"), strings.Contains(lower, "2100"):
		return GamutBT2100, true
	case strings.Contains(lower, "srgb"), strings.Contains(lower, "709"):
		return GamutBT709, true
	}
	return GamutUnspecified, false
}

func iccPrimaries(icc []byte) (primaries, bool) {
	var p primaries
	for i, sig := range []string{"rXYZ", "gXYZ", "bXYZ"} {
		xyz, ok := iccXYZTag(icc, sig)
		if !ok {
			return p, false
		}
		sum := xyz[0] + xyz[1] + xyz[2]
		if sum <= float32Epsilon {
			return p, false
		}
		p[i] = [2]float32{xyz[0] / sum, xyz[1] / sum}
	}
	return p, true
}

func iccXYZTag(icc []byte, sig string) ([3]float32, bool) {
	var xyz [3]float32
	data, ok := iccTag(icc, sig)
	if !ok || len(data) < 20 || string(data[:4]) != "XYZ " {
		return xyz, false
	}
	for i := range xyz {
		xyz[i] = s15Fixed16(data[8+4*i:])
	}
	return xyz, true
}

func s15Fixed16(b []byte) float32 {
	return float32(int32(binary.BigEndian.Uint32(b))) / 65536
}

// iccTag returns the data of the first tag table entry with the signature.
func iccTag(icc []byte, sig string) ([]byte, bool) {
	if len(icc) < iccTagTableOffset {
		return nil, false
	}
	count := uint64(binary.BigEndian.Uint32(icc[iccTagCountOffset:]))
	table, ok := checkedMul(count, iccTagEntrySize)
	if !ok {
		return nil, false
	}
	if _, ok := span(icc, uint64(iccTagTableOffset), table); !ok {
		return nil, false
	}
	for i := uint64(0); i < count; i++ {
		e := icc[iccTagTableOffset+i*iccTagEntrySize:][:iccTagEntrySize]
		if string(e[:4]) != sig {
			continue
		}
		off := uint64(binary.BigEndian.Uint32(e[4:8]))
		size := uint64(binary.BigEndian.Uint32(e[8:12]))
		return span(icc, off, size)
	}
	return nil, false
}

// iccDescription decodes the desc tag: ICC v2 textDescriptionType or v4 mluc (first record).
func iccDescription(icc []byte) (string, bool) {
	tag, ok := iccTag(icc, "desc")
	if !ok || len(tag) < 12 {
		return "", false
	}
	var text string
	switch string(tag[:4]) {
	case "desc":
		n := uint64(binary.BigEndian.Uint32(tag[8:12]))
		raw, ok := span(tag, uint64(12), n)
		if !ok || n == 0 {
			return "", false
		}
		text = string(bytes.Trim(raw, "\x00"))
	case "mluc":
		if len(tag) < 28 || binary.BigEndian.Uint32(tag[8:12]) == 0 {
			return "", false
		}
		n := uint64(binary.BigEndian.Uint32(tag[20:24]))
		off := uint64(binary.BigEndian.Uint32(tag[24:28]))
		raw, ok := span(tag, off, n)
		if !ok || n < 2 {
			return "", false
		}
		units := make([]uint16, 0, n/2)
		for i := 0; i+1 < len(raw); i += 2 {
			units = append(units, binary.BigEndian.Uint16(raw[i:]))
		}
		text = strings.Trim(string(utf16.Decode(units)), "\x00")
	default:
		return "", false
	}
	return text, text != ""
}
