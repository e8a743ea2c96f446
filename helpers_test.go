package uhdrbake

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/gen2brain/jpegli"
	"github.com/stretchr/testify/require"
)

func segmentBytes(m Marker, contents []byte) []byte {
	n := len(contents) + 2
	b := []byte{markerStart, byte(m), byte(n >> 8), byte(n)}
	return append(b, contents...)
}

// fakeJPEG builds a structurally valid baseline JPEG with extra segments after APP0.
// Its entropy-coded data is not decodable.
func fakeJPEG(extra ...[]byte) []byte {
	return paddedJPEG(0, extra...)
}

// paddedJPEG is fakeJPEG with scanPad more bytes of entropy-coded data.
func paddedJPEG(scanPad int, extra ...[]byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{markerStart, byte(SOI)})
	b.Write(segmentBytes(APP0, []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")))
	for _, e := range extra {
		b.Write(e)
	}
	dqt := make([]byte, 65)
	for i := 1; i < len(dqt); i++ {
		dqt[i] = 1
	}
	b.Write(segmentBytes(DQT, dqt))
	b.Write(segmentBytes(SOF0, []byte{8, 0, 8, 0, 8, 1, 1, 0x11, 0}))
	b.Write(segmentBytes(SOS, []byte{1, 1, 0, 0, 63, 0}))
	b.Write([]byte{0x12, 0x34, 0xFF, 0x00, 0x56, 0xFF, 0xD0, 0x78})
	b.Write(bytes.Repeat([]byte{0x55}, scanPad))
	b.Write([]byte{markerStart, byte(EOI)})
	return b.Bytes()
}

func xmpSegment(packet string) []byte {
	return segmentBytes(APP1, append(append([]byte(nil), xmpSig...), packet...))
}

func s15(v float64) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(int32(math.Round(v*65536))))
}

// buildICC makes a minimal ICC profile with colorant tags for p (when non-nil)
// and a v2 desc tag (when desc is not empty).
func buildICC(p *primaries, desc string) []byte {
	type tag struct {
		sig  string
		data []byte
	}
	var tags []tag
	if p != nil {
		for i, sig := range []string{"rXYZ", "gXYZ", "bXYZ"} {
			x, y := float64(p[i][0]), float64(p[i][1])
			data := []byte("XYZ \x00\x00\x00\x00")
			data = append(data, s15(x/y)...)
			data = append(data, s15(1)...)
			data = append(data, s15((1-x-y)/y)...)
			tags = append(tags, tag{sig, data})
		}
	}
	if desc != "" {
		data := []byte("desc\x00\x00\x00\x00")
		data = binary.BigEndian.AppendUint32(data, uint32(len(desc)+1))
		data = append(data, desc...)
		data = append(data, 0)
		tags = append(tags, tag{"desc", data})
	}

	size := iccTagTableOffset + len(tags)*iccTagEntrySize
	for _, t := range tags {
		size += len(t.data)
	}
	icc := make([]byte, iccTagTableOffset+len(tags)*iccTagEntrySize, size)
	binary.BigEndian.PutUint32(icc[0:], uint32(size))
	binary.BigEndian.PutUint32(icc[iccTagCountOffset:], uint32(len(tags)))
	for i, t := range tags {
		e := icc[iccTagTableOffset+i*iccTagEntrySize:]
		copy(e, t.sig)
		binary.BigEndian.PutUint32(e[4:], uint32(len(icc)))
		binary.BigEndian.PutUint32(e[8:], uint32(len(t.data)))
		icc = append(icc, t.data...)
	}
	return icc
}

func iccSegment(icc []byte) []byte {
	contents := append(append([]byte(nil), iccSig...), 1, 1)
	return segmentBytes(APP2, append(contents, icc...))
}

func testGainMapMeta() *GainMapMetadata {
	return &GainMapMetadata{
		Version:         jpegrVersion,
		MaxContentBoost: [3]float32{4, 4, 4},
		MinContentBoost: [3]float32{1, 1, 1},
		Gamma:           [3]float32{1, 1, 1},
		OffsetSDR:       [3]float32{1.0 / 64, 1.0 / 64, 1.0 / 64},
		OffsetHDR:       [3]float32{1.0 / 64, 1.0 / 64, 1.0 / 64},
		HDRCapacityMin:  1,
		HDRCapacityMax:  4,
		UseBaseCG:       true,
	}
}

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(40 + 200*x/w),
				G: uint8(40 + 200*y/h),
				B: 128,
				A: 0xFF,
			})
		}
	}
	return img
}

func grayImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func encodeJPEG(t testing.TB, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpegli.Encode(&buf, img, &jpegli.EncodingOptions{Quality: quality}))
	return buf.Bytes()
}

// ultraHDRFixture assembles a decodable UltraHDR JPEG from synthetic images.
func ultraHDRFixture(t testing.TB, w, h int) []byte {
	t.Helper()
	primary := encodeJPEG(t, gradientImage(w, h), 90)
	gainmap := encodeJPEG(t, grayImage(w, h, 200), 90)
	out, err := assembleContainer(primary, gainmap, testGainMapMeta())
	require.NoError(t, err)
	return out
}

// fakeUltraHDR assembles an UltraHDR container from fake JPEGs, cheap for container tests.
// The primary scan is padded to primaryPad bytes.
func fakeUltraHDR(t testing.TB, primaryPad int) []byte {
	t.Helper()
	out, err := assembleContainer(paddedJPEG(primaryPad), fakeJPEG(), testGainMapMeta())
	require.NoError(t, err)
	return out
}
