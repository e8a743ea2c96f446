package uhdrbake

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleContainer_Layout(t *testing.T) {
	exif := segmentBytes(APP1, append(append([]byte(nil), exifSig...), "II*\x00"...))
	icc := iccSegment(buildICC(&primariesDisplayP3, ""))
	primary := paddedJPEG(100, exif, xmpSegment("<x/>"), icc, segmentBytes(COM, []byte("note")))

	out, err := assembleContainer(append(primary, "trailing"...), fakeJPEG(), testGainMapMeta())
	require.NoError(t, err)

	doc, err := ParseJPEG(out)
	require.NoError(t, err)
	var header []string
	for _, s := range doc.Segments() {
		switch {
		case s.Marker == APP1 && s.HasPrefix(exifSig):
			header = append(header, "exif")
		case s.Marker == APP2 && s.HasPrefix(isoSig):
			header = append(header, "iso")
		case s.Marker == APP2 && s.HasPrefix(mpfSig):
			header = append(header, "mpf")
		case s.Marker == APP2 && s.HasPrefix(iccSig):
			header = append(header, "icc")
		case s.Marker >= APP0 && s.Marker <= APP0+0xF, s.Marker == COM:
			header = append(header, s.Marker.String())
		}
	}
	assert.Equal(t, []string{"exif", "iso", "mpf", "icc"}, header)

	// Scan data of the base image is untouched.
	base, err := ParseJPEG(primary)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Tail(), base.Tail()))

	g, ok := DetectICCColorGamut(out)
	assert.True(t, ok)
	assert.Equal(t, GamutDisplayP3, g)

	_, err = assembleContainer(primary, fakeJPEG(), nil)
	assert.Error(t, err)
}

func TestSplit_RoundTrip(t *testing.T) {
	primary := paddedJPEG(300)
	gainmap := fakeJPEG()
	out, err := assembleContainer(primary, gainmap, testGainMapMeta())
	require.NoError(t, err)

	split, err := Split(out)
	require.NoError(t, err)
	assertMetaClose(t, testGainMapMeta(), split.Meta)

	// Primary and gain map keep their scan data and end at EOI.
	for _, img := range [][]byte{split.PrimaryJPEG, split.GainmapJPEG} {
		assert.Equal(t, []byte{0xFF, 0xD8}, img[:2])
		assert.Equal(t, []byte{0xFF, 0xD9}, img[len(img)-2:])
	}
	assert.Equal(t, len(out), len(split.PrimaryJPEG)+len(split.GainmapJPEG))

	gm, err := ParseJPEG(split.GainmapJPEG)
	require.NoError(t, err)
	first := gm.Segment(0)
	assert.Equal(t, APP2, first.Marker)
	assert.True(t, first.HasPrefix(isoSig))
}

func TestSplit_WithoutMPF(t *testing.T) {
	// Two concatenated JPEGs, the second with hdrgm XMP only.
	hdrgm := `<rdf:Description xmlns:hdrgm="http://ns.adobe.com/hdr-gain-map/1.0/" hdrgm:Version="1.0" hdrgm:GainMapMax="2" hdrgm:HDRCapacityMax="2"/>`
	data := append(fakeJPEG(), fakeJPEG(xmpSegment(hdrgm))...)

	split, err := Split(data)
	require.NoError(t, err)
	assert.InDelta(t, 4, split.Meta.MaxContentBoost[0], 1e-6)

	ok, err := IsUltraHDR(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSplit_Errors(t *testing.T) {
	_, err := Split(fakeJPEG())
	assert.True(t, errors.Is(err, errNoGainmapImage))

	_, err = Split(append(fakeJPEG(), fakeJPEG()...))
	assert.True(t, errors.Is(err, errNoGainmapMeta))

	_, err = Split([]byte("nothing here"))
	assert.True(t, errors.Is(err, errNoJPEG))
}

func TestIsUltraHDR(t *testing.T) {
	for name, tc := range map[string]struct {
		data []byte
		want bool
	}{
		"ultrahdr":       {fakeUltraHDR(t, 10), true},
		"plain":          {fakeJPEG(), false},
		"two plain":      {append(fakeJPEG(), fakeJPEG()...), false},
		"xmp without ns": {append(fakeJPEG(), fakeJPEG(xmpSegment("<x:xmpmeta/>"))...), false},
		"hdrgm xmp":      {append(fakeJPEG(), fakeJPEG(segmentBytes(COM, []byte("c")), xmpSegment(hdrgmPacket))...), true},
		"fill bytes":     {append(append(fakeJPEG(), 0xFF, 0xFF), fakeJPEG(xmpSegment(hdrgmPacket))[1:]...), true},
		"icc only":       {append(fakeJPEG(), fakeJPEG(iccSegment(buildICC(&primariesBT709, "")))...), false},
		"truncated":      {truncatedUltraHDR(t), false},
		"empty":          {nil, false},
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := IsUltraHDR(bytes.NewReader(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

const hdrgmPacket = `<x:xmpmeta><rdf:Description xmlns:hdrgm="http://ns.adobe.com/hdr-gain-map/1.0/" hdrgm:Version="1.0"/></x:xmpmeta>`

func TestIsUltraHDR_BadSegmentLength(t *testing.T) {
	data := append(fakeJPEG(), markerStart, byte(SOI), markerStart, byte(APP1), 0, 1)
	_, err := IsUltraHDR(bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

// truncatedUltraHDR cuts an UltraHDR container inside the gain map ISO segment.
func truncatedUltraHDR(t *testing.T) []byte {
	t.Helper()
	data := fakeUltraHDR(t, 10)
	split, err := Split(data)
	require.NoError(t, err)
	return data[:len(split.PrimaryJPEG)+10]
}

func TestPatchMPF_OutOfRange(t *testing.T) {
	doc, err := ParseJPEG(fakeUltraHDR(t, 0))
	require.NoError(t, err)
	loc, ok := locateMPF(doc)
	require.True(t, ok)

	assert.True(t, errors.Is(patchMPF(doc, loc.index, -1), ErrMalformed))
	require.NoError(t, patchMPF(doc, loc.index, 77))

	loc, ok = locateMPF(doc)
	require.True(t, ok)
	assert.Equal(t, uint32(77), loc.info.SecondarySize())
	assert.Equal(t, uint32(doc.EncodedLen()), loc.info.PrimarySize())
}
