package uhdrbake

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJPEG_RoundTrip(t *testing.T) {
	data := fakeJPEG(xmpSegment("<x/>"), segmentBytes(COM, []byte("hello")))
	// Fill bytes before a marker and trailing data after EOI must survive.
	data = bytes.Replace(data, []byte{0xFF, byte(COM)}, []byte{0xFF, 0xFF, 0xFF, byte(COM)}, 1)
	data = append(data, []byte("trailing clip")...)

	doc, err := ParseJPEG(data)
	require.NoError(t, err)

	out, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, len(data), doc.EncodedLen())

	markers := make([]Marker, 0, len(doc.Segments()))
	for _, s := range doc.Segments() {
		markers = append(markers, s.Marker)
	}
	assert.Equal(t, []Marker{APP0, APP1, COM, DQT, SOF0, SOS}, markers)
	assert.True(t, bytes.HasSuffix(doc.Tail(), []byte("trailing clip")))
}

func TestParseJPEG_Malformed(t *testing.T) {
	valid := fakeJPEG()

	for name, data := range map[string][]byte{
		"empty":       nil,
		"no soi":      valid[2:],
		"truncated":   valid[:10],
		"nested soi":  append([]byte{0xFF, 0xD8}, valid...),
		"zero marker": {0xFF, 0xD8, 0xFF, 0x00},
		"bad length":  {0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x01},
		"overlong":    {0xFF, 0xD8, 0xFF, 0xE1, 0x10, 0x00, 0x01},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJPEG(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), err.Error())
		})
	}
}

func TestJPEGDocument_InsertRemoveReplace(t *testing.T) {
	exif := segmentBytes(APP1, append(append([]byte(nil), exifSig...), 1, 2, 3))
	doc, err := ParseJPEG(fakeJPEG(exif, xmpSegment("<old/>"), xmpSegment("<older/>")))
	require.NoError(t, err)

	old, ok := doc.Remove(APP1, xmpSig)
	require.True(t, ok)
	assert.Equal(t, "<old/>", string(old))
	assert.Empty(t, doc.Find(APP1, xmpSig))

	_, ok = doc.Remove(APP1, xmpSig)
	assert.False(t, ok)

	// After APP0 and EXIF, before DQT.
	idx := doc.Insert(NewSegment(APP2, []byte("payload")))
	assert.Equal(t, 2, idx)
	assert.Equal(t, DQT, doc.Segment(3).Marker)

	before := doc.EncodedLen()
	require.NoError(t, doc.Replace(idx, []byte("PAYLOAD")))
	assert.Equal(t, before, doc.EncodedLen())

	out, err := doc.Encode()
	require.NoError(t, err)
	off := doc.ContentsOffset(idx)
	assert.Equal(t, "PAYLOAD", string(out[off:off+7]))
	assert.Equal(t, []byte{0xFF, byte(APP2)}, out[off-4:off-2])

	assert.Error(t, doc.Replace(100, nil))
}

func TestJPEGDocument_Clone(t *testing.T) {
	doc, err := ParseJPEG(fakeJPEG())
	require.NoError(t, err)

	c := doc.Clone()
	c.Insert(NewSegment(APP2, []byte("x")))
	assert.Len(t, c.Segments(), len(doc.Segments())+1)
}

func TestJPEGDocument_EncodeTooLong(t *testing.T) {
	doc, err := ParseJPEG(fakeJPEG())
	require.NoError(t, err)

	doc.Insert(NewSegment(APP1, make([]byte, maxSegmentContents+1)))
	_, err = doc.Encode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSegmentTooLong))

	doc, err = ParseJPEG(fakeJPEG())
	require.NoError(t, err)
	doc.Insert(NewSegment(APP1, make([]byte, maxSegmentContents)))
	_, err = doc.Encode()
	assert.NoError(t, err)
}

func TestFindJPEGEnd(t *testing.T) {
	data := fakeJPEG()
	end, err := findJPEGEnd(append(append([]byte(nil), data...), "tail"...), 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), end)

	_, err = findJPEGEnd(data[:len(data)-2], 0)
	assert.Error(t, err)
}
