package uhdrbake

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVideo(n int) []byte {
	v := []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")
	for len(v) < n {
		v = append(v, byte(len(v)))
	}
	return v
}

func motionItems(t *testing.T, res *MotionResult) map[string]string {
	t.Helper()
	doc, err := ParseJPEG(res.Data[:res.JPEGLen])
	require.NoError(t, err)
	packet := findAppPayload(doc, APP1, xmpSig)
	require.NotNil(t, packet)

	lengths := map[string]string{}
	for _, it := range directoryItems(t, packet) {
		lengths[it.Semantic] = it.Length
	}
	return lengths
}

func TestAssembleMotionPhoto_Plain(t *testing.T) {
	photo := fakeJPEG(xmpSegment(cameraPacket))
	stale := append(append([]byte(nil), photo...), []byte("old embedded clip")...)
	video := testVideo(5000)

	logger, _ := test.NewNullLogger()
	res, err := AssembleMotionPhoto(stale, video, MotionOptions{PresentationTimestampUs: 42, Logger: logger})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, PlainMotionMaxIterations)
	assert.Equal(t, res.JPEGLen, res.PrimaryLen)
	assert.Zero(t, res.GainMapLen)
	assert.Equal(t, res.JPEGLen, res.VideoOffset)
	assert.Equal(t, len(res.Data), res.JPEGLen+len(video))
	assert.Equal(t, video, res.Data[res.VideoOffset:])
	assert.NotContains(t, string(res.Data), "old embedded clip")
	assert.Equal(t, []byte{0xFF, 0xD9}, res.Data[res.JPEGLen-2:res.JPEGLen])

	assert.Equal(t, map[string]string{
		semanticPrimary:     strconv.Itoa(res.PrimaryLen),
		semanticMotionPhoto: strconv.Itoa(len(video)),
	}, motionItems(t, res))
	assert.Contains(t, string(res.Data), `GCamera:MotionPhotoPresentationTimestampUs="42"`)
	assert.Contains(t, string(res.Data), `xmpMM:OriginalDocumentID="ABC-123"`)
}

func TestAssembleMotionPhoto_PlainTwice(t *testing.T) {
	first, err := AssembleMotionPhoto(fakeJPEG(), testVideo(300), MotionOptions{})
	require.NoError(t, err)

	video := testVideo(123456)
	res, err := AssembleMotionPhoto(first.Data, video, MotionOptions{})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, video, res.Data[res.VideoOffset:])
	items := motionItems(t, res)
	assert.Len(t, items, 2)
	assert.Equal(t, strconv.Itoa(res.PrimaryLen), items[semanticPrimary])
	assert.Equal(t, "123456", items[semanticMotionPhoto])
}

func TestAssembleMotionPhoto_UltraHDR(t *testing.T) {
	// Primary length keeps its decimal width when the XMP packet is added.
	uhdr := fakeUltraHDR(t, 20000)
	before, err := Split(uhdr)
	require.NoError(t, err)

	video := testVideo(2048)
	res, err := AssembleMotionPhoto(append(uhdr, "stale clip"...), video, MotionOptions{})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, MPFMotionMaxIterations)
	assert.Equal(t, len(before.GainmapJPEG), res.GainMapLen)
	assert.Equal(t, res.PrimaryLen+res.GainMapLen, res.JPEGLen)
	assert.Equal(t, video, res.Data[res.VideoOffset:])

	still := res.Data[:res.JPEGLen]
	assert.Equal(t, before.GainmapJPEG, still[res.PrimaryLen:])

	doc, err := ParseJPEG(still)
	require.NoError(t, err)
	loc, ok := locateMPF(doc)
	require.True(t, ok)
	assert.Equal(t, uint32(res.PrimaryLen), loc.info.PrimarySize())
	assert.Equal(t, uint32(res.GainMapLen), loc.info.SecondarySize())
	assert.Equal(t, res.PrimaryLen, loc.tiffBase+int(loc.info.SecondaryOffset()))

	after, err := Split(still)
	require.NoError(t, err)
	assert.Equal(t, before.GainmapJPEG, after.GainmapJPEG)
	assertMetaClose(t, before.Meta, after.Meta)

	assert.Equal(t, map[string]string{
		semanticPrimary:     strconv.Itoa(res.PrimaryLen),
		semanticGainMap:     strconv.Itoa(res.GainMapLen),
		semanticMotionPhoto: strconv.Itoa(len(video)),
	}, motionItems(t, res))

	ok, err = IsUltraHDR(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAssembleMotionPhoto_UltraHDRPreservesDirectory(t *testing.T) {
	uhdr := fakeUltraHDR(t, 20000)
	doc, err := ParseJPEG(uhdr)
	require.NoError(t, err)
	loc, ok := locateMPF(doc)
	require.True(t, ok)
	gainmap := uhdr[loc.tiffBase+int(loc.info.SecondaryOffset()):]

	primary, err := ParseJPEG(uhdr[:loc.info.PrimarySize()])
	require.NoError(t, err)
	primary.Insert(NewSegment(APP1, append(append([]byte(nil), xmpSig...), ultraHDRPacket...)))
	mpfIdx, ok := locateMPF(primary)
	require.True(t, ok)
	require.NoError(t, patchMPF(primary, mpfIdx.index, len(gainmap)))
	encoded, err := primary.Encode()
	require.NoError(t, err)

	res, err := AssembleMotionPhoto(append(encoded, gainmap...), testVideo(700), MotionOptions{})
	require.NoError(t, err)

	items := motionItems(t, res)
	assert.Equal(t, strconv.Itoa(res.PrimaryLen), items[semanticPrimary])
	assert.Equal(t, strconv.Itoa(res.GainMapLen), items[semanticGainMap])
	assert.Equal(t, "700", items[semanticMotionPhoto])
	assert.Contains(t, string(res.Data[:res.PrimaryLen]), `hdrgm:Version="1.0"`)
}

func TestAssembleMotionPhoto_UltraHDRNotConverged(t *testing.T) {
	// A tiny primary gains a decimal digit once the XMP packet is added, which the
	// single correction pass does not absorb.
	logger, hook := test.NewNullLogger()
	res, err := AssembleMotionPhoto(fakeUltraHDR(t, 0), testVideo(64), MotionOptions{Logger: logger})
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, MPFMotionMaxIterations, res.Iterations)
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)

	// MPF offsets are exact even when XMP lengths are not.
	doc, err := ParseJPEG(res.Data[:res.JPEGLen])
	require.NoError(t, err)
	loc, ok := locateMPF(doc)
	require.True(t, ok)
	assert.Equal(t, uint32(res.PrimaryLen), loc.info.PrimarySize())
	assert.Equal(t, res.PrimaryLen, loc.tiffBase+int(loc.info.SecondaryOffset()))
}

func TestAssembleMotionPhoto_MalformedMPF(t *testing.T) {
	uhdr := fakeUltraHDR(t, 2000)
	doc, err := ParseJPEG(uhdr)
	require.NoError(t, err)
	loc, ok := locateMPF(doc)
	require.True(t, ok)
	primaryLen := int(loc.info.PrimarySize())

	oneEntry := append([]byte(nil), uhdr...)
	// Entry tag count field, as in TestParseMPF_Malformed.
	countAt := loc.tiffBase + 8 + 2 + 2*12 + 4
	binary.BigEndian.PutUint32(oneEntry[countAt:], 16)

	shifted := append(append(append([]byte(nil), uhdr[:primaryLen]...), 'x'), uhdr[primaryLen:]...)

	for name, photo := range map[string][]byte{
		"one entry":  oneEntry,
		"not an SOI": shifted,
		"truncated":  uhdr[:primaryLen+10],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := AssembleMotionPhoto(photo, testVideo(100), MotionOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "%v", err)
		})
	}
}

func TestAssembleMotionPhoto_Video(t *testing.T) {
	_, err := AssembleMotionPhoto(fakeJPEG(), nil, MotionOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	logger, hook := test.NewNullLogger()
	res, err := AssembleMotionPhoto(fakeJPEG(), []byte("not an mp4"), MotionOptions{Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, []byte("not an mp4"), res.Data[res.VideoOffset:])

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)

	_, err = AssembleMotionPhoto([]byte("not a jpeg"), testVideo(10), MotionOptions{})
	assert.Error(t, err)
}

func TestAssembleMotionPhotoFile(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "IMG_0001.jpg")
	video := filepath.Join(dir, "IMG_0001.mp4")
	out := filepath.Join(dir, "motion.jpg")
	require.NoError(t, os.WriteFile(photo, fakeJPEG(), 0o600))
	require.NoError(t, os.WriteFile(video, testVideo(100), 0o600))

	logger, hook := test.NewNullLogger()
	res, err := AssembleMotionPhotoFile(MotionPair{Photo: photo, Video: video}, out, MotionOptions{Logger: logger})
	require.NoError(t, err)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, res.Data, written)
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "Wrote Motion Photo")

	_, err = AssembleMotionPhotoFile(MotionPair{Photo: photo, Video: filepath.Join(dir, "missing.mp4")}, out, MotionOptions{})
	assert.Error(t, err)
}
