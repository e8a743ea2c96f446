package main

import (
	"bytes"
	"errors"
	"flag"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen2brain/jpegli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/uhdrbake"
)

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpegli.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), &jpegli.EncodingOptions{Quality: 90}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestRun_Usage(t *testing.T) {
	assert.Equal(t, 2, run(nil))
	assert.Equal(t, 0, run([]string{"help"}))
	assert.Equal(t, 2, run([]string{"bake", "--no-such-flag"}))
	assert.Equal(t, 2, run([]string{"motion", "-h"}))
	assert.Equal(t, 2, run([]string{"detect"}))
	assert.Equal(t, 2, run([]string{"split", "-in", "x.jpg"}))
	assert.Equal(t, 2, run([]string{"motion", "--profile", "gpu", "a.jpg", "b.mp4"}))

	// Input errors exit 1.
	assert.Equal(t, 1, run([]string{"bake", "--hdr", "a.jpg"}))
	assert.Equal(t, 1, run([]string{"bake", "--target-peak", "0", "--hdr", "a.jpg", "--sdr", "b.jpg"}))
	assert.Equal(t, 1, run([]string{"motion"}))
}

func TestRunBake_InvalidOptions(t *testing.T) {
	dir := t.TempDir()
	missing := []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.jpg")}

	for name, tc := range map[string]struct {
		args []string
		msg  string
	}{
		"base quality": {[]string{"--base-q", "0"}, "base quality"},
		"gm quality":   {[]string{"--gm-q", "101"}, "gain map quality"},
		"scale":        {[]string{"--scale", "0"}, "gain map scale"},
	} {
		t.Run(name, func(t *testing.T) {
			// Inputs do not exist, options are rejected before they are read.
			err := runBake(append(tc.args, missing...))
			require.Error(t, err)
			assert.True(t, errors.Is(err, uhdrbake.ErrInvalidInput), "%v", err)
			assert.Contains(t, err.Error(), tc.msg)
			assert.False(t, errors.Is(err, os.ErrNotExist))
		})
	}
	assert.Equal(t, 1, run(append([]string{"bake", "--scale", "0"}, missing...)))
}

func TestRun_MotionDetectSplit(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "IMG_0001.JPG")
	writeJPEG(t, photo)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IMG_0001.MOV"), []byte("\x00\x00\x00\x18ftypqt  clip"), 0o600))
	out := filepath.Join(dir, "motion.jpg")

	require.Equal(t, 0, run([]string{"motion", photo, "-o", out, "--timestamp-us", "1000"}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `GCamera:MotionPhotoPresentationTimestampUs="1000"`)
	assert.True(t, bytes.HasSuffix(data, []byte("ftypqt  clip")))

	assert.Equal(t, 0, run([]string{"detect", "-in", out}))
	assert.Equal(t, 1, run([]string{"split", "-in", out, "-primary-out", filepath.Join(dir, "p.jpg"), "-gainmap-out", filepath.Join(dir, "g.jpg")}))
}

func TestParseInterspersed(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	v := fs.Bool("v", false, "")
	o := fs.String("o", "", "")

	positional, err := parseInterspersed(fs, []string{"a.jpg", "-v", "b.mp4", "-o", "out.jpg", "--", "-c.jpg", "-v"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.mp4", "-c.jpg", "-v"}, positional)
	assert.True(t, *v)
	assert.Equal(t, "out.jpg", *o)
}
