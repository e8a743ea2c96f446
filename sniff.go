package uhdrbake

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MediaKind is a coarse file classification for Motion Photo inputs.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaJPEG
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaJPEG:
		return "JPEG"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	ftypBox   = []byte("ftyp")
)

// MediaKindByExt classifies a path by its extension.
func MediaKindByExt(path string) MediaKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".jpe":
		return MediaJPEG
	case ".mp4", ".mov", ".m4v", ".3gp":
		return MediaVideo
	default:
		return MediaUnknown
	}
}

// SniffMediaKind classifies leading file bytes: JPEG SOI or an ISO BMFF ftyp box.
func SniffMediaKind(head []byte) MediaKind {
	switch {
	case bytes.HasPrefix(head, jpegMagic):
		return MediaJPEG
	case len(head) >= 8 && bytes.Equal(head[4:8], ftypBox):
		return MediaVideo
	default:
		return MediaUnknown
	}
}

// DetectMediaKind uses the extension first and file signature second.
// The returned reason tells which heuristic decided.
func DetectMediaKind(path string) (MediaKind, string, error) {
	if k := MediaKindByExt(path); k != MediaUnknown {
		return k, "extension " + filepath.Ext(path), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return MediaUnknown, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return MediaUnknown, "", fmt.Errorf("read %s: %w", path, err)
	}
	k := SniffMediaKind(head[:n])
	return k, "file signature", nil
}

// hasFtyp reports whether a video blob starts with an ISO BMFF ftyp box.
func hasFtyp(video []byte) bool {
	return SniffMediaKind(video) == MediaVideo
}

// sidecarVideo looks for a clip next to photo with the same base name: Apple Live Photo
// (.MOV/.MP4) or the older Google .MP.jpg/.MP pair.
func sidecarVideo(photo string) (string, bool) {
	ext := filepath.Ext(photo)
	base := strings.TrimSuffix(photo, ext)
	if strings.HasSuffix(strings.ToLower(base), ".mp") && isRegularFile(base) {
		return base, true
	}
	exts := []string{".MOV", ".MP4"}
	if ext == strings.ToLower(ext) {
		exts = []string{".mov", ".mp4"}
	}
	for _, e := range exts {
		if p := base + e; isRegularFile(p) {
			return p, true
		}
	}
	return "", false
}

func isRegularFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
