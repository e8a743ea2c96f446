package uhdrbake

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

const hdrDetectionReason = "probe found gain map metadata"

// ResolveRequest holds bake inputs as given on the command line.
type ResolveRequest struct {
	Positional []string
	HDR        string
	SDR        string
	Logger     log.FieldLogger
}

// ResolveBakeInputs decides which input is the HDR (gain map) JPEG and which is the SDR base.
func ResolveBakeInputs(c Codec, req ResolveRequest) (InputPair, error) {
	logger := loggerOrStd(req.Logger)

	if req.HDR != "" || req.SDR != "" {
		if len(req.Positional) > 0 {
			return InputPair{}, inputErrorf("positional inputs cannot be combined with --hdr/--sdr")
		}
		if missing := missingFlag("--hdr", req.HDR, "--sdr", req.SDR); missing != "" {
			return InputPair{}, inputErrorf("missing %s: provide both --hdr and --sdr together (or omit both to auto-detect)", missing)
		}
		return InputPair{HDR: req.HDR, SDR: req.SDR}, nil
	}

	switch len(req.Positional) {
	case 0:
		return InputPair{}, inputErrorf("provide --hdr and --sdr, or 1-2 positional JPEGs for auto-detection")
	case 1:
		return resolveByOriginalID(c, req.Positional[0], logger)
	case 2:
		return autoDetectPair(c, req.Positional[0], req.Positional[1], logger)
	default:
		return InputPair{}, inputErrorf("too many inputs (%d): provide --hdr and --sdr, or 1-2 positional JPEGs",
			len(req.Positional))
	}
}

func resolveByOriginalID(c Codec, seed string, logger log.FieldLogger) (InputPair, error) {
	seedID, ok, err := ReadOriginalDocumentID(seed)
	if err != nil {
		return InputPair{}, err
	}
	if !ok {
		return InputPair{}, inputErrorf("input %s missing XMP OriginalDocumentID; cannot find pair, specify --hdr/--sdr", seed)
	}

	ext := filepath.Ext(seed)
	if ext == "" {
		return InputPair{}, inputErrorf("input %s has no extension; cannot find pair, specify --hdr/--sdr", seed)
	}
	dir := filepath.Dir(seed)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return InputPair{}, fmt.Errorf("list directory %s: %w", dir, err)
	}

	cleanSeed := filepath.Clean(seed)
	var matches []string
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if p == cleanSeed || !strings.EqualFold(filepath.Ext(p), ext) || !isRegularFile(p) {
			continue
		}
		id, ok, err := ReadOriginalDocumentID(p)
		if err != nil {
			return InputPair{}, err
		}
		if ok && id == seedID {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return InputPair{}, inputErrorf("no sibling with matching OriginalDocumentID (%s) found for %s; specify --hdr/--sdr",
			seedID, seed)
	case 1:
		logger.WithFields(log.Fields{
			"original_document_id": seedID,
			"seed":                 seed,
			"sibling":              matches[0],
		}).Info("found matching OriginalDocumentID")
		return autoDetectPair(c, seed, matches[0], logger)
	default:
		sort.Strings(matches)
		matches = dedupSorted(matches)
		return InputPair{}, ambiguousErrorf("multiple siblings share OriginalDocumentID (%s) with %s:\n%s\nplease specify --hdr/--sdr explicitly",
			seedID, seed, strings.Join(matches, "\n"))
	}
}

func autoDetectPair(c Codec, a, b string, logger log.FieldLogger) (InputPair, error) {
	aHDR, err := isHDRCandidate(c, a)
	if err != nil {
		return InputPair{}, err
	}
	bHDR, err := isHDRCandidate(c, b)
	if err != nil {
		return InputPair{}, err
	}

	var pair InputPair
	switch {
	case aHDR && !bHDR:
		pair = InputPair{HDR: a, SDR: b}
	case bHDR && !aHDR:
		pair = InputPair{HDR: b, SDR: a}
	case aHDR && bHDR:
		return InputPair{}, ambiguousErrorf("both inputs look like UltraHDR (ISO 21496 gain map metadata); please specify --hdr and --sdr explicitly")
	default:
		return InputPair{}, ambiguousErrorf("could not find ISO 21496 gain map metadata in either input; specify --hdr and --sdr explicitly")
	}
	logger.WithFields(log.Fields{
		"hdr":    pair.HDR,
		"sdr":    pair.SDR,
		"reason": hdrDetectionReason,
	}).Info("auto-detected HDR input")
	return pair, nil
}

func isHDRCandidate(c Codec, path string) (bool, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return false, fmt.Errorf("read input %s: %w", path, err)
	}
	meta, err := ProbeGainMapMetadata(c, data)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	return meta != nil, nil
}

// MotionResolveRequest holds Motion Photo inputs as given on the command line.
type MotionResolveRequest struct {
	Positional []string
	Photo      string
	Video      string
	Logger     log.FieldLogger
}

// ResolveMotionInputs decides which input is the still photo and which is the video clip.
func ResolveMotionInputs(req MotionResolveRequest) (MotionPair, error) {
	logger := loggerOrStd(req.Logger)

	if req.Photo != "" || req.Video != "" {
		if len(req.Positional) > 0 {
			return MotionPair{}, inputErrorf("positional inputs cannot be combined with --photo/--video")
		}
		if missing := missingFlag("--photo", req.Photo, "--video", req.Video); missing != "" {
			return MotionPair{}, inputErrorf("missing %s: provide both --photo and --video together (or omit both to auto-detect)", missing)
		}
		return MotionPair{Photo: req.Photo, Video: req.Video}, nil
	}

	switch len(req.Positional) {
	case 0:
		return MotionPair{}, inputErrorf("provide --photo and --video, or a JPEG and a video as positional inputs")
	case 1:
		return resolveMotionSidecar(req.Positional[0], logger)
	case 2:
		return classifyMotionPair(req.Positional[0], req.Positional[1], logger)
	default:
		return MotionPair{}, inputErrorf("too many inputs (%d): provide --photo and --video", len(req.Positional))
	}
}

func resolveMotionSidecar(photo string, logger log.FieldLogger) (MotionPair, error) {
	kind, _, err := DetectMediaKind(photo)
	if err != nil {
		return MotionPair{}, err
	}
	if kind != MediaJPEG {
		return MotionPair{}, inputErrorf("single input %s is not a JPEG; provide --photo and --video", photo)
	}
	video, ok := sidecarVideo(photo)
	if !ok {
		return MotionPair{}, inputErrorf("no sidecar video found next to %s; provide --photo and --video", photo)
	}
	logger.WithFields(log.Fields{"photo": photo, "video": video}).Info("found sidecar video")
	return MotionPair{Photo: photo, Video: video}, nil
}

func classifyMotionPair(a, b string, logger log.FieldLogger) (MotionPair, error) {
	aKind, aReason, err := DetectMediaKind(a)
	if err != nil {
		return MotionPair{}, err
	}
	bKind, bReason, err := DetectMediaKind(b)
	if err != nil {
		return MotionPair{}, err
	}

	var pair MotionPair
	switch {
	case aKind == MediaJPEG && bKind == MediaVideo:
		pair = MotionPair{Photo: a, Video: b}
	case aKind == MediaVideo && bKind == MediaJPEG:
		pair = MotionPair{Photo: b, Video: a}
	case aKind == MediaJPEG && bKind == MediaJPEG:
		return MotionPair{}, ambiguousErrorf("both inputs look like JPEGs; specify --photo and --video explicitly")
	case aKind == MediaVideo && bKind == MediaVideo:
		return MotionPair{}, ambiguousErrorf("both inputs look like videos; specify --photo and --video explicitly")
	default:
		return MotionPair{}, ambiguousErrorf("could not classify inputs (%s: %s, %s: %s); specify --photo and --video explicitly",
			a, aKind, b, bKind)
	}
	logger.WithFields(log.Fields{
		"photo":        pair.Photo,
		"video":        pair.Video,
		"photo_reason": reasonFor(pair.Photo, a, aReason, bReason),
		"video_reason": reasonFor(pair.Video, a, aReason, bReason),
	}).Info("auto-detected motion photo inputs")
	return pair, nil
}

// missingFlag names the empty one of two paired flags.
func missingFlag(aName, a, bName, b string) string {
	switch {
	case a == "":
		return aName
	case b == "":
		return bName
	default:
		return ""
	}
}

func reasonFor(path, a, aReason, bReason string) string {
	if path == a {
		return aReason
	}
	return bReason
}

func dedupSorted(s []string) []string {
	out := s[:0]
	for _, v := range s {
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func loggerOrStd(l log.FieldLogger) log.FieldLogger {
	if l == nil {
		return log.StandardLogger()
	}
	return l
}
