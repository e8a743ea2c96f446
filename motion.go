package uhdrbake

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// MotionOptions configures Motion Photo assembly.
type MotionOptions struct {
	PresentationTimestampUs uint64
	Logger                  log.FieldLogger
}

// MotionResult is an assembled Motion Photo.
type MotionResult struct {
	Data []byte

	// JPEGLen is the still image part: primary plus gain map.
	JPEGLen    int
	PrimaryLen int
	GainMapLen int
	VideoLen   int
	// VideoOffset is where the video starts in Data, it equals JPEGLen.
	VideoOffset int

	Iterations int
	Converged  bool
}

// AssembleMotionPhoto embeds video into photo as a Google Motion Photo.
// A gain map secondary image referenced by MPF is kept and its offsets are rebuilt.
func AssembleMotionPhoto(photo, video []byte, opts MotionOptions) (*MotionResult, error) {
	logger := loggerOrStd(opts.Logger)

	if len(video) == 0 {
		return nil, inputErrorf("video input is empty")
	}
	if !hasFtyp(video) {
		logger.Warn("video has no ftyp box, embedding anyway")
	}

	ranges, found, err := mpfImageRanges(photo)
	if err != nil {
		return nil, fmt.Errorf("photo: %w", err)
	}
	if found {
		return assembleMotionMPF(photo, ranges, video, opts, logger)
	}

	end, err := findJPEGEnd(photo, 0)
	if err != nil {
		return nil, fmt.Errorf("photo: %w", err)
	}
	if end < len(photo) {
		logger.WithField("trailing_bytes", len(photo)-end).Debug("dropping data after photo EOI")
	}
	doc, err := ParseJPEG(photo[:end])
	if err != nil {
		return nil, fmt.Errorf("photo: %w", err)
	}
	return assembleMotionPlain(doc, video, opts, logger)
}

func motionXMPSegment(existing []byte, meta MotionMeta, mode MergeMode) JPEGSegment {
	packet := BuildMotionXMP(existing, meta, mode)
	contents := make([]byte, 0, len(xmpSig)+len(packet))
	contents = append(contents, xmpSig...)
	contents = append(contents, packet...)
	return NewSegment(APP1, contents)
}

// assembleMotionPlain iterates until the primary length written to XMP matches
// the encoded length, the XMP packet size depends on the decimal digits of the lengths.
func assembleMotionPlain(doc *JPEGDocument, video []byte, opts MotionOptions, logger log.FieldLogger) (*MotionResult, error) {
	existing, _ := doc.Remove(APP1, xmpSig)

	assumed := doc.EncodedLen()
	res := &MotionResult{VideoLen: len(video)}

	var candidate *JPEGDocument
	for res.Iterations < PlainMotionMaxIterations {
		res.Iterations++

		meta := MotionMeta{
			PrimaryLen:              assumed,
			VideoLen:                len(video),
			PresentationTimestampUs: opts.PresentationTimestampUs,
		}
		candidate = doc.Clone()
		candidate.Insert(motionXMPSegment(existing, meta, MergeReplaceDirectory))

		n := candidate.EncodedLen()
		logger.WithFields(log.Fields{
			"iteration": res.Iterations,
			"assumed":   assumed,
			"encoded":   n,
		}).Debug("motion photo length pass")

		if n == assumed {
			res.Converged = true
			break
		}
		assumed = n
	}

	still, err := candidate.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}
	if !res.Converged {
		logger.WithFields(log.Fields{
			"iterations": res.Iterations,
			"encoded":    len(still),
		}).Warn("motion photo XMP length did not converge")
	}

	res.PrimaryLen = len(still)
	return finishMotion(res, still, video), nil
}

// assembleMotionMPF rebuilds an UltraHDR still: XMP lengths and MPF offsets both depend
// on the primary length, the MPF payload has a fixed size so one correction is enough.
func assembleMotionMPF(photo []byte, ranges []imageRange, video []byte, opts MotionOptions, logger log.FieldLogger) (*MotionResult, error) {
	primaryRange, gainmapRange := ranges[0], ranges[1]
	if gainmapRange[1] < len(photo) {
		logger.WithField("trailing_bytes", len(photo)-gainmapRange[1]).Debug("dropping data after gain map EOI")
	}
	gainmap := photo[gainmapRange[0]:gainmapRange[1]]

	doc, err := ParseJPEG(photo[primaryRange[0]:primaryRange[1]])
	if err != nil {
		return nil, fmt.Errorf("photo primary image: %w", err)
	}
	existing, _ := doc.Remove(APP1, xmpSig)

	loc, ok := locateMPF(doc)
	if !ok {
		return nil, malformedf("photo primary image lost its MPF segment")
	}
	if err := doc.Replace(loc.index, BuildMPF(0, 0, 0)); err != nil {
		return nil, err
	}

	guess := int(loc.info.PrimarySize())
	res := &MotionResult{GainMapLen: len(gainmap), VideoLen: len(video)}

	var (
		candidate *JPEGDocument
		mpfIdx    int
	)
	for res.Iterations < MPFMotionMaxIterations {
		res.Iterations++

		meta := MotionMeta{
			PrimaryLen:              guess,
			GainMapLen:              len(gainmap),
			VideoLen:                len(video),
			PresentationTimestampUs: opts.PresentationTimestampUs,
		}
		candidate = doc.Clone()
		mpfIdx = loc.index
		if at := candidate.Insert(motionXMPSegment(existing, meta, MergePreserveDirectory)); at <= mpfIdx {
			mpfIdx++
		}

		n := candidate.EncodedLen()
		logger.WithFields(log.Fields{
			"iteration": res.Iterations,
			"assumed":   guess,
			"encoded":   n,
		}).Debug("motion photo MPF length pass")

		if n == guess {
			res.Converged = true
			break
		}
		guess = n
	}

	if err := patchMPF(candidate, mpfIdx, len(gainmap)); err != nil {
		return nil, err
	}
	primary, err := candidate.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}

	still := make([]byte, 0, len(primary)+len(gainmap))
	still = append(still, primary...)
	still = append(still, gainmap...)

	info, err := ParseMPF(candidate.Segment(mpfIdx).Contents)
	if err != nil {
		return nil, err
	}
	if len(still)-len(gainmap) != int(info.PrimarySize()) {
		return nil, malformedf("mpf primary size %d does not match encoded primary %d",
			info.PrimarySize(), len(still)-len(gainmap))
	}
	if !res.Converged {
		logger.WithFields(log.Fields{
			"iterations": res.Iterations,
			"encoded":    len(primary),
		}).Warn("motion photo XMP length did not converge")
	}

	res.PrimaryLen = len(primary)
	return finishMotion(res, still, video), nil
}

func finishMotion(res *MotionResult, still, video []byte) *MotionResult {
	res.JPEGLen = len(still)
	res.VideoOffset = len(still)
	res.Data = make([]byte, 0, len(still)+len(video))
	res.Data = append(res.Data, still...)
	res.Data = append(res.Data, video...)
	return res
}

// AssembleMotionPhotoFile reads the pair, assembles a Motion Photo and writes it to out.
func AssembleMotionPhotoFile(pair MotionPair, out string, opts MotionOptions) (*MotionResult, error) {
	logger := loggerOrStd(opts.Logger)

	photo, err := os.ReadFile(filepath.Clean(pair.Photo))
	if err != nil {
		return nil, fmt.Errorf("read photo %q: %w", pair.Photo, err)
	}
	video, err := os.ReadFile(filepath.Clean(pair.Video))
	if err != nil {
		return nil, fmt.Errorf("read video %q: %w", pair.Video, err)
	}

	opts.Logger = logger
	res, err := AssembleMotionPhoto(photo, video, opts)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write %q: %w", out, err)
	}

	logger.WithFields(log.Fields{
		"out":          out,
		"jpeg_bytes":   res.JPEGLen,
		"video_bytes":  res.VideoLen,
		"video_offset": res.VideoOffset,
	}).Infof("Wrote Motion Photo %s (JPEG %d bytes, video %d bytes, offset %d)",
		out, res.JPEGLen, res.VideoLen, res.VideoOffset)
	return res, nil
}
