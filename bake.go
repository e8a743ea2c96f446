package uhdrbake

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// BakeOptions configures Bake.
type BakeOptions struct {
	BaseQuality    int
	GainMapQuality int
	GainMapScale   int
	MultiChannel   bool
	// TargetPeakNits overrides the display peak, zero means take it from the HDR input.
	TargetPeakNits float32

	Logger log.FieldLogger
}

// DefaultBakeOptions returns options with default qualities and full resolution gain map.
func DefaultBakeOptions() BakeOptions {
	return BakeOptions{
		BaseQuality:    defaultBaseQuality,
		GainMapQuality: defaultGainMapQuality,
		GainMapScale:   defaultGainMapScale,
	}
}

// Validate checks qualities, gain map scale and target peak.
func (o *BakeOptions) Validate() error {
	if o.BaseQuality < 1 || o.BaseQuality > 100 {
		return inputErrorf("base quality must be in 1..100, got %d", o.BaseQuality)
	}
	if o.GainMapQuality < 1 || o.GainMapQuality > 100 {
		return inputErrorf("gain map quality must be in 1..100, got %d", o.GainMapQuality)
	}
	if o.GainMapScale < 1 {
		return inputErrorf("gain map scale must be >= 1, got %d", o.GainMapScale)
	}
	if o.TargetPeakNits < 0 {
		return inputErrorf("target peak must be > 0 nits, got %g", o.TargetPeakNits)
	}
	return nil
}

// BakeResult is a baked UltraHDR JPEG.
type BakeResult struct {
	Data           []byte
	TargetPeakNits float32
	// SourceMeta is the gain map metadata of the HDR input, nil when it has none.
	SourceMeta *GainMapMetadata
	HDRGamut   ColorGamut
	SDRGamut   ColorGamut
}

// Bake makes an UltraHDR JPEG that shows sdr on SDR displays and the HDR rendition of hdr
// on HDR displays. The sdr JPEG becomes the base image as is.
func Bake(c Codec, hdr, sdr []byte, opts BakeOptions) (*BakeResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := loggerOrStd(opts.Logger)

	hdrHint, hdrHinted := DetectICCColorGamut(hdr)
	sdrHint, sdrHinted := DetectICCColorGamut(sdr)
	logger.WithFields(log.Fields{
		"hdr_icc": gamutHintLabel(hdrHint, hdrHinted),
		"sdr_icc": gamutHintLabel(sdrHint, sdrHinted),
	}).Info("ICC gamut hints")

	meta, err := ProbeGainMapMetadata(c, hdr)
	if err != nil {
		return nil, fmt.Errorf("HDR input: %w", err)
	}
	if meta == nil {
		logger.Debug("HDR input has no gain map metadata")
	}

	peak := opts.TargetPeakNits
	source := "override"
	if peak == 0 && meta != nil {
		peak = meta.TargetDisplayPeakNits()
		source = "gain map metadata"
	}
	if peak <= 0 {
		peak = DefaultTargetPeakNits
		source = "default"
	}
	logger.WithFields(log.Fields{
		"target_peak_nits": peak,
		"source":           source,
	}).Info("target display peak")

	borrowed, err := c.DecodePacked(&CompressedImage{
		Data:     hdr,
		Gamut:    hdrHint,
		Transfer: TransferUnspecified,
		Range:    RangeUnspecified,
	}, PixelRGBA1010102, TransferPQ)
	if err != nil {
		return nil, fmt.Errorf("decode HDR intent: %w", err)
	}
	// The next codec call may reuse the decode buffer.
	view := borrowed.Owned()

	hdrGamut := view.Gamut
	if hdrGamut == GamutUnspecified {
		hdrGamut = hdrHint
	}
	if hdrGamut == GamutUnspecified {
		hdrGamut = GamutDisplayP3
	}
	view.Gamut = hdrGamut

	sdrGamut := sdrHint
	if !sdrHinted {
		sdrGamut = GamutDisplayP3
	}
	if q, ok := EstimateJPEGQuality(sdr); ok && q < opts.BaseQuality {
		logger.WithFields(log.Fields{
			"estimated_quality": q,
			"base_quality":      opts.BaseQuality,
		}).Warn("SDR base is kept as is, its quality is below the requested base quality")
	}
	logger.WithFields(log.Fields{
		"hdr_gamut": GamutLabel(hdrGamut),
		"sdr_gamut": GamutLabel(sdrGamut),
		"width":     view.Width,
		"height":    view.Height,
	}).Info("decoded HDR intent")

	enc, err := c.Encode(&EncodeRequest{
		HDR: view,
		SDR: &CompressedImage{
			Data:     sdr,
			Gamut:    sdrGamut,
			Transfer: TransferSRGB,
			Range:    RangeFull,
		},
		BaseQuality:    opts.BaseQuality,
		GainMapQuality: opts.GainMapQuality,
		GainMapScale:   opts.GainMapScale,
		GainMapGamma:   defaultGainMapGamma,
		MultiChannel:   opts.MultiChannel,
		TargetPeakNits: peak,
		Preset:         PresetBestQuality,
	})
	if err != nil {
		return nil, fmt.Errorf("encode UltraHDR: %w", err)
	}

	return &BakeResult{
		Data:           enc.Data,
		TargetPeakNits: peak,
		SourceMeta:     meta,
		HDRGamut:       hdrGamut,
		SDRGamut:       sdrGamut,
	}, nil
}

func gamutHintLabel(g ColorGamut, ok bool) string {
	if !ok {
		return "none"
	}
	return GamutLabel(g)
}

// BakeFile reads the pair, bakes it and writes the result to out.
func BakeFile(c Codec, pair InputPair, out string, opts BakeOptions) (*BakeResult, error) {
	logger := loggerOrStd(opts.Logger)

	hdr, err := os.ReadFile(filepath.Clean(pair.HDR))
	if err != nil {
		return nil, fmt.Errorf("read HDR input %q: %w", pair.HDR, err)
	}
	sdr, err := os.ReadFile(filepath.Clean(pair.SDR))
	if err != nil {
		return nil, fmt.Errorf("read SDR input %q: %w", pair.SDR, err)
	}

	opts.Logger = logger
	res, err := Bake(c, hdr, sdr, opts)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write %q: %w", out, err)
	}
	logger.WithFields(log.Fields{
		"out":   out,
		"bytes": len(res.Data),
	}).Infof("Wrote UltraHDR JPEG %s", out)
	return res, nil
}
