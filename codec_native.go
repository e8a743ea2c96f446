package uhdrbake

import (
	"bytes"
	"errors"
	"image"

	"github.com/gen2brain/jpegli"
	log "github.com/sirupsen/logrus"
)

// NativeCodec is a pure Go Codec built on jpegli.
// It keeps one decode buffer and is not safe for concurrent use.
type NativeCodec struct {
	Logger log.FieldLogger

	buf []byte
}

var _ Codec = (*NativeCodec)(nil)

// NewNativeCodec creates a codec, nil logger means the standard logger.
func NewNativeCodec(logger log.FieldLogger) *NativeCodec {
	return &NativeCodec{Logger: logger}
}

func (c *NativeCodec) logger() log.FieldLogger {
	if c.Logger == nil {
		return log.StandardLogger()
	}
	return c.Logger
}

// Probe implements Codec.
func (c *NativeCodec) Probe(img *CompressedImage) (*GainMapMetadata, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, codecErrorf(CodeInvalidParam, nil, "empty image")
	}
	ok, err := IsUltraHDR(bytes.NewReader(img.Data))
	if err != nil {
		return nil, codecErrorf(CodeError, err, "scan container")
	}
	if !ok {
		return nil, codecErrorf(CodeInvalidParam, nil, "no gain map image")
	}
	split, err := c.split(img.Data)
	if err != nil {
		return nil, err
	}
	return split.Meta, nil
}

func (c *NativeCodec) split(data []byte) (*SplitResult, error) {
	split, err := Split(data)
	switch {
	case err == nil:
		return split, nil
	case errors.Is(err, errNoGainmapImage), errors.Is(err, errNoGainmapMeta), errors.Is(err, errNoJPEG):
		return nil, codecErrorf(CodeInvalidParam, err, "not a gain map JPEG")
	default:
		return nil, codecErrorf(CodeError, err, "split container")
	}
}

// DecodePacked implements Codec. The returned view is borrowed.
func (c *NativeCodec) DecodePacked(img *CompressedImage, format PixelFormat, ct ColorTransfer) (*PackedView, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, codecErrorf(CodeInvalidParam, nil, "empty image")
	}
	if ct == TransferUnspecified {
		return nil, codecErrorf(CodeInvalidParam, nil, "output transfer unspecified")
	}
	split, err := c.split(img.Data)
	if err != nil {
		return nil, err
	}
	base, err := jpegli.Decode(bytes.NewReader(split.PrimaryJPEG))
	if err != nil {
		return nil, codecErrorf(CodeError, err, "decode base image")
	}
	gainmap, err := jpegli.Decode(bytes.NewReader(split.GainmapJPEG))
	if err != nil {
		return nil, codecErrorf(CodeError, err, "decode gain map")
	}

	gamut := img.Gamut
	if gamut == GamutUnspecified {
		if g, ok := DetectICCColorGamut(split.PrimaryJPEG); ok {
			gamut = g
		} else {
			gamut = GamutBT709
		}
	}

	sdr := linearFromImage(base, gamut)
	hdr := recoverHDR(sdr, gainmap, split.Meta, gainWeight(split.Meta, split.Meta.HDRCapacityMax))

	bpp := format.BytesPerPixel()
	stride := hdr.w * bpp
	size := stride * hdr.h
	if cap(c.buf) < size {
		c.buf = make([]byte, size)
	}
	pix := c.buf[:size]
	for y := 0; y < hdr.h; y++ {
		for x := 0; x < hdr.w; x++ {
			v := hdr.at(x, y)
			off := y*stride + x*bpp
			packPixel(pix[off:off+bpp], format, rgb{
				encodeTransfer(v.r, ct), encodeTransfer(v.g, ct), encodeTransfer(v.b, ct),
			})
		}
	}

	c.logger().WithFields(log.Fields{
		"width":  hdr.w,
		"height": hdr.h,
		"format": format.String(),
		"gamut":  GamutLabel(gamut),
	}).Debug("decoded HDR intent")

	return &PackedView{
		Format:   format,
		Width:    hdr.w,
		Height:   hdr.h,
		Stride:   stride,
		Pix:      pix,
		Gamut:    gamut,
		Transfer: ct,
		Range:    RangeFull,
		Borrowed: true,
	}, nil
}

// Encode implements Codec. The SDR base JPEG scan data is reused, so BaseQuality does not
// affect the output.
func (c *NativeCodec) Encode(req *EncodeRequest) (*EncodedImage, error) {
	if req == nil || req.HDR == nil || req.SDR == nil || len(req.SDR.Data) == 0 {
		return nil, codecErrorf(CodeInvalidParam, nil, "HDR intent and SDR base are required")
	}
	switch req.HDR.Transfer {
	case TransferPQ, TransferHLG, TransferLinear:
	default:
		return nil, codecErrorf(CodeUnsupportedFeature, nil, "HDR transfer %d", req.HDR.Transfer)
	}
	if req.GainMapQuality < 1 || req.GainMapQuality > 100 {
		return nil, codecErrorf(CodeInvalidParam, nil, "gain map quality %d", req.GainMapQuality)
	}

	base, err := jpegli.Decode(bytes.NewReader(req.SDR.Data))
	if err != nil {
		return nil, codecErrorf(CodeError, err, "decode SDR base")
	}
	b := base.Bounds()
	if b.Dx() != req.HDR.Width || b.Dy() != req.HDR.Height {
		return nil, codecErrorf(CodeInvalidParam, nil, "dimension mismatch: SDR %dx%d, HDR %dx%d",
			b.Dx(), b.Dy(), req.HDR.Width, req.HDR.Height)
	}

	sdrGamut := req.SDR.Gamut
	if sdrGamut == GamutUnspecified {
		sdrGamut = GamutBT709
	}
	peak := req.TargetPeakNits
	if peak <= 0 {
		peak = DefaultTargetPeakNits
	}
	peakBoost := peak / SDRWhiteNits

	hdr := linearFromPacked(req.HDR, sdrGamut, peakBoost)
	sdr := linearFromImage(base, sdrGamut)

	gainmap, meta, err := generateGainMap(sdr, hdr, gainMapOptions{
		scale:        req.GainMapScale,
		gamma:        req.GainMapGamma,
		multiChannel: req.MultiChannel,
		peakBoost:    peakBoost,
		bestQuality:  req.Preset == PresetBestQuality,
	})
	if err != nil {
		return nil, codecErrorf(CodeInvalidParam, err, "generate gain map")
	}

	var gm bytes.Buffer
	if err := jpegli.Encode(&gm, gainmap, &jpegli.EncodingOptions{Quality: req.GainMapQuality}); err != nil {
		return nil, codecErrorf(CodeError, err, "encode gain map")
	}

	out, err := assembleContainer(req.SDR.Data, gm.Bytes(), meta)
	if err != nil {
		return nil, codecErrorf(CodeError, err, "assemble container")
	}

	c.logger().WithFields(log.Fields{
		"gainmap_bytes": gm.Len(),
		"gainmap_size":  gainmap.Bounds().Size().String(),
		"max_boost":     meta.MaxContentBoost[0],
		"base_quality":  req.BaseQuality,
	}).Debug("encoded gain map, base image kept as is")

	return &EncodedImage{Data: out, Gamut: sdrGamut}, nil
}

// linearFromImage converts an sRGB-encoded raster to linear light.
func linearFromImage(img image.Image, g ColorGamut) *linearImage {
	b := img.Bounds()
	out := newLinearImage(b.Dx(), b.Dy(), g)
	for y := 0; y < out.h; y++ {
		for x := 0; x < out.w; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.set(x, y, rgb{
				srgbInvOetf(float32(r) / 0xFFFF),
				srgbInvOetf(float32(gr) / 0xFFFF),
				srgbInvOetf(float32(bl) / 0xFFFF),
			})
		}
	}
	return out
}

// linearFromPacked decodes a packed HDR view into linear light in gamut g, clamped to peakBoost.
func linearFromPacked(v *PackedView, g ColorGamut, peakBoost float32) *linearImage {
	out := newLinearImage(v.Width, v.Height, g)
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			e := unpackPixel(v.pixel(x, y), v.Format)
			lin := rgb{
				decodeTransfer(e.r, v.Transfer),
				decodeTransfer(e.g, v.Transfer),
				decodeTransfer(e.b, v.Transfer),
			}
			out.set(x, y, convertLinearGamut(lin, v.Gamut, g).clampMax(peakBoost))
		}
	}
	return out
}
