package uhdrbake

import "fmt"

// Codec is the gain map codec used by Bake and the probe.
type Codec interface {
	// Probe parses container headers and returns gain map metadata without decoding pixels.
	// A *CodecError with CodeInvalidParam means the image carries no gain map.
	Probe(img *CompressedImage) (*GainMapMetadata, error)
	// DecodePacked reconstructs the HDR rendition in the requested packed format and transfer.
	DecodePacked(img *CompressedImage, format PixelFormat, ct ColorTransfer) (*PackedView, error)
	// Encode builds an UltraHDR JPEG from an HDR intent and a compressed SDR base.
	Encode(req *EncodeRequest) (*EncodedImage, error)
}

// CompressedImage is a JPEG with color hints.
type CompressedImage struct {
	Data     []byte
	Gamut    ColorGamut
	Transfer ColorTransfer
	Range    ColorRange
}

// PackedView is a packed raster.
// A borrowed view aliases a codec buffer reused by the next decode, use Owned to keep it.
type PackedView struct {
	Format   PixelFormat
	Width    int
	Height   int
	Stride   int // bytes per row
	Pix      []byte
	Gamut    ColorGamut
	Transfer ColorTransfer
	Range    ColorRange
	Borrowed bool
}

// Owned returns a copy that does not alias codec memory.
func (v *PackedView) Owned() *PackedView {
	c := *v
	c.Pix = append([]byte(nil), v.Pix...)
	c.Borrowed = false
	return &c
}

func (v *PackedView) pixel(x, y int) []byte {
	off := y*v.Stride + x*v.Format.BytesPerPixel()
	return v.Pix[off : off+v.Format.BytesPerPixel()]
}

// Preset trades encode speed for quality.
type Preset int

const (
	PresetBestQuality Preset = iota
	PresetRealtime
)

// EncodeRequest describes an UltraHDR encode.
type EncodeRequest struct {
	HDR *PackedView
	SDR *CompressedImage

	BaseQuality    int
	GainMapQuality int
	GainMapScale   int
	GainMapGamma   float32
	MultiChannel   bool
	TargetPeakNits float32
	Preset         Preset
}

// EncodedImage is a codec output stream.
type EncodedImage struct {
	Data  []byte
	Gamut ColorGamut
}

// ErrorCode classifies codec failures.
type ErrorCode int

const (
	CodeOK ErrorCode = iota
	CodeError
	CodeUnknownError
	CodeInvalidParam
	CodeMemError
	CodeInvalidOperation
	CodeUnsupportedFeature
	CodeListEnd
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeError:
		return "error"
	case CodeUnknownError:
		return "unknown error"
	case CodeInvalidParam:
		return "invalid parameter"
	case CodeMemError:
		return "memory error"
	case CodeInvalidOperation:
		return "invalid operation"
	case CodeUnsupportedFeature:
		return "unsupported feature"
	case CodeListEnd:
		return "list end"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// CodecError is returned by Codec implementations.
type CodecError struct {
	Code   ErrorCode
	Detail string
	Err    error
}

func (e *CodecError) Error() string {
	msg := "codec " + e.Code.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CodecError) Unwrap() error { return e.Err }

func codecErrorf(code ErrorCode, err error, format string, args ...any) *CodecError {
	return &CodecError{Code: code, Detail: fmt.Sprintf(format, args...), Err: err}
}
