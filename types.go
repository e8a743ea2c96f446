package uhdrbake

// ColorGamut identifies a supported color gamut.
type ColorGamut int

const (
	GamutUnspecified ColorGamut = iota
	GamutBT709
	GamutDisplayP3
	GamutBT2100
)

// ColorTransfer identifies a supported transfer function.
type ColorTransfer int

const (
	TransferUnspecified ColorTransfer = iota
	TransferLinear
	TransferHLG
	TransferPQ
	TransferSRGB
)

// ColorRange identifies the signal range of pixel data.
type ColorRange int

const (
	RangeUnspecified ColorRange = iota
	RangeLimited
	RangeFull
)

// PixelFormat identifies a packed pixel layout.
type PixelFormat int

const (
	// PixelRGBA8888 is 8 bits per channel, R first.
	PixelRGBA8888 PixelFormat = iota
	// PixelRGBA1010102 packs 10-bit R, G, B and 2-bit A into a little-endian uint32,
	// R in the low bits.
	PixelRGBA1010102
)

// GainMapMetadata corresponds to the float form of ISO 21496-1 gain map metadata.
type GainMapMetadata struct {
	Version         string
	MaxContentBoost [3]float32
	MinContentBoost [3]float32
	Gamma           [3]float32
	OffsetSDR       [3]float32
	OffsetHDR       [3]float32
	HDRCapacityMin  float32
	HDRCapacityMax  float32
	UseBaseCG       bool
}

// TargetDisplayPeakNits is the display peak the gain map was authored for.
func (m *GainMapMetadata) TargetDisplayPeakNits() float32 {
	return m.HDRCapacityMax * SDRWhiteNits
}

// InputPair is a resolved HDR/SDR bake input.
type InputPair struct {
	HDR string
	SDR string
}

// MotionPair is a resolved still photo / video clip input.
type MotionPair struct {
	Photo string
	Video string
}

// MotionMeta drives Motion Photo XMP and MPF generation.
// It is recomputed whenever a re-encode changes segment lengths.
type MotionMeta struct {
	PrimaryLen int
	// GainMapLen is zero when the still has no gain map.
	GainMapLen              int
	VideoLen                int
	PresentationTimestampUs uint64
}
