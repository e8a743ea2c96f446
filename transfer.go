package uhdrbake

import (
	"encoding/binary"
	"math"
)

// SMPTE ST 2084 constants.
const (
	pqM1 = 0.1593017578125
	pqM2 = 78.84375
	pqC1 = 0.8359375
	pqC2 = 18.8515625
	pqC3 = 18.6875
)

// ARIB STD-B67 constants.
const (
	hlgA = 0.17883277
	hlgB = 0.28466892
	hlgC = 0.55991073
)

// pqOetf maps linear light normalized to 10000 nits into a PQ signal.
func pqOetf(v float32) float32 {
	if v <= 0 {
		return 0
	}
	p := math.Pow(float64(v), pqM1)
	return float32(math.Pow((pqC1+pqC2*p)/(1+pqC3*p), pqM2))
}

// pqInvOetf maps a PQ signal back to linear light normalized to 10000 nits.
func pqInvOetf(e float32) float32 {
	if e <= 0 {
		return 0
	}
	p := math.Pow(float64(e), 1/pqM2)
	n := math.Max(p-pqC1, 0)
	return float32(math.Pow(n/(pqC2-pqC3*p), 1/pqM1))
}

// hlgOetf maps scene linear light in [0, 1] into an HLG signal.
func hlgOetf(v float32) float32 {
	if v <= 0 {
		return 0
	}
	if v <= 1.0/12 {
		return float32(math.Sqrt(3 * float64(v)))
	}
	return float32(hlgA*math.Log(12*float64(v)-hlgB) + hlgC)
}

// hlgInvOetf maps an HLG signal back to scene linear light.
func hlgInvOetf(e float32) float32 {
	if e <= 0 {
		return 0
	}
	if e <= 0.5 {
		return e * e / 3
	}
	return float32((math.Exp((float64(e)-hlgC)/hlgA) + hlgB) / 12)
}

// encodeTransfer converts linear light relative to SDR white into a signal in [0, 1].
func encodeTransfer(v float32, ct ColorTransfer) float32 {
	switch ct {
	case TransferPQ:
		return pqOetf(clamp01(v * SDRWhiteNits / pqMaxNits))
	case TransferHLG:
		return hlgOetf(clamp01(v * SDRWhiteNits / hlgMaxNits))
	case TransferSRGB:
		return srgbOetf(clamp01(v))
	default:
		return v
	}
}

// decodeTransfer is the inverse of encodeTransfer.
func decodeTransfer(e float32, ct ColorTransfer) float32 {
	switch ct {
	case TransferPQ:
		return pqInvOetf(e) * pqMaxNits / SDRWhiteNits
	case TransferHLG:
		return hlgInvOetf(e) * hlgMaxNits / SDRWhiteNits
	case TransferSRGB:
		return srgbInvOetf(e)
	default:
		return e
	}
}

// BytesPerPixel returns the storage size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	return 4
}

func (f PixelFormat) String() string {
	switch f {
	case PixelRGBA8888:
		return "rgba8888"
	case PixelRGBA1010102:
		return "rgba1010102"
	default:
		return "unknown"
	}
}

func quantize(v float32, maxCode uint32) uint32 {
	return uint32(clamp01(v)*float32(maxCode) + 0.5)
}

// packPixel stores a signal triplet with opaque alpha.
func packPixel(dst []byte, f PixelFormat, e rgb) {
	switch f {
	case PixelRGBA1010102:
		v := quantize(e.r, 1023) | quantize(e.g, 1023)<<10 | quantize(e.b, 1023)<<20 | 3<<30
		binary.LittleEndian.PutUint32(dst, v)
	default:
		dst[0] = byte(quantize(e.r, 255))
		dst[1] = byte(quantize(e.g, 255))
		dst[2] = byte(quantize(e.b, 255))
		dst[3] = 0xFF
	}
}

// unpackPixel is the inverse of packPixel, alpha is dropped.
func unpackPixel(src []byte, f PixelFormat) rgb {
	switch f {
	case PixelRGBA1010102:
		v := binary.LittleEndian.Uint32(src)
		return rgb{
			r: float32(v&0x3FF) / 1023,
			g: float32(v>>10&0x3FF) / 1023,
			b: float32(v>>20&0x3FF) / 1023,
		}
	default:
		return rgb{float32(src[0]) / 255, float32(src[1]) / 255, float32(src[2]) / 255}
	}
}
