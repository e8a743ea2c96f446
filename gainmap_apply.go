package uhdrbake

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// gainWeight is the fraction of the gain map applied for a display with the given
// headroom (peak / SDR white).
func gainWeight(meta *GainMapMetadata, displayBoost float32) float32 {
	capMin, capMax := log2f(meta.HDRCapacityMin), log2f(meta.HDRCapacityMax)
	if capMax <= capMin {
		return 1
	}
	return clamp01((log2f(displayBoost) - capMin) / (capMax - capMin))
}

// applyGain lifts a linear SDR pixel by normalized gain map values.
// For single channel metadata only gain.r is used.
func applyGain(e, gain rgb, meta *GainMapMetadata, weight float32, multiChannel bool) rgb {
	if !multiChannel {
		gain.g, gain.b = gain.r, gain.r
	}
	g := [3]float32{gain.r, gain.g, gain.b}
	in := [3]float32{e.r, e.g, e.b}
	var out [3]float32
	for c := 0; c < 3; c++ {
		v := g[c]
		if meta.Gamma[c] != 1 {
			v = float32(math.Pow(float64(v), float64(1/meta.Gamma[c])))
		}
		logBoost := log2f(meta.MinContentBoost[c])*(1-v) + log2f(meta.MaxContentBoost[c])*v
		out[c] = (in[c]+meta.OffsetSDR[c])*exp2f(logBoost*weight) - meta.OffsetHDR[c]
	}
	return rgb{out[0], out[1], out[2]}
}

// recoverHDR reconstructs linear HDR from a linear SDR image and its gain map.
// The gain map is upsampled to the SDR dimensions.
func recoverHDR(sdr *linearImage, gainmap image.Image, meta *GainMapMetadata, weight float32) *linearImage {
	b := gainmap.Bounds()
	if b.Dx() != sdr.w || b.Dy() != sdr.h {
		gainmap = resize.Resize(uint(sdr.w), uint(sdr.h), gainmap, resize.Bilinear)
		b = gainmap.Bounds()
	}
	_, gray := gainmap.(*image.Gray)
	multi := !gray

	out := newLinearImage(sdr.w, sdr.h, sdr.gamut)
	for y := 0; y < sdr.h; y++ {
		for x := 0; x < sdr.w; x++ {
			r, g, bl, _ := gainmap.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gain := rgb{float32(r) / 0xFFFF, float32(g) / 0xFFFF, float32(bl) / 0xFFFF}
			out.set(x, y, applyGain(sdr.at(x, y), gain, meta, weight, multi))
		}
	}
	return out
}
