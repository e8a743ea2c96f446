package uhdrbake

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

const (
	kSdrOffset = 1e-7
	kHdrOffset = 1e-7

	minGainLog2 = -14.3
	maxGainLog2 = 15.6
)

// linearImage holds linear light RGB relative to SDR white (1.0 = 203 nits).
type linearImage struct {
	w, h  int
	gamut ColorGamut
	pix   []rgb
}

func newLinearImage(w, h int, g ColorGamut) *linearImage {
	return &linearImage{w: w, h: h, gamut: g, pix: make([]rgb, w*h)}
}

func (im *linearImage) at(x, y int) rgb { return im.pix[y*im.w+x] }

func (im *linearImage) set(x, y int, v rgb) { im.pix[y*im.w+x] = v }

// gainMapOptions controls gain map generation.
type gainMapOptions struct {
	scale        int
	gamma        float32
	multiChannel bool
	// peakBoost is the ratio of the target display peak to SDR white, it caps the gain.
	peakBoost float32
	// bestQuality selects CatmullRom downscaling instead of nearest neighbor.
	bestQuality bool
}

// generateGainMap computes a gain map that lifts sdr into hdr. Both images must share
// dimensions and gamut.
func generateGainMap(sdr, hdr *linearImage, opt gainMapOptions) (image.Image, *GainMapMetadata, error) {
	if sdr == nil || hdr == nil {
		return nil, nil, errors.New("missing SDR or HDR input")
	}
	if sdr.w != hdr.w || sdr.h != hdr.h {
		return nil, nil, fmt.Errorf("SDR and HDR dimensions must match: %dx%d vs %dx%d", sdr.w, sdr.h, hdr.w, hdr.h)
	}
	if opt.scale <= 0 {
		opt.scale = defaultGainMapScale
	}
	if opt.gamma <= 0 {
		opt.gamma = defaultGainMapGamma
	}
	mapW, mapH := sdr.w/opt.scale, sdr.h/opt.scale
	if mapW <= 0 || mapH <= 0 {
		return nil, nil, errors.New("gainmap scale too large")
	}

	channels := 1
	if opt.multiChannel {
		channels = 3
	}
	peakLog2 := float32(maxGainLog2)
	if opt.peakBoost > 1 {
		peakLog2 = log2f(opt.peakBoost)
	}

	gains := make([]float32, sdr.w*sdr.h*channels)
	gainMin := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	gainMax := [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for i := range sdr.pix {
		s := sdr.pix[i].clampMax(math.MaxFloat32)
		h := hdr.pix[i].clampMax(math.MaxFloat32)
		var g [3]float32
		if opt.multiChannel {
			g = [3]float32{computeGain(s.r, h.r), computeGain(s.g, h.g), computeGain(s.b, h.b)}
		} else {
			g[0] = computeGain(max3(s.r, s.g, s.b), max3(h.r, h.g, h.b))
		}
		for c := 0; c < channels; c++ {
			gains[i*channels+c] = g[c]
			gainMin[c] = min(gainMin[c], g[c])
			gainMax[c] = max(gainMax[c], g[c])
		}
	}

	for c := 0; c < channels; c++ {
		gainMin[c] = clampRange(gainMin[c], minGainLog2, min(0, peakLog2))
		gainMax[c] = clampRange(gainMax[c], minGainLog2, peakLog2)
		if gainMax[c]-gainMin[c] < 1e-6 {
			gainMax[c] = gainMin[c] + 0.1
		}
	}

	full := quantizeGains(gains, sdr.w, sdr.h, channels, gainMin, gainMax, opt.gamma)
	gainmap := downscaleGainMap(full, mapW, mapH, opt.bestQuality)

	meta := &GainMapMetadata{
		Version:        jpegrVersion,
		UseBaseCG:      true,
		HDRCapacityMin: 1,
		HDRCapacityMax: exp2f(peakLog2),
	}
	for i := 0; i < 3; i++ {
		c := i
		if channels == 1 {
			c = 0
		}
		meta.MinContentBoost[i] = exp2f(gainMin[c])
		meta.MaxContentBoost[i] = exp2f(gainMax[c])
		meta.Gamma[i] = opt.gamma
		meta.OffsetSDR[i] = kSdrOffset
		meta.OffsetHDR[i] = kHdrOffset
	}
	return gainmap, meta, nil
}

func quantizeGains(gains []float32, w, h, channels int, gainMin, gainMax [3]float32, gamma float32) image.Image {
	if channels == 1 {
		out := image.NewGray(image.Rect(0, 0, w, h))
		for i, g := range gains {
			out.Pix[i] = affineMapGain(g, gainMin[0], gainMax[0], gamma)
		}
		return out
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := (y*w + x) * 3
			out.SetRGBA(x, y, color.RGBA{
				R: affineMapGain(gains[idx], gainMin[0], gainMax[0], gamma),
				G: affineMapGain(gains[idx+1], gainMin[1], gainMax[1], gamma),
				B: affineMapGain(gains[idx+2], gainMin[2], gainMax[2], gamma),
				A: 0xFF,
			})
		}
	}
	return out
}

func downscaleGainMap(src image.Image, w, h int, bestQuality bool) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	rect := image.Rect(0, 0, w, h)
	var dst draw.Image
	if _, ok := src.(*image.Gray); ok {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	var scaler draw.Scaler = draw.NearestNeighbor
	if bestQuality {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, rect, src, b, draw.Src, nil)
	return dst
}

func computeGain(sdr, hdr float32) float32 {
	gain := log2f((hdr*SDRWhiteNits + kHdrOffset) / (sdr*SDRWhiteNits + kSdrOffset))
	if sdr < 2.0/255.0 && gain > 2.3 {
		gain = 2.3
	}
	return gain
}

func affineMapGain(gainLog2, minLog2, maxLog2, gamma float32) uint8 {
	denom := maxLog2 - minLog2
	if denom == 0 {
		denom = 1
	}
	mapped := clamp01((gainLog2 - minLog2) / denom)
	if gamma != 1 {
		mapped = float32(math.Pow(float64(mapped), float64(gamma)))
	}
	return uint8(clampRange(mapped*255, 0, 255) + 0.5)
}
