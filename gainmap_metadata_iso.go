package uhdrbake

import (
	"encoding/binary"
	"errors"
	"math"
)

const (
	isoMultiChannelFlag = 1 << 7
	isoUseBaseColorFlag = 1 << 6
	isoBackwardFlag     = 1 << 2
	isoCommonDenomFlag  = 1 << 3
)

var errISOTruncated = errors.New("iso metadata truncated")

// gainmapFraction is the rational wire form of ISO 21496-1 metadata.
type gainmapFraction struct {
	MinN, MaxN, BaseOffsetN, AltOffsetN [3]int32
	MinD, MaxD, BaseOffsetD, AltOffsetD [3]uint32
	GammaN, GammaD                      [3]uint32

	BaseHeadroomN, BaseHeadroomD uint32
	AltHeadroomN, AltHeadroomD   uint32

	Backward     bool
	UseBaseColor bool
}

// DecodeISOGainMap parses an ISO 21496-1 payload (namespace prefix excluded).
func DecodeISOGainMap(data []byte) (*GainMapMetadata, error) {
	var frac gainmapFraction
	if err := frac.decode(data); err != nil {
		return nil, err
	}
	meta := frac.toFloat()
	return &meta, nil
}

// EncodeISOGainMap renders metadata in ISO 21496-1 binary form.
func EncodeISOGainMap(meta *GainMapMetadata) ([]byte, error) {
	if meta == nil {
		return nil, errors.New("gainmap metadata missing")
	}
	frac, err := fractionFromFloat(meta)
	if err != nil {
		return nil, err
	}
	return frac.encode(), nil
}

// buildISOPayload returns an APP2 payload: namespace, NUL, ISO block.
func buildISOPayload(meta *GainMapMetadata) ([]byte, error) {
	encoded, err := EncodeISOGainMap(meta)
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), isoSig...), encoded...), nil
}

// buildISOVersionOnly is the primary image ISO block, carrying versions only.
func buildISOVersionOnly() []byte {
	return append(append([]byte(nil), isoSig...), 0, 0, 0, 0)
}

type isoReader struct {
	in  []byte
	pos int
	err error
}

func (r *isoReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	b, ok := span(r.in, r.pos, n)
	if !ok {
		r.err = errISOTruncated
		return nil
	}
	r.pos += n
	return b
}

func (r *isoReader) u8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *isoReader) u16() uint16 {
	if b := r.next(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *isoReader) u32() uint32 {
	if b := r.next(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *isoReader) s32() int32 { return int32(r.u32()) }

func (m *gainmapFraction) decode(in []byte) error {
	r := &isoReader{in: in}
	if minVer := r.u16(); r.err == nil && minVer != 0 {
		return malformedf("unsupported iso min_version %d", minVer)
	}
	r.u16() // writer version

	flags := r.u8()
	channels := 1
	if flags&isoMultiChannelFlag != 0 {
		channels = 3
	}
	m.UseBaseColor = flags&isoUseBaseColorFlag != 0
	m.Backward = flags&isoBackwardFlag != 0

	if flags&isoCommonDenomFlag != 0 {
		common := r.u32()
		m.BaseHeadroomD, m.AltHeadroomD = common, common
		m.BaseHeadroomN = r.u32()
		m.AltHeadroomN = r.u32()
		for c := 0; c < channels; c++ {
			m.MinN[c], m.MinD[c] = r.s32(), common
			m.MaxN[c], m.MaxD[c] = r.s32(), common
			m.GammaN[c], m.GammaD[c] = r.u32(), common
			m.BaseOffsetN[c], m.BaseOffsetD[c] = r.s32(), common
			m.AltOffsetN[c], m.AltOffsetD[c] = r.s32(), common
		}
	} else {
		m.BaseHeadroomN, m.BaseHeadroomD = r.u32(), r.u32()
		m.AltHeadroomN, m.AltHeadroomD = r.u32(), r.u32()
		for c := 0; c < channels; c++ {
			m.MinN[c], m.MinD[c] = r.s32(), r.u32()
			m.MaxN[c], m.MaxD[c] = r.s32(), r.u32()
			m.GammaN[c], m.GammaD[c] = r.u32(), r.u32()
			m.BaseOffsetN[c], m.BaseOffsetD[c] = r.s32(), r.u32()
			m.AltOffsetN[c], m.AltOffsetD[c] = r.s32(), r.u32()
		}
	}
	if r.err != nil {
		return malformedf("%v", r.err)
	}
	if channels == 1 {
		m.replicateChannel0()
	}
	return m.validate(channels)
}

func (m *gainmapFraction) validate(channels int) error {
	if m.BaseHeadroomD == 0 || m.AltHeadroomD == 0 {
		return malformedf("iso headroom denominator is zero")
	}
	for c := 0; c < channels; c++ {
		if m.MinD[c] == 0 || m.MaxD[c] == 0 || m.GammaD[c] == 0 || m.BaseOffsetD[c] == 0 || m.AltOffsetD[c] == 0 {
			return malformedf("iso channel %d denominator is zero", c)
		}
	}
	return nil
}

func (m *gainmapFraction) replicateChannel0() {
	for c := 1; c < 3; c++ {
		m.MinN[c], m.MinD[c] = m.MinN[0], m.MinD[0]
		m.MaxN[c], m.MaxD[c] = m.MaxN[0], m.MaxD[0]
		m.GammaN[c], m.GammaD[c] = m.GammaN[0], m.GammaD[0]
		m.BaseOffsetN[c], m.BaseOffsetD[c] = m.BaseOffsetN[0], m.BaseOffsetD[0]
		m.AltOffsetN[c], m.AltOffsetD[c] = m.AltOffsetN[0], m.AltOffsetD[0]
	}
}

func (m *gainmapFraction) singleChannel() bool {
	for c := 1; c < 3; c++ {
		if m.MinN[c] != m.MinN[0] || m.MinD[c] != m.MinD[0] ||
			m.MaxN[c] != m.MaxN[0] || m.MaxD[c] != m.MaxD[0] ||
			m.GammaN[c] != m.GammaN[0] || m.GammaD[c] != m.GammaD[0] ||
			m.BaseOffsetN[c] != m.BaseOffsetN[0] || m.BaseOffsetD[c] != m.BaseOffsetD[0] ||
			m.AltOffsetN[c] != m.AltOffsetN[0] || m.AltOffsetD[c] != m.AltOffsetD[0] {
			return false
		}
	}
	return true
}

func (m *gainmapFraction) encode() []byte {
	channels := 3
	if m.singleChannel() {
		channels = 1
	}

	var flags uint8
	if channels == 3 {
		flags |= isoMultiChannelFlag
	}
	if m.UseBaseColor {
		flags |= isoUseBaseColorFlag
	}
	if m.Backward {
		flags |= isoBackwardFlag
	}

	denom := m.BaseHeadroomD
	common := m.AltHeadroomD == denom
	for c := 0; c < channels && common; c++ {
		common = m.MinD[c] == denom && m.MaxD[c] == denom && m.GammaD[c] == denom &&
			m.BaseOffsetD[c] == denom && m.AltOffsetD[c] == denom
	}
	if common {
		flags |= isoCommonDenomFlag
	}

	be := binary.BigEndian
	out := make([]byte, 0, 128)
	out = be.AppendUint16(out, 0) // min version
	out = be.AppendUint16(out, 0) // writer version
	out = append(out, flags)

	if common {
		out = be.AppendUint32(out, denom)
		out = be.AppendUint32(out, m.BaseHeadroomN)
		out = be.AppendUint32(out, m.AltHeadroomN)
		for c := 0; c < channels; c++ {
			out = be.AppendUint32(out, uint32(m.MinN[c]))
			out = be.AppendUint32(out, uint32(m.MaxN[c]))
			out = be.AppendUint32(out, m.GammaN[c])
			out = be.AppendUint32(out, uint32(m.BaseOffsetN[c]))
			out = be.AppendUint32(out, uint32(m.AltOffsetN[c]))
		}
		return out
	}

	out = be.AppendUint32(out, m.BaseHeadroomN)
	out = be.AppendUint32(out, m.BaseHeadroomD)
	out = be.AppendUint32(out, m.AltHeadroomN)
	out = be.AppendUint32(out, m.AltHeadroomD)
	for c := 0; c < channels; c++ {
		out = be.AppendUint32(out, uint32(m.MinN[c]))
		out = be.AppendUint32(out, m.MinD[c])
		out = be.AppendUint32(out, uint32(m.MaxN[c]))
		out = be.AppendUint32(out, m.MaxD[c])
		out = be.AppendUint32(out, m.GammaN[c])
		out = be.AppendUint32(out, m.GammaD[c])
		out = be.AppendUint32(out, uint32(m.BaseOffsetN[c]))
		out = be.AppendUint32(out, m.BaseOffsetD[c])
		out = be.AppendUint32(out, uint32(m.AltOffsetN[c]))
		out = be.AppendUint32(out, m.AltOffsetD[c])
	}
	return out
}

func (m *gainmapFraction) toFloat() GainMapMetadata {
	meta := GainMapMetadata{Version: jpegrVersion, UseBaseCG: m.UseBaseColor}
	for i := 0; i < 3; i++ {
		meta.MinContentBoost[i] = exp2f(float32(m.MinN[i]) / float32(m.MinD[i]))
		meta.MaxContentBoost[i] = exp2f(float32(m.MaxN[i]) / float32(m.MaxD[i]))
		meta.Gamma[i] = float32(m.GammaN[i]) / float32(m.GammaD[i])
		meta.OffsetSDR[i] = float32(m.BaseOffsetN[i]) / float32(m.BaseOffsetD[i])
		meta.OffsetHDR[i] = float32(m.AltOffsetN[i]) / float32(m.AltOffsetD[i])
	}
	meta.HDRCapacityMin = exp2f(float32(m.BaseHeadroomN) / float32(m.BaseHeadroomD))
	meta.HDRCapacityMax = exp2f(float32(m.AltHeadroomN) / float32(m.AltHeadroomD))
	return meta
}

func fractionFromFloat(from *GainMapMetadata) (gainmapFraction, error) {
	to := gainmapFraction{UseBaseColor: from.UseBaseCG}
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = errors.Join(
			signedFraction(log2f(from.MaxContentBoost[i]), &to.MaxN[i], &to.MaxD[i]),
			signedFraction(log2f(from.MinContentBoost[i]), &to.MinN[i], &to.MinD[i]),
			unsignedFraction(from.Gamma[i], &to.GammaN[i], &to.GammaD[i]),
			signedFraction(from.OffsetSDR[i], &to.BaseOffsetN[i], &to.BaseOffsetD[i]),
			signedFraction(from.OffsetHDR[i], &to.AltOffsetN[i], &to.AltOffsetD[i]),
		)
	}
	if err == nil {
		err = errors.Join(
			unsignedFraction(log2f(from.HDRCapacityMin), &to.BaseHeadroomN, &to.BaseHeadroomD),
			unsignedFraction(log2f(from.HDRCapacityMax), &to.AltHeadroomN, &to.AltHeadroomD),
		)
	}
	return to, err
}

func signedFraction(v float32, numerator *int32, denominator *uint32) error {
	num, den, ok := continuedFraction(math.Abs(float64(v)), math.MaxInt32)
	if !ok {
		return errors.New("failed to encode signed fraction")
	}
	n := int32(num)
	if v < 0 {
		n = -n
	}
	*numerator, *denominator = n, den
	return nil
}

func unsignedFraction(v float32, numerator, denominator *uint32) error {
	num, den, ok := continuedFraction(float64(v), math.MaxUint32)
	if !ok {
		return errors.New("failed to encode unsigned fraction")
	}
	*numerator, *denominator = num, den
	return nil
}

// continuedFraction approximates v with the best rational whose numerator fits maxNumerator.
func continuedFraction(v float64, maxNumerator uint32) (uint32, uint32, bool) {
	if math.IsNaN(v) || v < 0 || v > float64(maxNumerator) {
		return 0, 0, false
	}
	maxD := uint64(math.MaxUint32)
	if v > 1 {
		maxD = uint64(math.Floor(float64(maxNumerator) / v))
	}

	den, prevD := uint32(1), uint32(0)
	rest := v - math.Floor(v)
	for iter := 0; iter < 39; iter++ {
		numF := float64(den) * v
		if numF > float64(maxNumerator) {
			return 0, 0, false
		}
		num := uint32(math.Round(numF))
		if numF == float64(num) || rest == 0 {
			return num, den, true
		}
		rest = 1 / rest
		newD := float64(prevD) + math.Floor(rest)*float64(den)
		if newD > float64(maxD) {
			return num, den, true
		}
		prevD, den = den, uint32(newD)
		rest -= math.Floor(rest)
	}
	return uint32(math.Round(float64(den) * v)), den, true
}
