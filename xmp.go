package uhdrbake

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
)

// hdrgmField matches both attribute (hdrgm:X="v") and element (<hdrgm:X>v<) forms.
func hdrgmField(name string) *regexp.Regexp {
	return regexp.MustCompile(`hdrgm:` + name + `(?:="([^"]+)"|>([^<]+)<)`)
}

var (
	reHdrgmVersion   = hdrgmField("Version")
	reHdrgmMin       = hdrgmField("GainMapMin")
	reHdrgmMax       = hdrgmField("GainMapMax")
	reHdrgmGamma     = hdrgmField("Gamma")
	reHdrgmOffsetSDR = hdrgmField("OffsetSDR")
	reHdrgmOffsetHDR = hdrgmField("OffsetHDR")
	reHdrgmCapMin    = hdrgmField("HDRCapacityMin")
	reHdrgmCapMax    = hdrgmField("HDRCapacityMax")
	reHdrgmBaseIsHDR = hdrgmField("BaseRenditionIsHDR")
)

func hdrgmString(xmp []byte, re *regexp.Regexp) (string, bool) {
	m := re.FindSubmatch(xmp)
	if m == nil {
		return "", false
	}
	if len(m[1]) > 0 {
		return string(m[1]), true
	}
	return string(bytes.TrimSpace(m[2])), true
}

// parseHdrgmXMP reads Adobe hdrgm gain map metadata from an APP1 XMP payload
// (namespace prefix included). Values are single channel and log2 encoded where the
// format says so.
func parseHdrgmXMP(app1 []byte) (*GainMapMetadata, error) {
	if !bytes.HasPrefix(app1, xmpSig) {
		return nil, malformedf("xmp namespace mismatch")
	}
	xmp := app1[len(xmpSig):]

	meta := &GainMapMetadata{
		Version:        jpegrVersion,
		UseBaseCG:      true,
		HDRCapacityMin: 1,
		HDRCapacityMax: 1,
	}
	minBoost, maxBoost, gamma := float32(1), float32(1), float32(1)
	offSDR, offHDR := float32(1.0/64), float32(1.0/64)

	v, ok := hdrgmString(xmp, reHdrgmVersion)
	if !ok {
		return nil, malformedf("xmp missing hdrgm:Version")
	}
	meta.Version = v

	fields := []struct {
		re       *regexp.Regexp
		dst      *float32
		log2     bool
		required bool
	}{
		{re: reHdrgmMax, dst: &maxBoost, log2: true, required: true},
		{re: reHdrgmCapMax, dst: &meta.HDRCapacityMax, log2: true, required: true},
		{re: reHdrgmMin, dst: &minBoost, log2: true},
		{re: reHdrgmGamma, dst: &gamma},
		{re: reHdrgmOffsetSDR, dst: &offSDR},
		{re: reHdrgmOffsetHDR, dst: &offHDR},
		{re: reHdrgmCapMin, dst: &meta.HDRCapacityMin, log2: true},
	}
	for _, f := range fields {
		s, ok := hdrgmString(xmp, f.re)
		if !ok {
			if f.required {
				return nil, malformedf("xmp missing %s", f.re.String())
			}
			continue
		}
		parsed, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("xmp value %q: %w", s, err)
		}
		*f.dst = float32(parsed)
		if f.log2 {
			*f.dst = exp2f(*f.dst)
		}
	}
	if s, ok := hdrgmString(xmp, reHdrgmBaseIsHDR); ok && s == "True" {
		return nil, fmt.Errorf("hdrgm base rendition is HDR: %w", ErrMalformed)
	}

	for i := 0; i < 3; i++ {
		meta.MinContentBoost[i] = minBoost
		meta.MaxContentBoost[i] = maxBoost
		meta.Gamma[i] = gamma
		meta.OffsetSDR[i] = offSDR
		meta.OffsetHDR[i] = offHDR
	}
	return meta, nil
}
