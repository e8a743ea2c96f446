package uhdrbake

const (
	// SDRWhiteNits is the ISO/TS 22028-5 SDR reference white.
	SDRWhiteNits = 203.0
	pqMaxNits    = 10000.0
	hlgMaxNits   = 1000.0
)

// DefaultTargetPeakNits is used when neither the caller nor the source gain map provide a peak.
const DefaultTargetPeakNits = 1600.0

const (
	defaultBaseQuality    = 95
	defaultGainMapQuality = 95
	defaultGainMapScale   = 1
	defaultGainMapGamma   = 1.0
)

// OriginalDocumentID scan window. Bump these if the XMP lives deeper in the file.
const (
	XMPScanLimitBytes   = 256 * 1024
	XMPChunkSize        = 8192
	XMPExtraTailChunk   = 4096
	XMPExtraTailReads   = 4
	originalDocIDMarker = "OriginalDocumentID"
)

// Fixed point iteration caps for Motion Photo assembly.
const (
	PlainMotionMaxIterations = 4
	MPFMotionMaxIterations   = 2
)

// GamutMatchTolerance is the per-coordinate xy tolerance used to match ICC primaries.
var GamutMatchTolerance float32 = 0.005

const (
	jpegrVersion = "1.0"
)
