package uhdrbake

import (
	"errors"
	"fmt"
)

// ProbeGainMapMetadata asks the codec for ISO 21496-1 gain map metadata.
// It returns nil metadata and nil error for JPEGs without a gain map; any other codec
// failure is returned.
func ProbeGainMapMetadata(c Codec, jpeg []byte) (*GainMapMetadata, error) {
	meta, err := c.Probe(&CompressedImage{
		Data:     jpeg,
		Gamut:    GamutUnspecified,
		Transfer: TransferUnspecified,
		Range:    RangeUnspecified,
	})
	if err == nil {
		return meta, nil
	}
	var ce *CodecError
	if errors.As(err, &ce) && ce.Code == CodeInvalidParam {
		return nil, nil
	}
	return nil, fmt.Errorf("probe gain map metadata: %w", err)
}
