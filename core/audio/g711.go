package audio

import (
	"fmt"

	"github.com/zaf/g711"
)

// ToLinear16 expands companded G.711 audio to 16 bit PCM. Linear16 input is
// returned unchanged.
func ToLinear16(info EncodingInfo, data []byte) (EncodingInfo, []byte, error) {
	switch info.Format {
	case EncodingLinear16:
		return info, data, nil
	case EncodingMulaw:
		info.Format = EncodingLinear16
		return info, g711.DecodeUlaw(data), nil
	case EncodingALaw:
		info.Format = EncodingLinear16
		return info, g711.DecodeAlaw(data), nil
	}
	return EncodingInfo{}, nil, fmt.Errorf("unsupported encoding %q", info.Format.Name())
}
