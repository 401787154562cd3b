package mpegts

import (
	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/asticode/go-astits"
)

// ContainsKeyframe reports whether an Annex-B video payload carries a
// random access picture: an IDR slice for H.264, an IRAP picture for H.265.
// Other codecs are never reported as keyframes here.
func ContainsKeyframe(st astits.StreamType, payload []byte) bool {
	switch st {
	case astits.StreamTypeH264Video:
		for _, nalu := range avc.ExtractNalusFromByteStream(payload) {
			if len(nalu) > 0 && avc.GetNaluType(nalu[0]) == avc.NALU_IDR {
				return true
			}
		}
	case astits.StreamTypeH265Video:
		for _, nalu := range avc.ExtractNalusFromByteStream(payload) {
			if len(nalu) == 0 {
				continue
			}
			// BLA_W_LP (16) through CRA (21)
			if t := hevc.GetNaluType(nalu[0]); t >= 16 && t <= 21 {
				return true
			}
		}
	}
	return false
}
