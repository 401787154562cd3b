package probe

import (
	"io"

	"github.com/Eyevinn/mp4ff/mp4"

	"hls-segmenter/internal/media"
)

func probeMP4(r io.Reader, rr *recordingReader) (float64, error) {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return 0, parseFailure(rr, err)
	}
	if f.Moov == nil {
		return 0, media.ErrUnsupportedContainer
	}

	var video, audio float64
	var hasVideo, hasAudio bool
	for _, trak := range f.Moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Mdhd == nil {
			continue
		}
		mdhd := trak.Mdia.Mdhd
		if mdhd.Timescale == 0 {
			continue
		}
		d := float64(mdhd.Duration) / float64(mdhd.Timescale)
		switch trak.Mdia.Hdlr.HandlerType {
		case "vide":
			if !hasVideo {
				video, hasVideo = d, true
			}
		case "soun":
			if !hasAudio {
				audio, hasAudio = d, true
			}
		}
	}

	switch {
	case hasVideo:
		return video, nil
	case hasAudio:
		return audio, nil
	default:
		return 0, media.ErrNoTimedTrack
	}
}
