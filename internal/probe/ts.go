package probe

import (
	"context"
	"errors"
	"io"

	"github.com/asticode/go-astits"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/mpegts"
)

const tsSyncByte = 0x47

// ptsSpan tracks the presentation range of one elementary stream.
// Frames may arrive out of presentation order, so the span keeps the
// two largest timestamps to estimate the duration of the last frame.
type ptsSpan struct {
	n      int
	min    int64
	max    int64
	second int64
}

func (s *ptsSpan) add(pts int64) {
	switch {
	case s.n == 0:
		s.min, s.max, s.second = pts, pts, pts
	case pts > s.max:
		s.second, s.max = s.max, pts
	case pts > s.second && pts < s.max:
		s.second = pts
	}
	if pts < s.min {
		s.min = pts
	}
	s.n++
}

func (s *ptsSpan) seconds() float64 {
	last := s.max - s.second
	return media.MPEGTSTimeBase.Seconds(s.max - s.min + last)
}

func probeTS(ctx context.Context, r io.Reader, rr *recordingReader) (float64, error) {
	dmx := astits.NewDemuxer(ctx, r)

	var (
		haveProgram bool
		videoPID    = -1
		audioPID    = -1
		spans       = make(map[uint16]*ptsSpan)
		unwrappers  = make(map[uint16]*mpegts.Unwrapper)
	)
	for {
		d, err := dmx.NextData()
		if errors.Is(err, astits.ErrNoMorePackets) {
			break
		}
		if err != nil {
			return 0, parseFailure(rr, err)
		}
		if d.PMT != nil && !haveProgram {
			haveProgram = true
			for _, es := range d.PMT.ElementaryStreams {
				switch mpegts.RoleOf(es.StreamType) {
				case media.RoleVideo:
					if videoPID < 0 {
						videoPID = int(es.ElementaryPID)
					}
				case media.RoleAudio:
					if audioPID < 0 {
						audioPID = int(es.ElementaryPID)
					}
				}
			}
		}
		if d.PES == nil || d.PES.Header == nil || d.PES.Header.OptionalHeader == nil || d.PES.Header.OptionalHeader.PTS == nil {
			continue
		}
		s, ok := spans[d.PID]
		if !ok {
			s = &ptsSpan{}
			spans[d.PID] = s
			unwrappers[d.PID] = &mpegts.Unwrapper{}
		}
		s.add(unwrappers[d.PID].Unwrap(d.PES.Header.OptionalHeader.PTS.Base))
	}
	if rr.err != nil {
		return 0, parseFailure(rr, rr.err)
	}
	if !haveProgram {
		return 0, parseFailure(rr, errors.New("no program map table"))
	}

	for _, pid := range []int{videoPID, audioPID} {
		if pid < 0 {
			continue
		}
		if s, ok := spans[uint16(pid)]; ok && s.n > 0 {
			return s.seconds(), nil
		}
	}
	return 0, media.ErrNoTimedTrack
}
