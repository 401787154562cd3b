// Package mpegts adapts MPEG transport streams to the segmenter: a packet
// source over a demultiplexer and a sink writing one transport stream file
// per segment.
package mpegts

import (
	"context"
	"errors"
	"io"

	"github.com/asticode/go-astits"

	"hls-segmenter/internal/media"
)

const ptsWrap = int64(1) << 33

// RoleOf classifies a PMT stream type.
func RoleOf(st astits.StreamType) media.Role {
	switch st {
	case astits.StreamTypeH264Video,
		astits.StreamTypeH265Video,
		astits.StreamTypeMPEG1Video,
		astits.StreamTypeMPEG2Video,
		astits.StreamTypeMPEG4Video:
		return media.RoleVideo
	case astits.StreamTypeAACAudio,
		astits.StreamTypeAACLATMAudio,
		astits.StreamTypeMPEG1Audio,
		astits.StreamTypeMPEG2HalvedSampleRateAudio,
		astits.StreamTypeAC3Audio,
		astits.StreamTypeEAC3Audio:
		return media.RoleAudio
	default:
		return media.RoleOther
	}
}

// Unwrapper extends 33-bit PES timestamps of one elementary stream past
// the wrap point. The zero value is ready to use.
type Unwrapper struct {
	init   bool
	last   int64
	offset int64
}

// Unwrap returns ts on a continuous timeline.
func (u *Unwrapper) Unwrap(ts int64) int64 {
	v := ts + u.offset
	if u.init && u.last-v > ptsWrap/2 {
		u.offset += ptsWrap
		v += ptsWrap
	}
	u.init = true
	u.last = v
	return v
}

type trackState struct {
	track media.Track
	pts   Unwrapper
	dts   Unwrapper
}

// Source reads packets from a transport stream. Tracks are taken from the
// first program map table.
type Source struct {
	dmx     *astits.Demuxer
	tracks  []media.Track
	states  map[uint16]*trackState
	skipped uint64
}

// NewSource reads r up to the first PMT. It fails with a source error if
// the stream ends first or cannot be parsed.
func NewSource(ctx context.Context, r io.Reader) (*Source, error) {
	s := &Source{
		dmx:    astits.NewDemuxer(ctx, r),
		states: make(map[uint16]*trackState),
	}
	for {
		d, err := s.dmx.NextData()
		if errors.Is(err, astits.ErrNoMorePackets) {
			return nil, media.Errorf(media.KindSource, "open transport stream", "", errors.New("no program map table found"))
		}
		if err != nil {
			return nil, media.Errorf(media.KindSource, "open transport stream", "", err)
		}
		if d.PMT != nil {
			s.setTracks(d.PMT)
			return s, nil
		}
	}
}

func (s *Source) setTracks(pmt *astits.PMTData) {
	for _, es := range pmt.ElementaryStreams {
		t := media.Track{
			PID:        es.ElementaryPID,
			StreamType: uint8(es.StreamType),
			Role:       RoleOf(es.StreamType),
			TimeBase:   media.MPEGTSTimeBase,
		}
		s.tracks = append(s.tracks, t)
		s.states[t.PID] = &trackState{track: t}
	}
}

// Tracks returns every elementary stream of the program, in PMT order.
func (s *Source) Tracks() []media.Track {
	out := make([]media.Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Skipped counts PES packets without a presentation timestamp.
func (s *Source) Skipped() uint64 { return s.skipped }

// ReadPacket returns the next PES packet as a media packet, or io.EOF.
// Packets on PIDs missing from the PMT come back with RoleOther.
func (s *Source) ReadPacket() (*media.Packet, error) {
	for {
		d, err := s.dmx.NextData()
		if errors.Is(err, astits.ErrNoMorePackets) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, media.Errorf(media.KindSource, "demux", "", err)
		}
		if d.PES == nil {
			continue
		}
		pkt, ok := s.packet(d)
		if !ok {
			s.skipped++
			continue
		}
		return pkt, nil
	}
}

func (s *Source) packet(d *astits.DemuxerData) (*media.Packet, bool) {
	h := d.PES.Header
	if h == nil || h.OptionalHeader == nil || h.OptionalHeader.PTS == nil {
		return nil, false
	}

	st, known := s.states[d.PID]
	if !known {
		st = &trackState{track: media.Track{PID: d.PID, Role: media.RoleOther, TimeBase: media.MPEGTSTimeBase}}
		s.states[d.PID] = st
	}

	pkt := &media.Packet{
		PID:      d.PID,
		StreamID: h.StreamID,
		Role:     st.track.Role,
		PTS:      st.pts.Unwrap(h.OptionalHeader.PTS.Base),
		TimeBase: media.MPEGTSTimeBase,
		Payload:  d.PES.Data,
	}
	if h.OptionalHeader.DTS != nil {
		pkt.DTS = st.dts.Unwrap(h.OptionalHeader.DTS.Base)
		pkt.HasDTS = true
	}

	if d.FirstPacket != nil && d.FirstPacket.AdaptationField != nil && d.FirstPacket.AdaptationField.RandomAccessIndicator {
		pkt.Keyframe = true
	} else if st.track.Role == media.RoleVideo {
		pkt.Keyframe = ContainsKeyframe(astits.StreamType(st.track.StreamType), pkt.Payload)
	}
	return pkt, true
}
