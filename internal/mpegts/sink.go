package mpegts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astits"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/segmenter"
)

// PES stream ids used when a packet does not carry its own.
const (
	streamIDVideo = 0xe0
	streamIDAudio = 0xc0
)

// pcrDelay is how far the PCR runs behind the decode timestamp, 100 ms at 90 kHz.
const pcrDelay = 9000

// Creator creates segment files by name.
type Creator interface {
	Create(name string) (io.WriteCloser, error)
}

// Sink writes each segment as an independent transport stream carrying
// the given tracks. Every file starts with its own PAT and PMT.
type Sink struct {
	ctx    context.Context
	store  Creator
	tracks []media.Track
	pcrPID uint16
}

// NewSink returns a Sink muxing tracks into files created by store. The
// first video track carries the PCR, else the first track.
func NewSink(ctx context.Context, store Creator, tracks []media.Track) *Sink {
	s := &Sink{ctx: ctx, store: store, tracks: tracks}
	for i, t := range tracks {
		if i == 0 || t.Role == media.RoleVideo {
			s.pcrPID = t.PID
		}
		if t.Role == media.RoleVideo {
			break
		}
	}
	return s
}

// Open implements segmenter.Sink.
func (s *Sink) Open(name string) (segmenter.Output, error) {
	if len(s.tracks) == 0 {
		return nil, errors.New("mpegts: no tracks to mux")
	}
	f, err := s.store.Create(name)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	mx := astits.NewMuxer(s.ctx, bw)

	o := &output{
		file:    f,
		buf:     bw,
		mx:      mx,
		pcrPID:  s.pcrPID,
		streams: make(map[uint16]media.Track, len(s.tracks)),
	}
	for _, t := range s.tracks {
		if err := mx.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: t.PID,
			StreamType:    astits.StreamType(t.StreamType),
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("add stream %d: %w", t.PID, err)
		}
		o.streams[t.PID] = t
	}
	mx.SetPCRPID(s.pcrPID)

	if _, err := mx.WriteTables(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write tables: %w", err)
	}
	return o, nil
}

type output struct {
	file    io.WriteCloser
	buf     *bufio.Writer
	mx      *astits.Muxer
	pcrPID  uint16
	streams map[uint16]media.Track
	closed  bool
}

func (o *output) WritePacket(pkt *media.Packet) error {
	if o.closed {
		return errors.New("mpegts: write to closed segment")
	}
	t, ok := o.streams[pkt.PID]
	if !ok {
		return fmt.Errorf("mpegts: pid %d is not muxed", pkt.PID)
	}

	oh := &astits.PESOptionalHeader{
		MarkerBits:      2,
		PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
		PTS:             &astits.ClockReference{Base: pkt.PTS % ptsWrap},
	}
	decode := pkt.PTS
	if pkt.HasDTS && pkt.DTS != pkt.PTS {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorBothPresent
		oh.DTS = &astits.ClockReference{Base: pkt.DTS % ptsWrap}
		decode = pkt.DTS
	}

	var af *astits.PacketAdaptationField
	if pkt.Keyframe || pkt.PID == o.pcrPID {
		af = &astits.PacketAdaptationField{RandomAccessIndicator: pkt.Keyframe}
		if pkt.PID == o.pcrPID {
			af.HasPCR = true
			af.PCR = &astits.ClockReference{Base: pcrBase(decode)}
		}
	}

	sid := pkt.StreamID
	if sid == 0 {
		sid = streamIDAudio
		if t.Role == media.RoleVideo {
			sid = streamIDVideo
		}
	}

	_, err := o.mx.WriteData(&astits.MuxerData{
		PID:             pkt.PID,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: oh,
				StreamID:       sid,
			},
			Data: pkt.Payload,
		},
	})
	return err
}

// pcrBase returns the 33-bit PCR base for a packet decoded at decode.
func pcrBase(decode int64) int64 {
	return ((decode-pcrDelay)%ptsWrap + ptsWrap) % ptsWrap
}

func (o *output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return errors.Join(o.buf.Flush(), o.file.Close())
}
