package segmenter

import (
	"errors"
	"io"

	"hls-segmenter/internal/media"
)

type fakeOutput struct {
	name    string
	packets []*media.Packet
	closed  bool
	sink    *fakeSink
}

func (o *fakeOutput) WritePacket(pkt *media.Packet) error {
	if o.sink.writeErr != nil {
		if err := o.sink.writeErr(pkt); err != nil {
			return err
		}
	}
	o.packets = append(o.packets, pkt)
	return nil
}

func (o *fakeOutput) Close() error {
	o.closed = true
	return o.sink.closeErr
}

type fakeSink struct {
	outputs  []*fakeOutput
	openErr  map[string]error
	closeErr error
	writeErr func(*media.Packet) error
}

func (s *fakeSink) Open(name string) (Output, error) {
	if err := s.openErr[name]; err != nil {
		return nil, err
	}
	o := &fakeOutput{name: name, sink: s}
	s.outputs = append(s.outputs, o)
	return o, nil
}

func (s *fakeSink) names() []string {
	names := make([]string, len(s.outputs))
	for i, o := range s.outputs {
		names[i] = o.name
	}
	return names
}

type sliceSource struct {
	tracks  []media.Track
	packets []*media.Packet
	err     error
	next    int
}

func (s *sliceSource) Tracks() []media.Track { return s.tracks }

func (s *sliceSource) ReadPacket() (*media.Packet, error) {
	if s.next >= len(s.packets) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	pkt := s.packets[s.next]
	s.next++
	return pkt, nil
}

var errBoom = errors.New("boom")

const ptsBase = 900000

// videoFrames returns n frames spaced step ticks apart, with keyframes at
// the given frame numbers.
func videoFrames(n int, step int64, keyframes ...int) []*media.Packet {
	key := make(map[int]bool, len(keyframes))
	for _, k := range keyframes {
		key[k] = true
	}
	pkts := make([]*media.Packet, n)
	for i := range pkts {
		pkts[i] = &media.Packet{
			PID:      videoTrack.PID,
			PTS:      ptsBase + int64(i)*step,
			TimeBase: media.MPEGTSTimeBase,
			Keyframe: key[i],
		}
	}
	return pkts
}

func audioFrames(n int, step int64) []*media.Packet {
	pkts := make([]*media.Packet, n)
	for i := range pkts {
		pkts[i] = &media.Packet{
			PID:      audioTrack.PID,
			PTS:      ptsBase + int64(i)*step,
			TimeBase: media.MPEGTSTimeBase,
		}
	}
	return pkts
}

// interleave merges packet lists by PTS, keeping the order of equal timestamps.
func interleave(a, b []*media.Packet) []*media.Packet {
	out := make([]*media.Packet, 0, len(a)+len(b))
	for len(a) > 0 && len(b) > 0 {
		if b[0].PTS < a[0].PTS {
			out = append(out, b[0])
			b = b[1:]
		} else {
			out = append(out, a[0])
			a = a[1:]
		}
	}
	out = append(out, a...)
	return append(out, b...)
}
