// Package media holds the packet and track types shared by the demultiplexer,
// the segmentation controller and the output sink.
package media

import "fmt"

// Role is the part a track plays in segmentation. Only video and audio
// tracks are ever copied to output or used for timing.
type Role uint8

const (
	RoleOther Role = iota
	RoleVideo
	RoleAudio
)

func (r Role) String() string {
	switch r {
	case RoleVideo:
		return "video"
	case RoleAudio:
		return "audio"
	default:
		return "other"
	}
}

// TimeBase is the rational unit of a track's timestamps (Num/Den seconds per tick).
type TimeBase struct {
	Num int64
	Den int64
}

// MPEGTSTimeBase is the 90 kHz clock used by transport stream PES timestamps.
var MPEGTSTimeBase = TimeBase{Num: 1, Den: 90000}

// Seconds converts ticks to seconds.
func (tb TimeBase) Seconds(ticks int64) float64 {
	if tb.Den == 0 {
		return 0
	}
	return float64(ticks) * float64(tb.Num) / float64(tb.Den)
}

func (tb TimeBase) String() string {
	return fmt.Sprintf("%d/%d", tb.Num, tb.Den)
}

// Track describes one elementary stream of the source.
type Track struct {
	PID        uint16
	StreamType uint8
	Role       Role
	TimeBase   TimeBase
}

// Packet is a single access unit read from the source.
// Payload ownership passes to the output sink once written.
type Packet struct {
	PID      uint16
	StreamID uint8
	Role     Role
	PTS      int64
	DTS      int64
	HasDTS   bool
	TimeBase TimeBase
	Keyframe bool
	Payload  []byte
}
