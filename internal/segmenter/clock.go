package segmenter

import (
	"fmt"

	"hls-segmenter/internal/media"
)

// Clock converts clock-track timestamps into seconds elapsed since the
// first clock-track packet. The clock track is fixed at construction:
// the first video track, else the first audio track.
type Clock struct {
	track media.Track

	anchored bool
	anchor   int64

	sampled    bool
	lastSample float64
	high       float64
}

// NewClock elects the clock track from tracks.
func NewClock(tracks []media.Track) (*Clock, error) {
	track, ok := electClockTrack(tracks)
	if !ok {
		return nil, media.ErrNoTimingTrack
	}
	return &Clock{track: track}, nil
}

func electClockTrack(tracks []media.Track) (media.Track, bool) {
	for _, role := range []media.Role{media.RoleVideo, media.RoleAudio} {
		for _, t := range tracks {
			if t.Role == role {
				return t, true
			}
		}
	}
	return media.Track{}, false
}

// Track is the elected clock track.
func (c *Clock) Track() media.Track { return c.track }

// Owns reports whether pkt belongs to the clock track.
func (c *Clock) Owns(pkt *media.Packet) bool { return pkt.PID == c.track.PID }

// Elapsed returns (pts - anchor) in seconds. The first call anchors the clock.
// pkt must belong to the clock track.
func (c *Clock) Elapsed(pkt *media.Packet) float64 {
	if !c.anchored {
		c.anchor = pkt.PTS
		c.anchored = true
	}
	tb := pkt.TimeBase
	if tb.Den == 0 {
		tb = c.track.TimeBase
	}
	e := tb.Seconds(pkt.PTS - c.anchor)
	if e > c.high {
		c.high = e
	}
	return e
}

// Mark records elapsed as a timing sample. Samples must not decrease;
// reordered frames between keyframes are not samples and are never marked.
func (c *Clock) Mark(elapsed float64) error {
	if c.sampled && elapsed < c.lastSample {
		return fmt.Errorf("%w: clock went from %.3fs back to %.3fs", media.ErrDiscontinuity, c.lastSample, elapsed)
	}
	c.sampled = true
	c.lastSample = elapsed
	return nil
}

// End is the latest elapsed time observed on the clock track.
func (c *Clock) End() float64 { return c.high }

// ElectTracks returns the tracks copied to output: the first video track
// and the first audio track, in source order.
func ElectTracks(tracks []media.Track) []media.Track {
	var out []media.Track
	var video, audio bool
	for _, t := range tracks {
		switch {
		case t.Role == media.RoleVideo && !video:
			video = true
			out = append(out, t)
		case t.Role == media.RoleAudio && !audio:
			audio = true
			out = append(out, t)
		}
	}
	return out
}
