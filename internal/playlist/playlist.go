// Package playlist maintains the HLS media playlist for a segmentation run:
// the retained segment window, the media sequence number and the rendered manifest.
package playlist

import (
	"fmt"
	"math"
	"strings"
)

const protocolVersion = 3

// Playlist is the manifest state for a single run. It is not safe for
// concurrent use; the segmentation controller is its only writer and
// readers go through a Publisher.
type Playlist struct {
	targetDuration uint
	urlPrefix      string
	windowSize     int
	mediaSequence  uint64
	segments       []Segment
	ended          bool
}

// New returns an empty playlist whose media sequence starts at startIndex.
// windowSize 0 keeps every segment (VOD); otherwise only the newest
// windowSize segments are retained.
func New(targetDuration uint, urlPrefix string, windowSize int, startIndex uint64) *Playlist {
	if windowSize < 0 {
		windowSize = 0
	}
	return &Playlist{
		targetDuration: targetDuration,
		urlPrefix:      urlPrefix,
		windowSize:     windowSize,
		mediaSequence:  startIndex,
	}
}

// Append adds seg to the tail and returns the segments evicted from the
// head to keep the window bounded. Eviction only drops manifest entries.
func (p *Playlist) Append(seg Segment) []Segment {
	if len(p.segments) == 0 {
		p.mediaSequence = seg.Index
	}
	p.segments = append(p.segments, seg)

	if p.windowSize == 0 || len(p.segments) <= p.windowSize {
		return nil
	}
	n := len(p.segments) - p.windowSize
	evicted := make([]Segment, n)
	copy(evicted, p.segments[:n])
	p.segments = append(p.segments[:0], p.segments[n:]...)
	p.mediaSequence += uint64(n)
	return evicted
}

// End marks the playlist complete; Render then emits #EXT-X-ENDLIST.
func (p *Playlist) End() { p.ended = true }

// Ended reports whether End has been called.
func (p *Playlist) Ended() bool { return p.ended }

// MediaSequence is the index of the oldest retained segment.
func (p *Playlist) MediaSequence() uint64 { return p.mediaSequence }

// Segments returns a copy of the retained segments, oldest first.
func (p *Playlist) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Len is the number of retained segments.
func (p *Playlist) Len() int { return len(p.segments) }

// Render produces the manifest text. It does not mutate the playlist.
func (p *Playlist) Render() string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString(fmt.Sprintf("#EXT-X-VERSION:%d\n", protocolVersion))
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", p.targetDuration))
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", p.mediaSequence))

	for _, seg := range p.segments {
		b.WriteString(fmt.Sprintf("#EXTINF:%d,\n", roundSeconds(seg.Duration)))
		b.WriteString(p.urlPrefix)
		b.WriteString(seg.Name)
		b.WriteString("\n")
	}

	if p.ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}

// roundSeconds rounds to the nearest whole second, half away from zero.
func roundSeconds(d float64) uint64 {
	if d <= 0 || math.IsNaN(d) {
		return 0
	}
	return uint64(math.Round(d))
}
