// Package segmenter cuts a timestamped packet stream into bounded-duration
// segment files and reports each completed segment to the playlist.
package segmenter

import (
	"errors"
	"log/slog"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/platform/metrics"
	"hls-segmenter/internal/playlist"
)

// Action is the controller's decision for one packet.
type Action uint8

const (
	ActionContinue Action = iota
	ActionRotate
	ActionEnd
)

func (a Action) String() string {
	switch a {
	case ActionRotate:
		return "rotate"
	case ActionEnd:
		return "end"
	default:
		return "continue"
	}
}

// Sink opens segment outputs by name.
type Sink interface {
	Open(name string) (Output, error)
}

// Output is one open segment container.
type Output interface {
	WritePacket(pkt *media.Packet) error
	// Close flushes the output and finalizes the container.
	Close() error
}

// Event describes a playlist change caused by a completed segment.
type Event struct {
	Segment playlist.Segment
	Evicted []playlist.Segment
	Final   bool
}

// Hook observes the playlist after every completed segment and once at the
// end of the run, even when no segment was produced.
type Hook func(pl *playlist.Playlist, ev Event)

// Options configures a Controller.
type Options struct {
	// TargetDuration is the minimum elapsed seconds before a cut.
	TargetDuration float64
	// Prefix and Extension name the segment files <prefix>-<index>.<ext>.
	Prefix    string
	Extension string
	// StartIndex is the index of the first segment.
	StartIndex uint64
}

// Stats counts packets seen by the controller.
type Stats struct {
	PacketsWritten    uint64
	PacketWriteErrors uint64
	PacketsDropped    uint64
	Rotations         uint64
}

var errEnded = errors.New("segmenter: run already ended")

// Controller decides segment boundaries. It owns the single open output
// and is not safe for concurrent use.
type Controller struct {
	opts     Options
	sink     Sink
	playlist *playlist.Playlist
	hook     Hook
	log      *slog.Logger
	metrics  *metrics.Metrics

	clock *Clock
	video *media.Track
	audio *media.Track
	keyed bool
	stats Stats
	ended bool
	index uint64
	name  string
	out   Output
	start float64
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics records controller activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithHook registers h to observe completed segments.
func WithHook(h Hook) Option {
	return func(c *Controller) { c.hook = h }
}

// NewController elects the video and audio tracks from tracks and prepares
// a run. It fails with a source error if there is no timing track.
func NewController(tracks []media.Track, sink Sink, pl *playlist.Playlist, opts Options, options ...Option) (*Controller, error) {
	clock, err := NewClock(tracks)
	if err != nil {
		return nil, media.Errorf(media.KindSource, "elect clock track", "", err)
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}

	c := &Controller{
		opts:     opts,
		sink:     sink,
		playlist: pl,
		log:      slog.New(slog.DiscardHandler),
		clock:    clock,
		index:    opts.StartIndex,
	}
	for _, t := range ElectTracks(tracks) {
		switch t.Role {
		case media.RoleVideo:
			c.video = &t
		case media.RoleAudio:
			c.audio = &t
		}
	}
	c.keyed = c.video != nil
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// ClockTrack is the elected clock track.
func (c *Controller) ClockTrack() media.Track { return c.clock.Track() }

// Index is the index of the current (or next) segment.
func (c *Controller) Index() uint64 { return c.index }

// Stats returns the packet counters.
func (c *Controller) Stats() Stats { return c.stats }

func (c *Controller) role(pkt *media.Packet) media.Role {
	switch {
	case c.video != nil && pkt.PID == c.video.PID:
		return media.RoleVideo
	case c.audio != nil && pkt.PID == c.audio.PID:
		return media.RoleAudio
	default:
		return media.RoleOther
	}
}

// decides reports whether pkt is a point where a cut may happen: a video
// keyframe, or any audio packet when there is no video track.
func (c *Controller) decides(pkt *media.Packet) bool {
	if c.keyed {
		return pkt.Role == media.RoleVideo && pkt.Keyframe
	}
	return pkt.Role == media.RoleAudio
}

// Process routes one packet, rotating the output before it when the packet
// starts a new segment. Packets on unelected tracks are dropped. A failed
// packet write is logged and skipped; open and finalize failures are fatal.
func (c *Controller) Process(pkt *media.Packet) (Action, error) {
	if c.ended {
		return ActionEnd, errEnded
	}

	pkt.Role = c.role(pkt)
	if pkt.Role == media.RoleOther {
		c.stats.PacketsDropped++
		return ActionContinue, nil
	}

	action := ActionContinue
	if c.clock.Owns(pkt) {
		elapsed := c.clock.Elapsed(pkt)
		if c.decides(pkt) {
			if err := c.clock.Mark(elapsed); err != nil {
				return ActionContinue, media.Errorf(media.KindSource, "read clock", "", err)
			}
			if c.out != nil && elapsed-c.start >= c.opts.TargetDuration {
				if err := c.rotate(elapsed); err != nil {
					return ActionContinue, err
				}
				action = ActionRotate
			}
		}
	}

	if c.out == nil {
		if err := c.open(); err != nil {
			return action, err
		}
	}

	if err := c.out.WritePacket(pkt); err != nil {
		c.stats.PacketWriteErrors++
		if c.metrics != nil {
			c.metrics.IncPacketWriteErrors()
		}
		c.log.Warn("could not write packet, skipping",
			slog.String("segment", c.name),
			slog.String("role", pkt.Role.String()),
			slog.Int64("pts", pkt.PTS),
			slog.String("error", media.Errorf(media.KindPacketWrite, "write packet", c.name, err).Error()))
		return action, nil
	}
	c.stats.PacketsWritten++
	if c.metrics != nil {
		c.metrics.IncPacketsWritten(pkt.Role.String())
	}
	return action, nil
}

// Finish closes the last output, records it even if it is shorter than the
// target duration, and ends the playlist.
func (c *Controller) Finish() (Action, error) {
	if c.ended {
		return ActionEnd, nil
	}
	c.ended = true

	if c.out == nil {
		c.playlist.End()
		if c.hook != nil {
			c.hook(c.playlist, Event{Final: true})
		}
		return ActionEnd, nil
	}

	d := c.clock.End() - c.start
	if err := c.close(); err != nil {
		return ActionEnd, err
	}
	c.complete(d, true)
	return ActionEnd, nil
}

// Abort closes the open output without listing it. The partial file stays
// in place and is never referenced by the manifest.
func (c *Controller) Abort() {
	c.ended = true
	if c.out == nil {
		return
	}
	if err := c.out.Close(); err != nil {
		c.log.Warn("could not close aborted segment", slog.String("segment", c.name), slog.String("error", err.Error()))
	}
	c.out = nil
}

func (c *Controller) rotate(elapsed float64) error {
	d := elapsed - c.start
	if err := c.close(); err != nil {
		return err
	}
	c.complete(d, false)
	c.index++
	c.stats.Rotations++
	if err := c.open(); err != nil {
		return err
	}
	c.start = elapsed
	return nil
}

func (c *Controller) open() error {
	name := SegmentName(c.opts.Prefix, c.index, c.opts.Extension)
	out, err := c.sink.Open(name)
	if err != nil {
		return media.Errorf(media.KindRotation, "open segment", name, err)
	}
	c.out = out
	c.name = name
	if c.metrics != nil {
		c.metrics.SetCurrentSegment(c.index)
	}
	c.log.Debug("segment opened", slog.String("segment", name), slog.Uint64("index", c.index))
	return nil
}

func (c *Controller) close() error {
	out := c.out
	c.out = nil
	if err := out.Close(); err != nil {
		return media.Errorf(media.KindRotation, "finalize segment", c.name, err)
	}
	return nil
}

func (c *Controller) complete(d float64, final bool) {
	seg := playlist.Segment{Index: c.index, Name: c.name, Duration: d}
	evicted := c.playlist.Append(seg)
	if final {
		c.playlist.End()
	}

	c.log.Info("segment completed",
		slog.String("segment", seg.Name),
		slog.Uint64("index", seg.Index),
		slog.Float64("duration", seg.Duration),
		slog.Bool("final", final))
	for _, ev := range evicted {
		c.log.Debug("segment evicted", slog.String("segment", ev.Name), slog.Uint64("index", ev.Index))
	}
	if c.metrics != nil {
		c.metrics.ObserveSegment(d)
		if len(evicted) > 0 {
			c.metrics.AddSegmentsEvicted(len(evicted))
		}
	}
	if c.hook != nil {
		c.hook(c.playlist, Event{Segment: seg, Evicted: evicted, Final: final})
	}
}
