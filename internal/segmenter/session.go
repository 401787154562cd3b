package segmenter

import (
	"errors"
	"io"
	"log/slog"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/platform/metrics"
	"hls-segmenter/internal/playlist"
)

// Source yields packets in stream order and io.EOF once exhausted.
type Source interface {
	Tracks() []media.Track
	ReadPacket() (*media.Packet, error)
}

// skipper is implemented by sources that discard packets they cannot time.
type skipper interface {
	Skipped() uint64
}

// Remover deletes segment files that left the playlist window.
type Remover interface {
	Remove(name string) error
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Controller Options
	// ManifestPath is rewritten after every completed segment. Empty disables manifest files.
	ManifestPath string
	// DeleteEvicted removes segment files once the manifest no longer lists them.
	DeleteEvicted bool
}

// Session runs one segmentation pass from a Source to a Sink and keeps the
// manifest file and the published playlist current.
type Session struct {
	cfg       SessionConfig
	playlist  *playlist.Playlist
	publisher *playlist.Publisher
	remover   Remover
	log       *slog.Logger
	metrics   *metrics.Metrics

	writeErr  error
	stats     Stats
	completed uint64
}

// NewSession returns a Session. publisher, remover and m may be nil.
func NewSession(cfg SessionConfig, pl *playlist.Playlist, pub *playlist.Publisher, remover Remover, log *slog.Logger, m *metrics.Metrics) *Session {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Session{
		cfg:       cfg,
		playlist:  pl,
		publisher: pub,
		remover:   remover,
		log:       log,
		metrics:   m,
	}
}

// Stats returns the controller counters of the last Run.
func (s *Session) Stats() Stats { return s.stats }

// Completed is the number of segments the last Run finalized.
func (s *Session) Completed() uint64 { return s.completed }

// Opener opens the packet source and the sink writing its tracks.
type Opener func() (Source, Sink, error)

// Open writes the header-only manifest, then opens the input with open and
// runs it. A failure to open is a source error.
func (s *Session) Open(open Opener) error {
	s.persist()

	src, sink, err := open()
	if err != nil {
		return asSourceError("open source", err)
	}
	return s.run(src, sink)
}

// Run consumes src until it is exhausted. Source, open and finalize
// failures abort the run. Manifest write failures do not stop segmentation;
// the first one is returned after the run completes.
func (s *Session) Run(src Source, sink Sink) error {
	s.persist()
	return s.run(src, sink)
}

func asSourceError(op string, err error) error {
	var merr *media.Error
	if errors.As(err, &merr) {
		return err
	}
	return media.Errorf(media.KindSource, op, "", err)
}

func (s *Session) run(src Source, sink Sink) error {
	ctrl, err := NewController(src.Tracks(), sink, s.playlist, s.cfg.Controller,
		WithLogger(s.log),
		WithMetrics(s.metrics),
		WithHook(s.onSegment),
	)
	if err != nil {
		return err
	}
	clock := ctrl.ClockTrack()
	s.log.Info("segmentation started",
		slog.String("clock_track", clock.Role.String()),
		slog.Int("clock_pid", int(clock.PID)),
		slog.Float64("target_duration", s.cfg.Controller.TargetDuration),
		slog.Uint64("start_index", s.cfg.Controller.StartIndex))

	for {
		pkt, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ctrl.Abort()
			s.stats = ctrl.Stats()
			return asSourceError("read packet", err)
		}
		if _, err := ctrl.Process(pkt); err != nil {
			ctrl.Abort()
			s.stats = ctrl.Stats()
			return err
		}
	}

	if _, err := ctrl.Finish(); err != nil {
		s.stats = ctrl.Stats()
		return err
	}
	s.stats = ctrl.Stats()

	attrs := []any{
		slog.Uint64("segments", s.completed),
		slog.Uint64("packets_written", s.stats.PacketsWritten),
		slog.Uint64("packet_write_errors", s.stats.PacketWriteErrors),
		slog.Uint64("packets_dropped", s.stats.PacketsDropped),
	}
	if sk, ok := src.(skipper); ok {
		attrs = append(attrs, slog.Uint64("packets_skipped", sk.Skipped()))
	}
	s.log.Info("segmentation finished", attrs...)
	return s.writeErr
}

func (s *Session) onSegment(pl *playlist.Playlist, ev Event) {
	if ev.Segment.Name != "" {
		s.completed++
	}
	s.persist()

	if !s.cfg.DeleteEvicted || s.remover == nil {
		return
	}
	for _, seg := range ev.Evicted {
		if err := s.remover.Remove(seg.Name); err != nil {
			s.log.Warn("could not delete evicted segment", slog.String("segment", seg.Name), slog.String("error", err.Error()))
		}
	}
}

func (s *Session) persist() {
	if s.publisher != nil {
		s.publisher.Publish(s.playlist)
	}
	if s.cfg.ManifestPath == "" {
		return
	}
	if err := playlist.WriteFile(s.cfg.ManifestPath, s.playlist); err != nil {
		if s.metrics != nil {
			s.metrics.IncManifestWriteErrors()
		}
		s.log.Error("manifest write failed", slog.String("manifest", s.cfg.ManifestPath), slog.String("error", err.Error()))
		if s.writeErr == nil {
			s.writeErr = err
		}
	}
}
