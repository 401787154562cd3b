package segmenter

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/platform/metrics"
	"hls-segmenter/internal/playlist"
)

type recordingRemover struct {
	removed []string
}

func (r *recordingRemover) Remove(name string) error {
	r.removed = append(r.removed, name)
	return nil
}

func TestSession_Run(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "index.m3u8")
	src := &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(251, 9000, 0, 102, 205)}
	sink := &fakeSink{}
	pub := playlist.NewPublisher()

	s := NewSession(SessionConfig{
		Controller:   Options{TargetDuration: 10, Prefix: "seg"},
		ManifestPath: manifest,
	}, playlist.New(10, "", 0, 0), pub, nil, nil, metrics.New())

	if err := s.Run(src, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Completed() != 3 {
		t.Errorf("expected 3 completed segments, got %d", s.Completed())
	}

	b, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	if strings.Count(out, "#EXTINF") != 3 || !strings.HasSuffix(out, "#EXT-X-ENDLIST\n") {
		t.Errorf("unexpected manifest file:\n%s", out)
	}

	snap, ok := pub.Snapshot()
	if !ok || snap.Manifest != out {
		t.Errorf("published manifest differs from file:\n%s", snap.Manifest)
	}
}

func TestSession_manifest_updated_per_segment(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "index.m3u8")
	var seen []int

	sink := &fakeSink{}
	src := &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(31, 9000, 0, 10, 20, 30)}
	pl := playlist.New(1, "", 0, 0)
	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 1, Prefix: "s"}, ManifestPath: manifest}, pl, nil, nil, nil, nil)

	// Observe the file as each new output opens.
	observing := &observingSink{fakeSink: sink, onOpen: func() {
		b, err := os.ReadFile(manifest)
		if err != nil {
			t.Errorf("manifest missing during run: %v", err)
			return
		}
		if strings.Contains(string(b), "#EXT-X-ENDLIST") {
			t.Error("ENDLIST written before the run ended")
		}
		seen = append(seen, strings.Count(string(b), "#EXTINF"))
	}}

	if err := s.Run(src, observing); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 4 || seen[0] != 0 || seen[1] != 1 || seen[3] != 3 {
		t.Errorf("manifest not rewritten after each segment: %v", seen)
	}
}

type observingSink struct {
	*fakeSink
	onOpen func()
}

func (s *observingSink) Open(name string) (Output, error) {
	s.onOpen()
	return s.fakeSink.Open(name)
}

func TestSession_no_timing_track(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "index.m3u8")
	src := &sliceSource{tracks: []media.Track{dataTrack}}
	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 10, Prefix: "s"}, ManifestPath: manifest}, playlist.New(10, "", 0, 0), nil, nil, nil, nil)

	err := s.Run(src, &fakeSink{})
	if !errors.Is(err, media.ErrNoTimingTrack) || !media.IsKind(err, media.KindSource) {
		t.Fatalf("expected no timing track source error, got %v", err)
	}

	b, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatalf("expected a header-only manifest: %v", err)
	}
	if strings.Contains(string(b), "#EXTINF") || strings.Contains(string(b), "#EXT-X-ENDLIST") {
		t.Errorf("expected header only:\n%s", b)
	}
}

func TestSession_source_error(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "index.m3u8")
	src := &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(25, 9000, 0, 10, 20), err: errBoom}
	sink := &fakeSink{}
	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 1, Prefix: "s"}, ManifestPath: manifest}, playlist.New(1, "", 0, 0), nil, nil, nil, nil)

	err := s.Run(src, sink)
	if !errors.Is(err, errBoom) || !media.IsKind(err, media.KindSource) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}

	b, _ := os.ReadFile(manifest)
	out := string(b)
	if strings.Contains(out, "#EXT-X-ENDLIST") || strings.Contains(out, "s-2.ts") {
		t.Errorf("aborted run must not list the partial segment or end the playlist:\n%s", out)
	}
	if !strings.Contains(out, "s-1.ts") {
		t.Errorf("completed segments should stay listed:\n%s", out)
	}
	if last := sink.outputs[len(sink.outputs)-1]; !last.closed {
		t.Error("partial output not closed on abort")
	}
}

func TestSession_delete_evicted(t *testing.T) {
	var keys []int
	for i := 0; i < 60; i += 10 {
		keys = append(keys, i)
	}
	src := &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(60, 9000, keys...)}
	remover := &recordingRemover{}

	s := NewSession(SessionConfig{
		Controller:    Options{TargetDuration: 1, Prefix: "w"},
		DeleteEvicted: true,
	}, playlist.New(1, "", 3, 0), nil, remover, nil, nil)
	if err := s.Run(src, &fakeSink{}); err != nil {
		t.Fatal(err)
	}
	if strings.Join(remover.removed, ",") != "w-0.ts,w-1.ts,w-2.ts" {
		t.Errorf("unexpected removals %v", remover.removed)
	}
}

func TestSession_keeps_evicted_by_default(t *testing.T) {
	var keys []int
	for i := 0; i < 60; i += 10 {
		keys = append(keys, i)
	}
	src := &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(60, 9000, keys...)}
	remover := &recordingRemover{}

	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 1, Prefix: "w"}}, playlist.New(1, "", 3, 0), nil, remover, nil, nil)
	if err := s.Run(src, &fakeSink{}); err != nil {
		t.Fatal(err)
	}
	if len(remover.removed) != 0 {
		t.Errorf("evicted files removed without DeleteEvicted: %v", remover.removed)
	}
}

func TestSession_manifest_write_error(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "missing", "index.m3u8")
	src := &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(31, 9000, 0, 10, 20)}
	sink := &fakeSink{}
	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 1, Prefix: "s"}, ManifestPath: manifest}, playlist.New(1, "", 0, 0), nil, nil, nil, nil)

	err := s.Run(src, sink)
	if !media.IsKind(err, media.KindWrite) {
		t.Fatalf("expected write error, got %v", err)
	}
	if s.Completed() != 3 || len(sink.outputs) != 3 {
		t.Errorf("segmentation should continue past manifest failures: completed=%d outputs=%d", s.Completed(), len(sink.outputs))
	}
}

func TestSession_Open(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "index.m3u8")
	sink := &fakeSink{}
	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 1, Prefix: "s"}, ManifestPath: manifest}, playlist.New(1, "", 0, 0), nil, nil, nil, nil)

	err := s.Open(func() (Source, Sink, error) {
		return &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(31, 9000, 0, 10, 20)}, sink, nil
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Completed() != 3 {
		t.Errorf("expected 3 segments, got %d", s.Completed())
	}
}

func TestSession_Open_unreadable_source(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "index.m3u8")
	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 10, Prefix: "s"}, ManifestPath: manifest}, playlist.New(10, "", 0, 0), nil, nil, nil, nil)

	err := s.Open(func() (Source, Sink, error) { return nil, nil, errBoom })
	if !errors.Is(err, errBoom) || !media.IsKind(err, media.KindSource) {
		t.Fatalf("expected source error, got %v", err)
	}

	b, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatalf("expected a header-only manifest: %v", err)
	}
	out := string(b)
	if !strings.HasPrefix(out, "#EXTM3U\n") || strings.Contains(out, "#EXTINF") || strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Errorf("expected header only:\n%s", out)
	}
}

type skippingSource struct {
	*sliceSource
	skipped uint64
}

func (s *skippingSource) Skipped() uint64 { return s.skipped }

func TestSession_logs_skipped_packets(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	src := &skippingSource{
		sliceSource: &sliceSource{tracks: []media.Track{videoTrack}, packets: videoFrames(10, 9000, 0)},
		skipped:     3,
	}
	s := NewSession(SessionConfig{Controller: Options{TargetDuration: 1, Prefix: "s"}}, playlist.New(1, "", 0, 0), nil, nil, log, nil)

	if err := s.Run(src, &fakeSink{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"packets_skipped":3`) {
		t.Errorf("finished line does not report skipped packets:\n%s", buf.String())
	}
}
