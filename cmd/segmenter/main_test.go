package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/asticode/go-astits"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/mpegts"
	"hls-segmenter/internal/platform/logger"
	"hls-segmenter/internal/platform/metrics"
	"hls-segmenter/internal/playlist"
	"hls-segmenter/internal/probe"
	"hls-segmenter/internal/storage"
)

// writeInput muxes 5s of 30 fps video with a keyframe every second.
func writeInput(t *testing.T, dir string) string {
	t.Helper()
	store, err := storage.NewDirStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	video := media.Track{PID: 0x100, StreamType: uint8(astits.StreamTypeH264Video), Role: media.RoleVideo, TimeBase: media.MPEGTSTimeBase}
	out, err := mpegts.NewSink(context.Background(), store, []media.Track{video}).Open("input.ts")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 150; i++ {
		key := i%30 == 0
		payload := []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}
		if key {
			payload = []byte{0, 0, 0, 1, 0x65, 0x88, 0x84}
		}
		if err := out.WritePacket(&media.Packet{PID: video.PID, PTS: 126000 + int64(i)*3000, Keyframe: key, Payload: payload}); err != nil {
			t.Fatal(err)
		}
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	return store.Path("input.ts")
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)
	outDir := filepath.Join(dir, "out")
	manifest := filepath.Join(dir, "index.m3u8")

	code := run([]string{"--log-level", "error", "--output-dir", outDir, input, "2", "seg", manifest, "http://cdn/"})
	if code != 0 {
		t.Fatalf("run exited %d", code)
	}

	b, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	for _, want := range []string{
		"#EXT-X-TARGETDURATION:2",
		"#EXT-X-MEDIA-SEQUENCE:0",
		"#EXTINF:2,\nhttp://cdn/seg-0.ts\n",
		"#EXTINF:2,\nhttp://cdn/seg-1.ts\n",
		"#EXTINF:1,\nhttp://cdn/seg-2.ts\n",
		"#EXT-X-ENDLIST",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("manifest missing %q:\n%s", want, out)
		}
	}

	p := probe.New()
	for i, want := range []float64{2, 2, 1} {
		path := filepath.Join(outDir, fmt.Sprintf("seg-%d.ts", i))
		d, err := p.Probe(context.Background(), path)
		if err != nil {
			t.Fatalf("probe %s: %v", path, err)
		}
		if d < want-0.01 || d > want+0.01 {
			t.Errorf("%s: duration %v, want %v", path, d, want)
		}
	}
}

func TestRun_unparseable_input(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "garbage.ts")
	if err := os.WriteFile(input, []byte(strings.Repeat("not a transport stream ", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := filepath.Join(dir, "index.m3u8")

	code := run([]string{"--log-level", "error", input, "2", filepath.Join(dir, "seg"), manifest, ""})
	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
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

func TestRun_config_error(t *testing.T) {
	if code := run([]string{"in.ts", "0", "seg", "index.m3u8", ""}); code != 2 {
		t.Errorf("expected exit code 2, got %d", code)
	}
}

func TestRun_missing_input(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"--log-level", "error", filepath.Join(dir, "missing.ts"), "2", filepath.Join(dir, "seg"), filepath.Join(dir, "index.m3u8"), ""})
	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}

func TestNewRouter(t *testing.T) {
	pub := playlist.NewPublisher()
	pl := playlist.New(2, "", 0, 0)
	pl.Append(playlist.Segment{Index: 0, Name: "seg-0.ts", Duration: 2})
	pub.Publish(pl)

	store := storage.NewMemStore()
	met := metrics.New()
	log := logger.New(os.Stderr, "error", "text")
	router := newRouter(pub, store, "live.m3u8", log, met)

	tests := []struct {
		path string
		code int
	}{
		{"/live.m3u8", http.StatusOK},
		{"/seg-0.ts", http.StatusNotFound},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "hls_requests_total") {
		t.Errorf("expected request counter in metrics output")
	}
}
