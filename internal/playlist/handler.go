package playlist

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"hls-segmenter/internal/storage"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// SegmentOpener opens stored segment files by name.
type SegmentOpener interface {
	Open(name string) (io.ReadSeekCloser, error)
}

// Handler serves the published playlist and its segment files using go-chi.
type Handler struct {
	pub     *Publisher
	store   SegmentOpener
	log     *slog.Logger
	started time.Time
}

// NewHandler returns a Handler reading manifests from pub and segments from store.
func NewHandler(pub *Publisher, store SegmentOpener, log *slog.Logger) *Handler {
	return &Handler{pub: pub, store: store, log: log, started: time.Now()}
}

// GetPlaylist handles GET /{manifest}.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.pub.Snapshot()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	if snap.Ended {
		w.Header().Set("Cache-Control", "max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write([]byte(snap.Manifest))
	}
}

// GetSegment handles GET /{segment}. Only segments listed in the published
// playlist are served; the segment being written and any other stored file
// are not.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "segment")
	if name == "" || name != path.Base(name) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !h.pub.Contains(name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f, err := h.store.Open(name)
	if errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("open segment failed", slog.String("segment", name), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", segmentContentType(name))
	http.ServeContent(w, r, name, h.started, f)
}

func segmentContentType(name string) string {
	switch path.Ext(name) {
	case ".ts":
		return "video/mp2t"
	case ".mp4", ".m4s":
		return "video/mp4"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}
