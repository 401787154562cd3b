package playlist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hls-segmenter/internal/media"
)

// WriteFile atomically replaces the manifest at path with the rendered
// playlist: the text goes to a temporary file in the same directory which
// is then renamed over path, so readers never observe a partial manifest.
func WriteFile(path string, p *Playlist) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return media.Errorf(media.KindWrite, "create manifest", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(p.Render()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return media.Errorf(media.KindWrite, "write manifest", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return media.Errorf(media.KindWrite, "close manifest", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return media.Errorf(media.KindWrite, "chmod manifest", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return media.Errorf(media.KindWrite, "rename manifest", path, fmt.Errorf("%s: %w", tmpName, err))
	}
	return nil
}

// Snapshot is an immutable rendering of the playlist at one point in time.
type Snapshot struct {
	Manifest      string
	MediaSequence uint64
	Segments      []Segment
	Ended         bool
}

// Publisher hands rendered playlists from the single-threaded segmentation
// loop to concurrent HTTP readers.
type Publisher struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewPublisher returns a Publisher with nothing published yet.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish renders p and makes the result visible to readers.
func (pub *Publisher) Publish(p *Playlist) {
	snap := &Snapshot{
		Manifest:      p.Render(),
		MediaSequence: p.MediaSequence(),
		Segments:      p.Segments(),
		Ended:         p.Ended(),
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	pub.snap = snap
}

// Snapshot returns the latest published playlist. ok is false before the
// first Publish.
func (pub *Publisher) Snapshot() (snap Snapshot, ok bool) {
	pub.mu.RLock()
	defer pub.mu.RUnlock()

	if pub.snap == nil {
		return Snapshot{}, false
	}
	return *pub.snap, true
}

// Contains reports whether name is listed in the latest published playlist.
func (pub *Publisher) Contains(name string) bool {
	pub.mu.RLock()
	defer pub.mu.RUnlock()

	if pub.snap == nil {
		return false
	}
	for _, seg := range pub.snap.Segments {
		if seg.Name == name {
			return true
		}
	}
	return false
}
