// Package probe determines the playback duration of finished segment files.
//
// The duration reported is that of the video track when the file has one,
// else that of the audio track, matching the clock track the live segmenter
// elects. Transport streams carry no declared duration, so for them it is
// measured from PES timestamps; MP4 files report the media header duration.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"hls-segmenter/internal/media"
)

// ErrIO marks a read failure after the container was opened.
var ErrIO = errors.New("i/o failure reading container")

// Prober probes files on the local filesystem.
type Prober struct{}

// New returns a Prober.
func New() *Prober {
	return &Prober{}
}

// Probe returns the duration of the file at path in seconds.
// All failures are *media.Error of kind probe; use errors.Is with
// fs.ErrNotExist, media.ErrUnsupportedContainer, media.ErrNoTimedTrack
// or ErrIO to tell them apart.
func (p *Prober) Probe(ctx context.Context, path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, media.Errorf(media.KindProbe, "open", path, err)
	}
	defer f.Close()

	d, err := Reader(ctx, f)
	if err != nil {
		return 0, media.Errorf(media.KindProbe, "probe", path, err)
	}
	return d, nil
}

// Reader probes a container read from r, detecting its format from the
// leading bytes.
func Reader(ctx context.Context, r io.Reader) (float64, error) {
	rr := &recordingReader{r: r}
	br := bufio.NewReaderSize(rr, 64*1024)

	head, err := br.Peek(8)
	if err != nil && rr.err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIO, rr.err)
	}
	switch {
	case len(head) >= 1 && head[0] == tsSyncByte:
		return probeTS(ctx, br, rr)
	case len(head) >= 8 && isMP4Box(head[4:8]):
		return probeMP4(br, rr)
	default:
		return 0, media.ErrUnsupportedContainer
	}
}

var mp4LeadingBoxes = [][]byte{[]byte("ftyp"), []byte("moov"), []byte("styp"), []byte("free"), []byte("mdat")}

func isMP4Box(typ []byte) bool {
	for _, b := range mp4LeadingBoxes {
		if bytes.Equal(typ, b) {
			return true
		}
	}
	return false
}

// recordingReader remembers the first non-EOF error of the underlying
// reader so that parser failures caused by I/O can be told apart from
// malformed input.
type recordingReader struct {
	r   io.Reader
	err error
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && err != io.EOF && rr.err == nil {
		rr.err = err
	}
	return n, err
}

func parseFailure(rr *recordingReader, err error) error {
	if rr.err != nil {
		return fmt.Errorf("%w: %w", ErrIO, rr.err)
	}
	return fmt.Errorf("%w: %w", media.ErrUnsupportedContainer, err)
}
