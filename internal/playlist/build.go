package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"hls-segmenter/internal/media"
)

// Prober reports the playback duration of a segment file in seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// BuildOptions describes an existing numbered segment sequence.
type BuildOptions struct {
	// Dir holds the segment files.
	Dir string
	// Pattern is a printf format with a single integer verb, e.g. "seg-%d.ts".
	Pattern        string
	StartIndex     uint64
	TargetDuration uint
	URLPrefix      string
}

// ValidatePattern checks that pattern formats exactly one integer.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.New("empty pattern")
	}
	if strings.ContainsAny(pattern, `/\`) {
		return fmt.Errorf("pattern %q must be a file name", pattern)
	}
	a, b := fmt.Sprintf(pattern, 1), fmt.Sprintf(pattern, 2)
	if strings.Contains(a, "%!") || a == b {
		return fmt.Errorf("pattern %q must contain exactly one integer verb", pattern)
	}
	return nil
}

// Build indexes the files Pattern%StartIndex, Pattern%(StartIndex+1), ...
// stopping at the first file that cannot be probed. The result is a
// complete playlist; zero segments is not an error.
func Build(ctx context.Context, opts BuildOptions, prober Prober, log *slog.Logger) (*Playlist, error) {
	if err := ValidatePattern(opts.Pattern); err != nil {
		return nil, media.Errorf(media.KindConfig, "validate pattern", "", err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	pl := New(opts.TargetDuration, opts.URLPrefix, 0, opts.StartIndex)
	for index := opts.StartIndex; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf(opts.Pattern, index)
		path := filepath.Join(opts.Dir, name)

		d, err := prober.Probe(ctx, path)
		if err != nil {
			log.Debug("segment scan stopped", slog.String("path", path), slog.String("reason", err.Error()))
			break
		}
		pl.Append(Segment{Index: index, Name: name, Duration: d})
		log.Debug("segment indexed", slog.String("segment", name), slog.Float64("duration", d))
	}
	pl.End()
	return pl, nil
}
